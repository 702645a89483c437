package ads

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// maxFrameSize bounds a single AMS frame's data payload so a corrupted
// length field can't make the decoder try to allocate an unbounded buffer.
const maxFrameSize = 16 * 1024 * 1024

// ErrFrameTooShort is returned by decodeFrame when buf does not yet contain a
// complete frame; the caller should read more bytes and retry.
var ErrFrameTooShort = errors.New("ads: frame incomplete")

// ErrFrameDesync is returned when the fixed-zero reserved field of the
// AMS/TCP header is nonzero, which means the stream has lost frame
// boundaries (e.g. a prior partial write or a non-ADS peer).
var ErrFrameDesync = errors.New("ads: frame desynchronized")

// ErrOversizeFrame is returned when a frame's declared length exceeds
// maxFrameSize.
var ErrOversizeFrame = errors.New("ads: oversize frame")

// frame is a fully decoded AMS/TCP frame: header plus raw ADS command data.
type frame struct {
	header amsHeader
	data   []byte
}

// decodeFrame attempts to decode one complete frame from the head of buf.
// It returns the decoded frame, the number of bytes consumed from buf, and
// an error. ErrFrameTooShort means buf holds a valid but incomplete prefix;
// everything else means the stream should be abandoned and reconnected.
func decodeFrame(buf []byte) (frame, int, error) {
	if len(buf) < tcpHeaderSize {
		return frame{}, 0, ErrFrameTooShort
	}
	reserved := binary.LittleEndian.Uint16(buf[0:2])
	if reserved != 0 {
		return frame{}, 0, ErrFrameDesync
	}
	amsLen := binary.LittleEndian.Uint32(buf[2:6])
	if amsLen < amsHeaderSize {
		return frame{}, 0, fmt.Errorf("%w: ams length %d below header size", ErrFrameDesync, amsLen)
	}
	if amsLen > maxFrameSize {
		return frame{}, 0, ErrOversizeFrame
	}
	total := tcpHeaderSize + int(amsLen)
	if len(buf) < total {
		return frame{}, 0, ErrFrameTooShort
	}

	ams := buf[tcpHeaderSize:total]
	var hdr amsHeader
	copy(hdr.TargetNetId[:], ams[0:6])
	hdr.TargetPort = binary.LittleEndian.Uint16(ams[6:8])
	copy(hdr.SourceNetId[:], ams[8:14])
	hdr.SourcePort = binary.LittleEndian.Uint16(ams[14:16])
	hdr.CommandId = binary.LittleEndian.Uint16(ams[16:18])
	hdr.StateFlags = binary.LittleEndian.Uint16(ams[18:20])
	hdr.DataLength = binary.LittleEndian.Uint32(ams[20:24])
	hdr.ErrorCode = binary.LittleEndian.Uint32(ams[24:28])
	hdr.InvokeId = binary.LittleEndian.Uint32(ams[28:32])

	if amsHeaderSize+int(hdr.DataLength) > len(ams) {
		return frame{}, 0, fmt.Errorf("%w: declared data length %d exceeds frame", ErrFrameDesync, hdr.DataLength)
	}

	data := make([]byte, hdr.DataLength)
	copy(data, ams[amsHeaderSize:amsHeaderSize+int(hdr.DataLength)])

	return frame{header: hdr, data: data}, total, nil
}

// encodeFrame serializes an AMS header and payload into one wire frame.
func encodeFrame(hdr amsHeader, data []byte) []byte {
	hdr.DataLength = uint32(len(data))
	buf := make([]byte, tcpHeaderSize+amsHeaderSize+len(data))
	binary.LittleEndian.PutUint16(buf[0:2], 0)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(amsHeaderSize+len(data)))

	ams := buf[tcpHeaderSize:]
	copy(ams[0:6], hdr.TargetNetId[:])
	binary.LittleEndian.PutUint16(ams[6:8], hdr.TargetPort)
	copy(ams[8:14], hdr.SourceNetId[:])
	binary.LittleEndian.PutUint16(ams[14:16], hdr.SourcePort)
	binary.LittleEndian.PutUint16(ams[16:18], hdr.CommandId)
	binary.LittleEndian.PutUint16(ams[18:20], hdr.StateFlags)
	binary.LittleEndian.PutUint32(ams[20:24], hdr.DataLength)
	binary.LittleEndian.PutUint32(ams[24:28], hdr.ErrorCode)
	binary.LittleEndian.PutUint32(ams[28:32], hdr.InvokeId)
	copy(ams[amsHeaderSize:], data)

	return buf
}

// frameDecoder incrementally accumulates bytes read off a stream and yields
// complete frames as they become available, tolerating arbitrary chunking
// by the underlying transport (a single TCP Read may return less than one
// frame, or several frames back to back).
type frameDecoder struct {
	buf []byte
}

// feed appends newly read bytes and returns every complete frame now
// available, in arrival order.
func (d *frameDecoder) feed(chunk []byte) ([]frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []frame
	for {
		f, n, err := decodeFrame(d.buf)
		if err == ErrFrameTooShort {
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		d.buf = d.buf[n:]
	}
	return frames, nil
}
