package ads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(cmdId uint16, invokeId uint32) amsHeader {
	return amsHeader{
		TargetNetId: AmsNetId{192, 168, 1, 100, 1, 1},
		TargetPort:  PortTC3PLC1,
		SourceNetId: AmsNetId{192, 168, 1, 50, 1, 1},
		SourcePort:  32905,
		CommandId:   cmdId,
		StateFlags:  StateFlagRequest,
		InvokeId:    invokeId,
	}
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	hdr := testHeader(CmdRead, 42)
	data := []byte{1, 2, 3, 4, 5}

	wire := encodeFrame(hdr, data)
	f, n, err := decodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, hdr.TargetNetId, f.header.TargetNetId)
	assert.Equal(t, hdr.CommandId, f.header.CommandId)
	assert.Equal(t, hdr.InvokeId, f.header.InvokeId)
	assert.Equal(t, data, f.data)
}

func TestDecodeFrameTooShort(t *testing.T) {
	hdr := testHeader(CmdRead, 1)
	wire := encodeFrame(hdr, []byte{1, 2, 3})

	for n := 0; n < len(wire); n++ {
		_, _, err := decodeFrame(wire[:n])
		assert.ErrorIs(t, err, ErrFrameTooShort, "prefix of length %d", n)
	}
}

func TestDecodeFrameDesync(t *testing.T) {
	hdr := testHeader(CmdRead, 1)
	wire := encodeFrame(hdr, nil)
	wire[0] = 0xFF // reserved field must be zero

	_, _, err := decodeFrame(wire)
	assert.ErrorIs(t, err, ErrFrameDesync)
}

func TestDecodeFrameOversize(t *testing.T) {
	hdr := testHeader(CmdRead, 1)
	wire := encodeFrame(hdr, nil)
	// Corrupt the declared AMS length to something absurd.
	wire[2], wire[3], wire[4], wire[5] = 0xFF, 0xFF, 0xFF, 0x7F

	_, _, err := decodeFrame(wire)
	assert.ErrorIs(t, err, ErrOversizeFrame)
}

func TestFrameDecoderHandlesArbitraryChunking(t *testing.T) {
	var wire []byte
	want := []frame{}
	for i := uint32(1); i <= 3; i++ {
		hdr := testHeader(CmdRead, i)
		data := make([]byte, i)
		for j := range data {
			data[j] = byte(i)
		}
		want = append(want, frame{header: hdr, data: data})
		wire = append(wire, encodeFrame(hdr, data)...)
	}

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		dec := frameDecoder{}
		var got []frame
		for off := 0; off < len(wire); off += chunkSize {
			end := off + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			frames, err := dec.feed(wire[off:end])
			require.NoError(t, err, "chunk size %d", chunkSize)
			got = append(got, frames...)
		}
		require.Len(t, got, len(want), "chunk size %d", chunkSize)
		for i := range want {
			assert.Equal(t, want[i].header.InvokeId, got[i].header.InvokeId, "chunk size %d, frame %d", chunkSize, i)
			assert.Equal(t, want[i].data, got[i].data, "chunk size %d, frame %d", chunkSize, i)
		}
	}
}
