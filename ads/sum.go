package ads

import (
	"context"
	"encoding/binary"
	"fmt"
)

// sumReadItem describes one element of a batched read.
type sumReadItem struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
}

// sumReadResult is one element's result from sumReadRaw.
type sumReadResult struct {
	Error uint32
	Data  []byte
}

// sumReadRaw batches N independent reads into a single ADS ReadWrite call
// against IndexGroupSumCommandRead, so N symbols cost one round trip
// instead of N. The request is N fixed (indexGroup, indexOffset, length)
// headers; the response is N result codes followed by N data blocks.
func sumReadRaw(ctx context.Context, s *session, items []sumReadItem) ([]sumReadResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	writeData := make([]byte, 12*len(items))
	var totalReadLen uint32
	for i, it := range items {
		off := i * 12
		binary.LittleEndian.PutUint32(writeData[off:off+4], it.IndexGroup)
		binary.LittleEndian.PutUint32(writeData[off+4:off+8], it.IndexOffset)
		binary.LittleEndian.PutUint32(writeData[off+8:off+12], it.Length)
		totalReadLen += it.Length
	}
	readLen := uint32(4*len(items)) + totalReadLen

	resp, err := cmdReadWrite(ctx, s, IndexGroupSumCommandRead, uint32(len(items)), readLen, writeData)
	if err != nil {
		return nil, err
	}
	if uint32(len(resp)) < 4*uint32(len(items)) {
		return nil, fmt.Errorf("%w: sum read response too short for %d results", ErrProtocol, len(items))
	}

	results := make([]sumReadResult, len(items))
	off := 0
	for i := range items {
		results[i].Error = binary.LittleEndian.Uint32(resp[off : off+4])
		off += 4
	}
	for i, it := range items {
		if off+int(it.Length) > len(resp) {
			return nil, fmt.Errorf("%w: sum read data for item %d exceeds response", ErrProtocol, i)
		}
		if results[i].Error == 0 {
			results[i].Data = resp[off : off+int(it.Length)]
		}
		off += int(it.Length)
	}
	return results, nil
}

// sumWriteItem describes one element of a batched write.
type sumWriteItem struct {
	IndexGroup  uint32
	IndexOffset uint32
	Data        []byte
}

// sumWriteRaw batches N independent writes into a single ADS ReadWrite call
// against IndexGroupSumCommandWrite. The request is N fixed headers
// followed by N data blocks; the response is N result codes.
func sumWriteRaw(ctx context.Context, s *session, items []sumWriteItem) ([]uint32, error) {
	if len(items) == 0 {
		return nil, nil
	}

	headerSize := 12 * len(items)
	totalData := 0
	for _, it := range items {
		totalData += len(it.Data)
	}
	writeData := make([]byte, headerSize+totalData)
	dataOff := headerSize
	for i, it := range items {
		off := i * 12
		binary.LittleEndian.PutUint32(writeData[off:off+4], it.IndexGroup)
		binary.LittleEndian.PutUint32(writeData[off+4:off+8], it.IndexOffset)
		binary.LittleEndian.PutUint32(writeData[off+8:off+12], uint32(len(it.Data)))
		copy(writeData[dataOff:dataOff+len(it.Data)], it.Data)
		dataOff += len(it.Data)
	}

	resp, err := cmdReadWrite(ctx, s, IndexGroupSumCommandWrite, uint32(len(items)), uint32(4*len(items)), writeData)
	if err != nil {
		return nil, err
	}
	if len(resp) < 4*len(items) {
		return nil, fmt.Errorf("%w: sum write response too short for %d results", ErrProtocol, len(items))
	}
	results := make([]uint32, len(items))
	for i := range items {
		results[i] = binary.LittleEndian.Uint32(resp[i*4 : i*4+4])
	}
	return results, nil
}

// sumReadWriteItem describes one element of a batched read/write (e.g.
// create-handle-by-name, where the write payload is the name and the read
// payload is the returned handle).
type sumReadWriteItem struct {
	IndexGroup  uint32
	IndexOffset uint32
	ReadLength  uint32
	WriteData   []byte
}

// sumReadWriteResult is one element's result from sumReadWriteRaw.
type sumReadWriteResult struct {
	Error uint32
	Data  []byte
}

// sumReadWriteRaw batches N independent ReadWrite sub-operations into a
// single ADS ReadWrite call against IndexGroupSumCommandReadWrite. This is
// the layout sumCreateHandles builds on (sumDeleteHandles uses sumWriteRaw).
//
// Request: N * (indexGroup u32, indexOffset u32, readLength u32, writeLength u32)
// headers, followed by N write-data blocks.
// Response: N * (result u32, readLength u32) headers, followed by N
// read-data blocks.
func sumReadWriteRaw(ctx context.Context, s *session, items []sumReadWriteItem) ([]sumReadWriteResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	headerSize := 16 * len(items)
	totalWrite := 0
	totalRead := uint32(0)
	for _, it := range items {
		totalWrite += len(it.WriteData)
		totalRead += it.ReadLength
	}

	writeData := make([]byte, headerSize+totalWrite)
	dataOff := headerSize
	for i, it := range items {
		off := i * 16
		binary.LittleEndian.PutUint32(writeData[off:off+4], it.IndexGroup)
		binary.LittleEndian.PutUint32(writeData[off+4:off+8], it.IndexOffset)
		binary.LittleEndian.PutUint32(writeData[off+8:off+12], it.ReadLength)
		binary.LittleEndian.PutUint32(writeData[off+12:off+16], uint32(len(it.WriteData)))
		copy(writeData[dataOff:dataOff+len(it.WriteData)], it.WriteData)
		dataOff += len(it.WriteData)
	}

	readLen := uint32(8*len(items)) + totalRead
	resp, err := cmdReadWrite(ctx, s, IndexGroupSumCommandReadWrite, uint32(len(items)), readLen, writeData)
	if err != nil {
		return nil, err
	}
	if len(resp) < 8*len(items) {
		return nil, fmt.Errorf("%w: sum read/write response too short for %d results", ErrProtocol, len(items))
	}

	type header struct {
		Error  uint32
		Length uint32
	}
	headers := make([]header, len(items))
	off := 0
	for i := range items {
		headers[i].Error = binary.LittleEndian.Uint32(resp[off : off+4])
		headers[i].Length = binary.LittleEndian.Uint32(resp[off+4 : off+8])
		off += 8
	}

	results := make([]sumReadWriteResult, len(items))
	for i, h := range headers {
		if off+int(h.Length) > len(resp) {
			return nil, fmt.Errorf("%w: sum read/write data for item %d exceeds response", ErrProtocol, i)
		}
		results[i].Error = h.Error
		if h.Error == 0 {
			results[i].Data = resp[off : off+int(h.Length)]
		}
		off += int(h.Length)
	}
	return results, nil
}

// sumCreateHandles acquires N variable handles in one round trip.
func sumCreateHandles(ctx context.Context, s *session, names []string) ([]uint32, []error) {
	items := make([]sumReadWriteItem, len(names))
	for i, name := range names {
		items[i] = sumReadWriteItem{
			IndexGroup:  IndexGroupSymbolHandleByName,
			IndexOffset: 0,
			ReadLength:  4,
			WriteData:   append([]byte(name), 0),
		}
	}

	results, err := sumReadWriteRaw(ctx, s, items)
	if err != nil {
		errs := make([]error, len(names))
		for i := range errs {
			errs[i] = err
		}
		return make([]uint32, len(names)), errs
	}

	handles := make([]uint32, len(names))
	errs := make([]error, len(names))
	for i, r := range results {
		if r.Error != 0 {
			errs[i] = &AdsError{Code: r.Error}
			continue
		}
		if len(r.Data) < 4 {
			errs[i] = fmt.Errorf("%w: handle response too short", ErrProtocol)
			continue
		}
		handles[i] = binary.LittleEndian.Uint32(r.Data)
	}
	return handles, errs
}

// sumDeleteHandles releases N variable handles in one round trip.
func sumDeleteHandles(ctx context.Context, s *session, handles []uint32) []error {
	items := make([]sumWriteItem, len(handles))
	for i, h := range handles {
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, h)
		items[i] = sumWriteItem{IndexGroup: IndexGroupSymbolReleaseHandle, Data: data}
	}

	results, err := sumWriteRaw(ctx, s, items)
	if err != nil {
		errs := make([]error, len(handles))
		for i := range errs {
			errs[i] = err
		}
		return errs
	}

	errs := make([]error, len(handles))
	for i, code := range results {
		if code != 0 {
			errs[i] = &AdsError{Code: code}
		}
	}
	return errs
}
