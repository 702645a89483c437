package ads

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestSession wires a session to one end of an in-memory pipe and starts
// its read loop, returning the session and the other end for a test to play
// fake-server on.
func newTestSession(t *testing.T) (*session, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	s := newSession(AmsAddress{NetId: AmsNetId{10, 0, 0, 1, 1, 1}, Port: PortTC3PLC1}, time.Second, 2*time.Second, nil)
	s.conn = clientConn
	s.localAddr = AmsAddress{NetId: AmsNetId{10, 0, 0, 2, 1, 1}, Port: 32905}
	s.connected.Store(true)
	go s.readLoop()

	t.Cleanup(func() {
		s.close()
		serverConn.Close()
	})

	return s, serverConn
}

// respondOnce reads one request frame off serverConn and writes back a
// response built from resultData, echoing the request's InvokeId.
func respondOnce(t *testing.T, serverConn net.Conn, resultData []byte) {
	t.Helper()
	go func() {
		buf := make([]byte, 64*1024)
		n, err := serverConn.Read(buf)
		if err != nil {
			return
		}
		f, _, err := decodeFrame(buf[:n])
		if err != nil {
			return
		}
		hdr := amsHeader{
			TargetNetId: f.header.SourceNetId,
			TargetPort:  f.header.SourcePort,
			SourceNetId: f.header.TargetNetId,
			SourcePort:  f.header.TargetPort,
			CommandId:   f.header.CommandId,
			StateFlags:  StateFlagResponse,
			InvokeId:    f.header.InvokeId,
		}
		serverConn.Write(encodeFrame(hdr, resultData))
	}()
}

func TestSumReadRawBatchesIntoOneRoundTrip(t *testing.T) {
	s, serverConn := newTestSession(t)

	items := []sumReadItem{
		{IndexGroup: IndexGroupSymbolValueByHandle, IndexOffset: 1, Length: 2},
		{IndexGroup: IndexGroupSymbolValueByHandle, IndexOffset: 2, Length: 4},
	}

	// Response: ReadWrite wraps it in (result u32, dataLen u32) then data:
	// 2 result codes (0, 0) followed by the two data blocks.
	data := make([]byte, 8+2+4)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint32(data[4:8], 0)
	binary.LittleEndian.PutUint16(data[8:10], 0x1234)
	binary.LittleEndian.PutUint32(data[10:14], 0xDEADBEEF)

	resp := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(resp[0:4], 0) // ReadWrite result
	binary.LittleEndian.PutUint32(resp[4:8], uint32(len(data)))
	copy(resp[8:], data)

	respondOnce(t, serverConn, resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	results, err := sumReadRaw(ctx, s, items)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint32(0), results[0].Error)
	require.Equal(t, []byte{0x34, 0x12}, results[0].Data)
	require.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, results[1].Data)
}

func TestSumWriteRawBatchesIntoOneRoundTrip(t *testing.T) {
	s, serverConn := newTestSession(t)

	items := []sumWriteItem{
		{IndexGroup: IndexGroupSymbolValueByHandle, IndexOffset: 1, Data: []byte{1, 2}},
		{IndexGroup: IndexGroupSymbolValueByHandle, IndexOffset: 2, Data: []byte{3, 4, 5, 6}},
	}

	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint32(data[4:8], 0)

	resp := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(resp[0:4], 0)
	binary.LittleEndian.PutUint32(resp[4:8], uint32(len(data)))
	copy(resp[8:], data)

	respondOnce(t, serverConn, resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	results, err := sumWriteRaw(ctx, s, items)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0}, results)
}

func TestSumCreateAndDeleteHandles(t *testing.T) {
	s, serverConn := newTestSession(t)

	names := []string{"MAIN.Counter", "MAIN.Running"}

	// sumCreateHandles -> sumReadWriteRaw: N*(error, length) headers then N
	// data blocks (4-byte handles).
	headers := make([]byte, 16)
	binary.LittleEndian.PutUint32(headers[0:4], 0)
	binary.LittleEndian.PutUint32(headers[4:8], 4)
	binary.LittleEndian.PutUint32(headers[8:12], 0)
	binary.LittleEndian.PutUint32(headers[12:16], 4)

	handleData := make([]byte, 8)
	binary.LittleEndian.PutUint32(handleData[0:4], 100)
	binary.LittleEndian.PutUint32(handleData[4:8], 101)

	data := append(headers, handleData...)
	resp := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(resp[0:4], 0)
	binary.LittleEndian.PutUint32(resp[4:8], uint32(len(data)))
	copy(resp[8:], data)

	respondOnce(t, serverConn, resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	handles, errs := sumCreateHandles(ctx, s, names)
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, []uint32{100, 101}, handles)

	// sumDeleteHandles -> sumWriteRaw: N result codes.
	delResp := make([]byte, 8+8)
	binary.LittleEndian.PutUint32(delResp[0:4], 0)
	binary.LittleEndian.PutUint32(delResp[4:8], 8)
	binary.LittleEndian.PutUint32(delResp[8:12], 0)
	binary.LittleEndian.PutUint32(delResp[12:16], 0)

	respondOnce(t, serverConn, delResp)
	errs = sumDeleteHandles(ctx, s, handles)
	for _, err := range errs {
		require.NoError(t, err)
	}
}
