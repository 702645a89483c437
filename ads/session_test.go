package ads

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextInvokeIdSkipsZeroOnOverflow(t *testing.T) {
	s := newSession(AmsAddress{}, time.Second, time.Second, nil)
	s.invokeCounter.Store(^uint32(0)) // one Add(1) away from wrapping to 0

	id := s.nextInvokeId()
	assert.Equal(t, uint32(1), id, "invoke ID must skip the reserved 0 value on wraparound")
}

// TestRegisterAmsPortParsesRouterAssignedAddress plays fake router on the
// other end of a pipe: it reads the Port Connect request, confirms the
// requested local port was sent, and replies with an assigned NetId/port
// that registerAmsPort must return verbatim.
func TestRegisterAmsPortParsesRouterAssignedAddress(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type result struct {
		addr AmsAddress
		err  error
	}
	done := make(chan result, 1)
	go func() {
		addr, err := registerAmsPort(clientConn, 0)
		done <- result{addr, err}
	}()

	header := make([]byte, tcpHeaderSize)
	_, err := io.ReadFull(serverConn, header)
	require.NoError(t, err)
	cmdId := binary.LittleEndian.Uint16(header[0:2])
	length := binary.LittleEndian.Uint32(header[2:6])
	require.Equal(t, AmsTcpCmdPortConnect, cmdId)
	require.Equal(t, uint32(2), length)

	body := make([]byte, length)
	_, err = io.ReadFull(serverConn, body)
	require.NoError(t, err)
	requestedPort := binary.LittleEndian.Uint16(body[0:2])
	assert.Equal(t, uint16(0), requestedPort)

	wantNetId := AmsNetId{10, 0, 0, 2, 1, 1}
	resp := make([]byte, tcpHeaderSize+8)
	binary.LittleEndian.PutUint16(resp[0:2], AmsTcpCmdPortConnect)
	binary.LittleEndian.PutUint32(resp[2:6], 8)
	copy(resp[6:12], wantNetId[:])
	binary.LittleEndian.PutUint16(resp[12:14], 32905)
	_, err = serverConn.Write(resp)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, wantNetId, r.addr.NetId)
		assert.Equal(t, uint16(32905), r.addr.Port)
	case <-time.After(time.Second):
		t.Fatal("registerAmsPort did not return")
	}
}

// TestRegisterAmsPortRejectsWrongResponseCommand guards against treating an
// ordinary ADS frame (or any other AMS/TCP command) as a Port Connect reply.
func TestRegisterAmsPortRejectsWrongResponseCommand(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type result struct {
		addr AmsAddress
		err  error
	}
	done := make(chan result, 1)
	go func() {
		addr, err := registerAmsPort(clientConn, 0)
		done <- result{addr, err}
	}()

	header := make([]byte, tcpHeaderSize)
	_, err := io.ReadFull(serverConn, header)
	require.NoError(t, err)
	body := make([]byte, binary.LittleEndian.Uint32(header[2:6]))
	_, err = io.ReadFull(serverConn, body)
	require.NoError(t, err)

	resp := make([]byte, tcpHeaderSize)
	binary.LittleEndian.PutUint16(resp[0:2], AmsTcpCmdAmsCommand)
	binary.LittleEndian.PutUint32(resp[2:6], 0)
	_, err = serverConn.Write(resp)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.Error(t, r.err)
	case <-time.After(time.Second):
		t.Fatal("registerAmsPort did not return")
	}
}
