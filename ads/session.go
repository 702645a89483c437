package ads

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/yatesdr/goads/logging"
)

// pendingResult is delivered to a blocked SendCommand call once its response
// frame arrives, or once the session decides it never will.
type pendingResult struct {
	frame frame
	err   error
}

// session owns one AMS/TCP connection and multiplexes every in-flight
// request over it by InvokeId. A session has no reconnect policy of its own
// — that lives in Client, which owns the session's lifetime and rebuilds it
// on failure.
type session struct {
	log *slog.Logger

	targetAddr AmsAddress
	localAddr  AmsAddress

	dialTimeout    time.Duration
	requestTimeout time.Duration

	writeMu sync.Mutex
	conn    net.Conn

	connected atomic.Bool

	invokeCounter atomic.Uint32
	pending       *xsync.Map[uint32, chan pendingResult]

	// notifications receives every unsolicited DeviceNotification frame;
	// the subscription manager is the sole consumer.
	notifications chan frame

	// onDisconnect is invoked once, from the read loop, when the connection
	// is lost for any reason. Set by Client before Connect.
	onDisconnect func(error)

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(targetAddr AmsAddress, dialTimeout, requestTimeout time.Duration, log *slog.Logger) *session {
	if log == nil {
		log = logging.Default()
	}
	return &session{
		log:            log,
		targetAddr:     targetAddr,
		dialTimeout:    dialTimeout,
		requestTimeout: requestTimeout,
		pending:        xsync.NewMap[uint32, chan pendingResult](),
		notifications:  make(chan frame, 64),
		done:           make(chan struct{}),
	}
}

// connect dials the AMS/TCP port on the host formed from the first four
// octets of the target NetId, registers with the router via registerAmsPort
// and starts the read loop. The session's AMS source address comes from
// the router's Port Connect reply, not a guess. connect issues no ADS
// command itself; callers typically follow with an explicit ReadDeviceInfo
// to confirm the AMS route is actually accepted.
func (s *session) connect(ctx context.Context, localPort uint16) error {
	host := s.targetAddr.NetId.String()
	// The AMS NetId convention (IP.1.1) lets us recover a dialable host from
	// the first four octets when the caller only supplied a NetId.
	dialHost := fmt.Sprintf("%d.%d.%d.%d", s.targetAddr.NetId[0], s.targetAddr.NetId[1], s.targetAddr.NetId[2], s.targetAddr.NetId[3])
	tcpAddr := fmt.Sprintf("%s:%d", dialHost, DefaultTCPPort)

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", tcpAddr)
	if err != nil {
		s.log.Warn("ads: dial failed", "target", host, "addr", tcpAddr, "error", err)
		return fmt.Errorf("ads: dial %s: %w", tcpAddr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.dialTimeout))
	}
	localAddr, err := registerAmsPort(conn, localPort)
	_ = conn.SetDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("ads: register ams port: %w", err)
	}

	s.conn = conn
	s.localAddr = localAddr
	s.done = make(chan struct{})
	s.connected.Store(true)

	go s.readLoop()

	s.log.Info("ads: connected", "target", s.targetAddr, "local", s.localAddr)
	return nil
}

// registerAmsPort performs the AMS/TCP Port Connect handshake: a
// pre-ADS-header exchange distinguished from ordinary ADS frames by the
// AMS/TCP header's command field (0x0001 instead of 0, which decodeFrame
// treats as a plain command frame). The client sends its desired local ADS
// port (0 lets the router pick one), and the router's reply carries the
// AMS NetId/port this session must use as its source address for every
// subsequent ADS request — it is the router's assignment, not the dialed
// socket's local IP, that TwinCAT actually routes responses back to.
func registerAmsPort(conn net.Conn, localPort uint16) (AmsAddress, error) {
	req := make([]byte, tcpHeaderSize+2)
	binary.LittleEndian.PutUint16(req[0:2], AmsTcpCmdPortConnect)
	binary.LittleEndian.PutUint32(req[2:6], 2)
	binary.LittleEndian.PutUint16(req[6:8], localPort)
	if _, err := conn.Write(req); err != nil {
		return AmsAddress{}, fmt.Errorf("port connect request: %w", err)
	}

	header := make([]byte, tcpHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return AmsAddress{}, fmt.Errorf("port connect response header: %w", err)
	}
	cmdId := binary.LittleEndian.Uint16(header[0:2])
	length := binary.LittleEndian.Uint32(header[2:6])
	if cmdId != AmsTcpCmdPortConnect {
		return AmsAddress{}, fmt.Errorf("%w: unexpected port connect response command 0x%04x", ErrProtocol, cmdId)
	}
	if length < 8 {
		return AmsAddress{}, fmt.Errorf("%w: short port connect response (%d bytes)", ErrProtocol, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return AmsAddress{}, fmt.Errorf("port connect response body: %w", err)
	}

	var netId AmsNetId
	copy(netId[:], body[0:6])
	port := binary.LittleEndian.Uint16(body[6:8])
	return AmsAddress{NetId: netId, Port: port}, nil
}

// nextInvokeId returns the next invoke ID, wrapping past the uint32 max
// back to 1 rather than 0: 0 is reserved and must never be assigned to a
// real request.
func (s *session) nextInvokeId() uint32 {
	for {
		id := s.invokeCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}

// sendCommand writes one ADS request and blocks until its matching response
// arrives, ctx is done, or the request timeout elapses.
func (s *session) sendCommand(ctx context.Context, cmdId uint16, data []byte) ([]byte, error) {
	if !s.connected.Load() {
		return nil, ErrNotConnected
	}

	invokeId := s.nextInvokeId()
	replyCh := make(chan pendingResult, 1)
	s.pending.Store(invokeId, replyCh)
	defer s.pending.Delete(invokeId)

	hdr := amsHeader{
		TargetNetId: s.targetAddr.NetId,
		TargetPort:  s.targetAddr.Port,
		SourceNetId: s.localAddr.NetId,
		SourcePort:  s.localAddr.Port,
		CommandId:   cmdId,
		StateFlags:  StateFlagRequest,
		InvokeId:    invokeId,
	}
	wire := encodeFrame(hdr, data)

	s.log.Debug("ads: tx", "invokeId", invokeId, "cmd", cmdId, "data", logging.HexPreview(wire))

	s.writeMu.Lock()
	_, err := s.conn.Write(wire)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ads: write request: %w", err)
	}

	timeout := s.requestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		if res.err != nil {
			return nil, res.err
		}
		if res.frame.header.ErrorCode != 0 {
			return nil, &AdsError{Code: res.frame.header.ErrorCode}
		}
		return res.frame.data, nil
	case <-timer.C:
		return nil, fmt.Errorf("ads: invokeId %d: %w", invokeId, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrDisconnected
	}
}

// readLoop is the sole reader of the connection. It decodes frames as they
// arrive and either completes a pending request or forwards an unsolicited
// DeviceNotification to the notifications channel.
func (s *session) readLoop() {
	dec := frameDecoder{}
	buf := make([]byte, 64*1024)

	fail := func(err error) {
		s.connected.Store(false)
		s.failPending(err)
		s.closeOnce.Do(func() { close(s.done) })
		if cb := s.onDisconnect; cb != nil {
			cb(err)
		}
	}

	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			s.log.Warn("ads: read loop exiting", "target", s.targetAddr, "error", err)
			fail(fmt.Errorf("%w: %v", ErrDisconnected, err))
			return
		}

		frames, err := dec.feed(buf[:n])
		for _, f := range frames {
			s.dispatch(f)
		}
		if err != nil {
			s.log.Warn("ads: frame decode error", "error", err)
			fail(fmt.Errorf("%w: %v", ErrProtocol, err))
			return
		}
	}
}

func (s *session) dispatch(f frame) {
	if f.header.CommandId == CmdDeviceNotification {
		select {
		case s.notifications <- f:
		default:
			s.log.Warn("ads: notification channel full, dropping frame")
		}
		return
	}

	ch, ok := s.pending.Load(f.header.InvokeId)
	if !ok {
		s.log.Debug("ads: response for unknown invokeId", "invokeId", f.header.InvokeId)
		return
	}
	ch <- pendingResult{frame: f}
}

func (s *session) failPending(err error) {
	s.pending.Range(func(id uint32, ch chan pendingResult) bool {
		ch <- pendingResult{err: err}
		return true
	})
}

// close tears down the connection. Safe to call more than once.
func (s *session) close() error {
	s.connected.Store(false)
	s.closeOnce.Do(func() { close(s.done) })
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *session) isConnected() bool {
	return s.connected.Load()
}
