package ads

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiletimeToTime(t *testing.T) {
	// 2020-01-01T00:00:00Z in FILETIME ticks.
	const ft uint64 = 132223104000000000
	got := filetimeToTime(ft)
	assert.Equal(t, 2020, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 1, got.Day())
}

// notificationFrameData builds the payload of a DeviceNotification frame
// carrying a single stamp with a single sample.
func notificationFrameData(handle uint32, ft uint64, sample []byte) []byte {
	buf := make([]byte, 8+12+8+len(sample))
	total := len(buf) - 4
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], 1) // stampCount
	binary.LittleEndian.PutUint64(buf[8:16], ft)
	binary.LittleEndian.PutUint32(buf[16:20], 1) // sampleCount
	binary.LittleEndian.PutUint32(buf[20:24], handle)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(sample)))
	copy(buf[28:], sample)
	return buf
}

func TestSubscriptionManagerHandleFrameDispatchesToCallback(t *testing.T) {
	s, _ := newTestSession(t)
	mgr := newSubscriptionManager(s, nil, true)

	dt := &DataType{TypeName: "INT", Size: 2, AdsDataType: uint32(TypeInt16)}

	got := make(chan Notification, 1)
	mgr.byHandle.Store(42, &subscription{
		handle:   42,
		dataType: dt,
		callback: func(n Notification) { got <- n },
	})

	data := notificationFrameData(42, 132223104000000000, []byte{0x2A, 0x00})
	mgr.handleFrame(frame{data: data})

	select {
	case n := <-got:
		assert.Equal(t, uint32(42), n.Handle)
		assert.Equal(t, int64(42), n.Value.I64())
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestSubscriptionManagerHandleFrameUnknownHandleDeletesWhenConfigured(t *testing.T) {
	s, serverConn := newTestSession(t)
	mgr := newSubscriptionManager(s, nil, true)

	requests := respondN(t, serverConn, func(f frame) []byte {
		resp := make([]byte, 4)
		binary.LittleEndian.PutUint32(resp[0:4], 0)
		return resp
	})

	data := notificationFrameData(999, 132223104000000000, []byte{0x01})
	mgr.handleFrame(frame{data: data})

	require.Eventually(t, func() bool {
		return requests.Load() >= 1
	}, time.Second, 10*time.Millisecond, "unknown handle should trigger a DeleteDeviceNotification")
}

func TestSubscriptionManagerSubscribeAndUnsubscribe(t *testing.T) {
	s, serverConn := newTestSession(t)
	mgr := newSubscriptionManager(s, nil, false)

	resp := make([]byte, 8)
	binary.LittleEndian.PutUint32(resp[0:4], 0)
	binary.LittleEndian.PutUint32(resp[4:8], 7)
	respondOnce(t, serverConn, resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dt := &DataType{TypeName: "INT", Size: 2, AdsDataType: uint32(TypeInt16)}
	attrs := notificationAttributes{TransMode: AdsTransModeOnChange, CycleTimeMs: 100}

	handle, err := mgr.subscribe(ctx, IndexGroupSymbolValueByHandle, 1, dt, nil, false, attrs, func(Notification) {})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), handle)

	_, ok := mgr.byHandle.Load(7)
	require.True(t, ok)

	delResp := make([]byte, 4)
	binary.LittleEndian.PutUint32(delResp[0:4], 0)
	respondOnce(t, serverConn, delResp)

	err = mgr.unsubscribe(ctx, 7)
	require.NoError(t, err)

	_, ok = mgr.byHandle.Load(7)
	assert.False(t, ok)
}

func TestSubscriptionManagerResubscribeAllReplacesHandles(t *testing.T) {
	s, serverConn := newTestSession(t)
	mgr := newSubscriptionManager(s, nil, false)

	dt := &DataType{TypeName: "INT", Size: 2, AdsDataType: uint32(TypeInt16)}
	mgr.byHandle.Store(1, &subscription{
		handle:      1,
		indexGroup:  IndexGroupSymbolValueByHandle,
		indexOffset: 1,
		dataType:    dt,
		callback:    func(Notification) {},
	})
	mgr.byHandle.Store(2, &subscription{
		handle:      2,
		indexGroup:  IndexGroupSymbolValueByHandle,
		indexOffset: 2,
		dataType:    dt,
		callback:    func(Notification) {},
	})

	var next uint32 = 100
	respondN(t, serverConn, func(f frame) []byte {
		resp := make([]byte, 8)
		binary.LittleEndian.PutUint32(resp[0:4], 0)
		binary.LittleEndian.PutUint32(resp[4:8], next)
		next++
		return resp
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := mgr.resubscribeAll(ctx)
	require.NoError(t, err)

	_, ok := mgr.byHandle.Load(1)
	assert.False(t, ok, "old handles must not survive resubscribe")

	count := 0
	mgr.byHandle.Range(func(uint32, *subscription) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)
}
