package ads

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/yatesdr/goads/logging"
)

// filetimeEpochOffset is the number of 100ns ticks between the FILETIME
// epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset = 116444736000000000

// filetimeToTime converts a Windows FILETIME (100ns ticks since 1601) to a
// Go time.Time.
func filetimeToTime(ft uint64) time.Time {
	unixTicks := int64(ft) - filetimeEpochOffset
	return time.Unix(0, unixTicks*100).UTC()
}

// Notification is one sample delivered by a subscription, decoded against
// the DataType that was active when the subscription was created.
type Notification struct {
	Handle    uint32
	Timestamp time.Time
	Value     Value
}

// subscription tracks one live AddDeviceNotification registration so it can
// be torn down and (after a reconnect) re-established transparently.
type subscription struct {
	handle        uint32
	indexGroup    uint32
	indexOffset   uint32
	attrs         notificationAttributes
	dataType      *DataType
	arena         *DataTypeArena
	objectifyEnum bool
	callback      func(Notification)
}

// subscriptionManager owns every live notification subscription for a
// Client. It re-subscribes everything after a reconnect (server-assigned
// handles do not survive a TCP reconnect) and discards notification frames
// referencing a handle it no longer recognizes.
type subscriptionManager struct {
	log *slog.Logger
	s   *session

	byHandle *xsync.Map[uint32, *subscription]

	deleteUnknown bool

	stopCh chan struct{}
}

func newSubscriptionManager(s *session, log *slog.Logger, deleteUnknown bool) *subscriptionManager {
	if log == nil {
		log = logging.Default()
	}
	return &subscriptionManager{
		log:           log,
		s:             s,
		byHandle:      xsync.NewMap[uint32, *subscription](),
		deleteUnknown: deleteUnknown,
		stopCh:        make(chan struct{}),
	}
}

// subscribe registers a new notification and starts dispatching decoded
// samples to cb.
func (m *subscriptionManager) subscribe(ctx context.Context, indexGroup, indexOffset uint32, dt *DataType, arena *DataTypeArena, objectifyEnum bool, attrs notificationAttributes, cb func(Notification)) (uint32, error) {
	attrs.Length = dt.Size
	handle, err := cmdAddDeviceNotification(ctx, m.s, indexGroup, indexOffset, attrs)
	if err != nil {
		return 0, err
	}

	m.byHandle.Store(handle, &subscription{
		handle:        handle,
		indexGroup:    indexGroup,
		indexOffset:   indexOffset,
		attrs:         attrs,
		dataType:      dt,
		arena:         arena,
		objectifyEnum: objectifyEnum,
		callback:      cb,
	})
	return handle, nil
}

// unsubscribe tears down a subscription by handle.
func (m *subscriptionManager) unsubscribe(ctx context.Context, handle uint32) error {
	m.byHandle.Delete(handle)
	return cmdDeleteDeviceNotification(ctx, m.s, handle)
}

// run consumes the session's notification channel until stopped. It must
// run in its own goroutine for the lifetime of the session.
func (m *subscriptionManager) run() {
	for {
		select {
		case f := <-m.s.notifications:
			m.handleFrame(f)
		case <-m.stopCh:
			return
		}
	}
}

func (m *subscriptionManager) stop() {
	close(m.stopCh)
}

// handleFrame parses a DeviceNotification frame's stream/sample structure
// and dispatches each sample to its subscription's callback.
//
// Wire layout: length u32, stampCount u32, then per stamp: timestamp
// (FILETIME, u64), sampleCount u32, then per sample: handle u32, size u32,
// data.
func (m *subscriptionManager) handleFrame(f frame) {
	buf := f.data
	if len(buf) < 8 {
		m.log.Warn("ads: short DeviceNotification frame")
		return
	}
	stampCount := binary.LittleEndian.Uint32(buf[4:8])
	off := 8

	for i := uint32(0); i < stampCount; i++ {
		if off+12 > len(buf) {
			m.log.Warn("ads: truncated notification stamp")
			return
		}
		timestamp := filetimeToTime(binary.LittleEndian.Uint64(buf[off : off+8]))
		sampleCount := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		off += 12

		for j := uint32(0); j < sampleCount; j++ {
			if off+8 > len(buf) {
				m.log.Warn("ads: truncated notification sample")
				return
			}
			handle := binary.LittleEndian.Uint32(buf[off : off+4])
			size := binary.LittleEndian.Uint32(buf[off+4 : off+8])
			off += 8
			if off+int(size) > len(buf) {
				m.log.Warn("ads: notification sample data truncated")
				return
			}
			data := buf[off : off+int(size)]
			off += int(size)

			sub, ok := m.byHandle.Load(handle)
			if !ok {
				if m.deleteUnknown {
					m.log.Warn("ads: notification for unknown handle, automatically deleted", "handle", handle)
					go func(h uint32) {
						ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = cmdDeleteDeviceNotification(ctx, m.s, h)
					}(handle)
				} else {
					m.log.Warn("ads: notification for unknown handle, use unsubscribe() to stop receiving it", "handle", handle)
				}
				continue
			}

			val, err := FromRaw(data, sub.dataType, sub.arena, sub.objectifyEnum)
			if err != nil {
				m.log.Warn("ads: failed to decode notification sample", "handle", handle, "error", err)
				continue
			}
			sub.callback(Notification{Handle: handle, Timestamp: timestamp, Value: val})
		}
	}
}

// resubscribeAll re-issues AddDeviceNotification for every tracked
// subscription against a freshly (re)connected session, replacing
// server-assigned handles that don't survive a TCP reconnect. A subscription
// that fails to re-attach is logged, dropped from the tracked set, and the
// rest are still re-issued; the first such failure is returned. Call this
// immediately after a reconnect succeeds.
func (m *subscriptionManager) resubscribeAll(ctx context.Context) error {
	var subs []*subscription
	m.byHandle.Range(func(_ uint32, sub *subscription) bool {
		subs = append(subs, sub)
		return true
	})

	m.byHandle.Clear()
	var firstErr error
	for _, sub := range subs {
		newHandle, err := cmdAddDeviceNotification(ctx, m.s, sub.indexGroup, sub.indexOffset, sub.attrs)
		if err != nil {
			m.log.Warn("ads: failed to re-subscribe notification", "indexGroup", sub.indexGroup, "indexOffset", sub.indexOffset, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("resubscribe %d/%d: %w", sub.indexGroup, sub.indexOffset, err)
			}
			continue
		}
		sub.handle = newHandle
		m.byHandle.Store(newHandle, sub)
	}
	return firstErr
}
