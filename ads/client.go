package ads

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/yatesdr/goads/logging"
)

// DeviceInfo describes the runtime a Client is connected to.
type DeviceInfo struct {
	MajorVersion uint8
	MinorVersion uint8
	BuildVersion uint16
	DeviceName   string
}

func (d *DeviceInfo) String() string {
	if d == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s v%d.%d.%d", d.DeviceName, d.MajorVersion, d.MinorVersion, d.BuildVersion)
}

// Client is the public entry point for talking to one Beckhoff TwinCAT PLC
// over ADS. It owns a transport session, the symbol/type cache, the
// notification subscription manager, and the handle table, and supervises
// reconnection when the connection drops.
type Client struct {
	log      *slog.Logger
	settings Settings

	targetAddr AmsAddress

	mu   sync.Mutex
	sess *session

	cache *symbolCache
	subs  *subscriptionManager
	events *eventBus

	handles *xsync.Map[string, uint32]

	deviceInfo atomic.Pointer[DeviceInfo]

	closed          atomic.Bool
	reconnectCancel context.CancelFunc
}

// Connect dials a Beckhoff TwinCAT PLC at address (an IP or hostname; port
// 48898 is used for the AMS/TCP handshake regardless of what's in address)
// and verifies the route by reading its device info.
func Connect(address string, opts ...Option) (*Client, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	targetNetId := AmsNetId{}
	if settings.TargetAmsNetId != "" {
		targetNetId, err = ParseAmsNetId(settings.TargetAmsNetId)
		if err != nil {
			return nil, fmt.Errorf("ads: parse target AMS NetId: %w", err)
		}
	} else {
		targetNetId, err = AmsNetIdFromIP(host)
		if err != nil {
			return nil, fmt.Errorf("ads: derive target AMS NetId from %q: %w", host, err)
		}
	}
	if settings.TargetAdsPort == 0 {
		settings.TargetAdsPort = PortTC3PLC1
	}

	log := logging.Default()
	targetAddr := AmsAddress{NetId: targetNetId, Port: settings.TargetAdsPort}

	c := &Client{
		log:        log,
		settings:   settings,
		targetAddr: targetAddr,
		events:     newEventBus(),
		handles:    xsync.NewMap[string, uint32](),
	}

	if err := c.dial(); err != nil {
		return nil, err
	}

	if settings.AutoReconnect {
		ctx, cancel := context.WithCancel(context.Background())
		c.reconnectCancel = cancel
		go c.superviseReconnect(ctx)
	}

	return c, nil
}

// dial establishes (or re-establishes) the session, cache, and subscription
// manager, and confirms the route with ReadDeviceInfo.
func (c *Client) dial() error {
	sess := newSession(c.targetAddr, c.settings.timeout(), c.settings.timeout(), c.log)
	sess.onDisconnect = func(err error) {
		c.events.publish(Event{Kind: EventDisconnected, Err: err})
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.settings.timeout())
	defer cancel()
	if err := sess.connect(ctx, c.settings.LocalAdsPort); err != nil {
		return err
	}

	info, err := cmdReadDeviceInfo(ctx, sess)
	if err != nil {
		sess.close()
		return fmt.Errorf("ads: verify connection: %w", err)
	}

	c.mu.Lock()
	c.sess = sess
	c.cache = newSymbolCache(sess, c.log)
	c.subs = newSubscriptionManager(sess, c.log, c.settings.DeleteUnknownSubscriptions)
	c.mu.Unlock()

	go c.subs.run()

	c.deviceInfo.Store(&DeviceInfo{
		MajorVersion: info.MajorVersion,
		MinorVersion: info.MinorVersion,
		BuildVersion: info.BuildVersion,
		DeviceName:   info.DeviceName,
	})

	c.events.publish(Event{Kind: EventConnected})
	return nil
}

// superviseReconnect watches for disconnect events and redials with
// exponential backoff (1s baseline, 30s cap), re-subscribing every live
// notification once the new session is up.
func (c *Client) superviseReconnect(ctx context.Context) {
	disconnected, unsubscribe := c.events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-disconnected:
			if ev.Kind != EventDisconnected || c.closed.Load() {
				continue
			}
			c.events.publish(Event{Kind: EventReconnecting})
			c.reconnectWithBackoff(ctx)
		}
	}
}

func (c *Client) reconnectWithBackoff(ctx context.Context) {
	backoff := c.settings.reconnectInterval()
	max := c.settings.maxReconnectInterval()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if c.closed.Load() {
			return
		}

		if err := c.dial(); err != nil {
			c.log.Warn("ads: reconnect attempt failed", "target", c.targetAddr, "error", err)
			backoff *= 2
			if backoff > max {
				backoff = max
			}
			continue
		}

		c.mu.Lock()
		cache := c.cache
		subs := c.subs
		c.mu.Unlock()
		cache.invalidate()
		c.handles.Clear()

		if err := subs.resubscribeAll(ctx); err != nil {
			c.log.Warn("ads: failed to re-subscribe all notifications after reconnect", "error", err)
		}

		c.events.publish(Event{Kind: EventReconnected})
		return
	}
}

// Close releases every acquired variable handle, tears down the session,
// and stops the reconnect supervisor.
func (c *Client) Close() {
	if c == nil || c.closed.Swap(true) {
		return
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}

	c.mu.Lock()
	sess, subs := c.sess, c.subs
	c.mu.Unlock()

	if sess != nil && sess.isConnected() {
		var toRelease []uint32
		c.handles.Range(func(_ string, h uint32) bool {
			toRelease = append(toRelease, h)
			return true
		})
		if len(toRelease) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), c.settings.timeout())
			errs := sumDeleteHandles(ctx, sess, toRelease)
			cancel()
			for _, err := range errs {
				if err != nil {
					c.log.Debug("ads: failed to release handle on close", "error", err)
				}
			}
		}
	}

	if subs != nil {
		subs.stop()
	}
	if sess != nil {
		sess.close()
	}
}

// IsConnected reports whether the underlying session currently believes it
// has a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	return sess != nil && sess.isConnected()
}

// DeviceInfo returns the cached device info captured at connect time.
func (c *Client) DeviceInfo() *DeviceInfo {
	return c.deviceInfo.Load()
}

// Identity is an alias for DeviceInfo, matching the vocabulary other ADS
// clients use for the same operation.
func (c *Client) Identity() *DeviceInfo {
	return c.DeviceInfo()
}

// Events returns a channel of lifecycle events and an unsubscribe function.
func (c *Client) Events() (<-chan Event, func()) {
	return c.events.Subscribe()
}

// Subscribe registers a change notification on a symbol and invokes cb for
// every sample the PLC sends. The returned handle can be passed to
// Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, symbolName string, cycleTimeMs uint32, cb func(Notification)) (uint32, error) {
	_, cache, subs := c.current()
	info, err := cache.getSymbol(ctx, symbolName)
	if err != nil {
		return 0, err
	}
	handle, err := c.acquireHandle(ctx, symbolName)
	if err != nil {
		return 0, err
	}

	dt, arena, err := c.resolveType(ctx, info)
	if err != nil {
		return 0, err
	}

	attrs := notificationAttributes{
		TransMode:   AdsTransModeOnChange,
		CycleTimeMs: cycleTimeMs,
		MaxDelayMs:  cycleTimeMs,
	}
	return subs.subscribe(ctx, IndexGroupSymbolValueByHandle, handle, dt, arena, c.settings.ObjectifyEnumerations, attrs, cb)
}

// Unsubscribe cancels a notification previously returned by Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, handle uint32) error {
	_, _, subs := c.current()
	return subs.unsubscribe(ctx, handle)
}

func (c *Client) current() (*session, *symbolCache, *subscriptionManager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.cache, c.subs
}

func (c *Client) acquireHandle(ctx context.Context, symbolName string) (uint32, error) {
	key := strings.ToLower(symbolName)
	if h, ok := c.handles.Load(key); ok {
		return h, nil
	}
	sess, _, _ := c.current()
	resp, err := cmdReadWrite(ctx, sess, IndexGroupSymbolHandleByName, 0, 4, []byte(symbolName+"\x00"))
	if err != nil {
		return 0, err
	}
	if len(resp) < 4 {
		return 0, fmt.Errorf("%w: handle response too short", ErrProtocol)
	}
	handle := leUint32(resp)
	c.handles.Store(key, handle)
	return handle, nil
}

// acquireHandles resolves a variable handle for every name, reusing any
// already cached and batching the rest into a single sum-command round
// trip.
func (c *Client) acquireHandles(ctx context.Context, symbolNames []string) ([]uint32, error) {
	handles := make([]uint32, len(symbolNames))
	var missing []string
	var missingIdx []int

	for i, name := range symbolNames {
		key := strings.ToLower(name)
		if h, ok := c.handles.Load(key); ok {
			handles[i] = h
			continue
		}
		missing = append(missing, name)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return handles, nil
	}

	sess, _, _ := c.current()
	if len(missing) == 1 {
		h, err := c.acquireHandle(ctx, missing[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", missing[0], err)
		}
		handles[missingIdx[0]] = h
		return handles, nil
	}

	newHandles, errs := sumCreateHandles(ctx, sess, missing)
	for i, name := range missing {
		if errs[i] != nil {
			return nil, fmt.Errorf("%s: %w", name, errs[i])
		}
		handles[missingIdx[i]] = newHandles[i]
		c.handles.Store(strings.ToLower(name), newHandles[i])
	}
	return handles, nil
}

func (c *Client) resolveType(ctx context.Context, info *SymbolInfo) (*DataType, *DataTypeArena, error) {
	_, cache, _ := c.current()
	dt, err := cache.getDataType(ctx, info.TypeName)
	if err != nil {
		// Fall back to a synthetic scalar DataType built straight from the
		// symbol record, for primitive types TwinCAT doesn't bother
		// uploading a full DataType entry for.
		dt = &DataType{
			Size:        info.Size,
			AdsDataType: info.AdsDataType,
			TypeName:    info.TypeName,
			ArrayInfo:   info.ArrayInfo,
		}
		return dt, cache.arena, nil
	}
	return dt, cache.arena, nil
}

// Read fetches and decodes one symbol's current value. Use ReadAll to batch
// several reads into a single round trip.
func (c *Client) Read(ctx context.Context, symbolName string) (Value, error) {
	results, err := c.ReadAll(ctx, []string{symbolName})
	if err != nil {
		return Value{}, err
	}
	return results[symbolName], nil
}

// ReadAll fetches and decodes several symbols in one sum-command round
// trip when there is more than one name.
func (c *Client) ReadAll(ctx context.Context, symbolNames []string) (map[string]Value, error) {
	sess, cache, _ := c.current()
	if sess == nil {
		return nil, ErrNotConnected
	}

	infos := make([]*SymbolInfo, len(symbolNames))
	for i, name := range symbolNames {
		info, err := cache.getSymbol(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		infos[i] = info
	}
	handles, err := c.acquireHandles(ctx, symbolNames)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Value, len(symbolNames))

	if len(symbolNames) == 1 {
		raw, err := cmdRead(ctx, sess, IndexGroupSymbolValueByHandle, handles[0], infos[0].Size)
		if err != nil {
			return nil, err
		}
		v, err := c.decode(ctx, infos[0], raw)
		if err != nil {
			return nil, err
		}
		out[symbolNames[0]] = v
		return out, nil
	}

	items := make([]sumReadItem, len(symbolNames))
	for i, info := range infos {
		items[i] = sumReadItem{IndexGroup: IndexGroupSymbolValueByHandle, IndexOffset: handles[i], Length: info.Size}
	}
	results, err := sumReadRaw(ctx, sess, items)
	if err != nil {
		return nil, err
	}
	for i, res := range results {
		if res.Error != 0 {
			return nil, fmt.Errorf("%s: %w", symbolNames[i], &AdsError{Code: res.Error})
		}
		v, err := c.decode(ctx, infos[i], res.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbolNames[i], err)
		}
		out[symbolNames[i]] = v
	}
	return out, nil
}

func (c *Client) decode(ctx context.Context, info *SymbolInfo, raw []byte) (Value, error) {
	if c.settings.RawClient {
		return BytesValue(raw), nil
	}
	dt, arena, err := c.resolveType(ctx, info)
	if err != nil {
		return Value{}, err
	}
	return FromRaw(raw, dt, arena, c.settings.ObjectifyEnumerations)
}

// Write encodes and writes a single symbol's value.
func (c *Client) Write(ctx context.Context, symbolName string, value Value) error {
	sess, cache, _ := c.current()
	if sess == nil {
		return ErrNotConnected
	}

	info, err := cache.getSymbol(ctx, symbolName)
	if err != nil {
		return fmt.Errorf("%s: %w", symbolName, err)
	}
	if !info.IsWritable() {
		return fmt.Errorf("%s: %w: symbol is read-only", symbolName, ErrType)
	}
	handle, err := c.acquireHandle(ctx, symbolName)
	if err != nil {
		return err
	}

	var raw []byte
	if c.settings.RawClient {
		raw = value.Bytes()
	} else {
		dt, arena, err := c.resolveType(ctx, info)
		if err != nil {
			return err
		}
		raw, err = ToRaw(value, dt, arena, false)
		if err != nil {
			return fmt.Errorf("%s: %w", symbolName, err)
		}
	}

	return cmdWrite(ctx, sess, IndexGroupSymbolValueByHandle, handle, raw)
}

// ReadState issues ReadState, returning the ADS and device state words.
func (c *Client) ReadState(ctx context.Context) (adsState, deviceState uint16, err error) {
	sess, _, _ := c.current()
	return cmdReadState(ctx, sess)
}

// WriteControl issues WriteControl, e.g. to switch the PLC between RUN and
// STOP.
func (c *Client) WriteControl(ctx context.Context, adsState, deviceState uint16) error {
	sess, _, _ := c.current()
	return cmdWriteControl(ctx, sess, adsState, deviceState, nil)
}

// AllTags uploads the complete symbol table from the target.
func (c *Client) AllTags(ctx context.Context) ([]*SymbolInfo, error) {
	sess, _, _ := c.current()
	if sess == nil {
		return nil, ErrNotConnected
	}

	infoResp, err := cmdReadWrite(ctx, sess, IndexGroupSymbolUploadInfo2, 0, 64, nil)
	if err != nil {
		return nil, fmt.Errorf("ads: upload info: %w", err)
	}
	if len(infoResp) < 8 {
		return nil, fmt.Errorf("%w: short SymbolUploadInfo2 response", ErrProtocol)
	}
	uploadLength := leUint32(infoResp[4:8])

	uploadResp, err := cmdReadWrite(ctx, sess, IndexGroupSymbolUpload, 0, uploadLength, nil)
	if err != nil {
		return nil, fmt.Errorf("ads: upload symbols: %w", err)
	}

	var tags []*SymbolInfo
	buf := uploadResp
	for len(buf) > 0 {
		info, consumed, err := parseSymbolInfo(buf)
		if err != nil || consumed == 0 {
			break
		}
		tags = append(tags, info)
		buf = buf[consumed:]
	}
	return tags, nil
}

// Programs returns the distinct top-level program/instance prefixes (the
// text before the first '.') across every uploaded symbol, e.g. "MAIN" or
// "GVL_Recipes" for a symbol named "GVL_Recipes.ActiveRecipe".
func (c *Client) Programs(ctx context.Context) ([]string, error) {
	tags, err := c.AllTags(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var programs []string
	for _, tag := range tags {
		name := tag.Name
		idx := strings.Index(name, ".")
		if idx <= 0 {
			continue
		}
		prefix := name[:idx]
		if !seen[prefix] {
			seen[prefix] = true
			programs = append(programs, prefix)
		}
	}
	sort.Strings(programs)
	return programs, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
