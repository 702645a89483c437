package ads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"

	"github.com/yatesdr/goads/logging"
)

// symbolCache lazily loads and caches SymbolInfo and DataType records,
// keyed by lowercase name. Concurrent lookups of the same name collapse
// into one network round trip via singleflight. checkSymbolVersion clears
// the whole cache when the PLC's symbol version has changed (a project
// download/online-change on the target); the Client builds a fresh cache on
// every (re)connect and does not call checkSymbolVersion while connected, so
// a change made during a connection is not detected.
type symbolCache struct {
	log *slog.Logger
	s   *session

	symbols *xsync.Map[string, *SymbolInfo]
	sf      singleflight.Group

	arenaMu sync.Mutex
	arena   *DataTypeArena

	lastSymbolVersion byte
}

func newSymbolCache(s *session, log *slog.Logger) *symbolCache {
	if log == nil {
		log = logging.Default()
	}
	return &symbolCache{
		log:     log,
		s:       s,
		symbols: xsync.NewMap[string, *SymbolInfo](),
		arena:   NewDataTypeArena(),
	}
}

// invalidate drops every cached symbol and data type, e.g. after a
// reconnect or a detected symbol-version change on the target.
func (c *symbolCache) invalidate() {
	c.symbols.Clear()
	c.arenaMu.Lock()
	c.arena = NewDataTypeArena()
	c.arenaMu.Unlock()
}

// getSymbol returns the SymbolInfo for name, fetching and caching it on
// first use.
func (c *symbolCache) getSymbol(ctx context.Context, name string) (*SymbolInfo, error) {
	key := strings.ToLower(name)
	if info, ok := c.symbols.Load(key); ok {
		return info, nil
	}

	v, err, _ := c.sf.Do("symbol:"+key, func() (interface{}, error) {
		if info, ok := c.symbols.Load(key); ok {
			return info, nil
		}
		resp, err := cmdReadWrite(ctx, c.s, IndexGroupSymbolInfoByNameEx, 0, 4096, []byte(name+"\x00"))
		if err != nil {
			var adsErr *AdsError
			if isAdsError(err, &adsErr) && adsErr.Code == ErrDeviceSymbolNotFound {
				return nil, fmt.Errorf("%s: %w", name, ErrSymbolNotFound)
			}
			return nil, err
		}
		info, _, err := parseSymbolInfo(resp)
		if err != nil {
			return nil, err
		}
		c.symbols.Store(key, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SymbolInfo), nil
}

// getDataType returns the DataType for a named PLC type, fetching and
// caching the whole subItem tree on first use.
func (c *symbolCache) getDataType(ctx context.Context, name string) (*DataType, error) {
	key := strings.ToLower(name)

	c.arenaMu.Lock()
	if dt, ok := c.arena.Lookup(key); ok {
		c.arenaMu.Unlock()
		return dt, nil
	}
	c.arenaMu.Unlock()

	v, err, _ := c.sf.Do("datatype:"+key, func() (interface{}, error) {
		c.arenaMu.Lock()
		if dt, ok := c.arena.Lookup(key); ok {
			c.arenaMu.Unlock()
			return dt, nil
		}
		c.arenaMu.Unlock()

		resp, err := cmdReadWrite(ctx, c.s, IndexGroupDataTypeInfoByNameEx, 0, 64*1024, []byte(name+"\x00"))
		if err != nil {
			return nil, err
		}

		c.arenaMu.Lock()
		idx, _, err := parseDataTypeTree(resp, c.arena)
		if err != nil {
			c.arenaMu.Unlock()
			return nil, err
		}
		dt := c.arena.Get(idx)
		c.arenaMu.Unlock()
		return dt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DataType), nil
}

// checkSymbolVersion reads the target's current symbol version and, if it
// differs from the last observed value, invalidates the cache. Call this
// after a reconnect and periodically while connected; TwinCAT bumps the
// symbol version on every project download.
func (c *symbolCache) checkSymbolVersion(ctx context.Context) error {
	resp, err := cmdRead(ctx, c.s, IndexGroupSymbolVersion, 0, 1)
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return fmt.Errorf("%w: symbol version response empty", ErrProtocol)
	}
	version := resp[0]
	if version != c.lastSymbolVersion {
		c.log.Info("ads: symbol version changed, invalidating cache", "old", c.lastSymbolVersion, "new", version)
		c.invalidate()
		c.lastSymbolVersion = version
	}
	return nil
}

func isAdsError(err error, target **AdsError) bool {
	for err != nil {
		if ae, ok := err.(*AdsError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
