package ads

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings configures a Client. It can be built with functional options
// passed to Connect, or loaded from a YAML file shared with the rest of a
// deployment's configuration.
type Settings struct {
	TargetAmsNetId string `yaml:"targetAmsNetId"`
	TargetAdsPort  uint16 `yaml:"targetAdsPort"`
	LocalAdsPort   uint16 `yaml:"localAdsPort"`

	TimeoutMs int `yaml:"timeoutMs"`

	// RawClient disables data-type resolution and value conversion: Read
	// returns the symbol's bytes as a Bytes Value and Write sends
	// value.Bytes() unchanged. Symbols are still looked up (and cached) by
	// name, so symbol information is still uploaded from the target.
	RawClient bool `yaml:"rawClient"`

	// DeleteUnknownSubscriptions causes the client to proactively send
	// DeleteDeviceNotification for any handle a notification frame
	// references that the subscription manager no longer tracks (e.g.
	// left behind by a previous process that crashed without cleaning up).
	DeleteUnknownSubscriptions bool `yaml:"deleteUnknownSubscriptions"`

	// ObjectifyEnumerations decodes enum-typed values as their symbolic
	// member name instead of a bare integer where a match is found.
	ObjectifyEnumerations bool `yaml:"objectifyEnumerations"`

	AutoReconnect         bool `yaml:"autoReconnect"`
	ReconnectIntervalMs    int  `yaml:"reconnectIntervalMs"`
	MaxReconnectIntervalMs int  `yaml:"maxReconnectIntervalMs"`
}

// DefaultSettings returns the settings Connect uses when the caller
// supplies no options: TwinCAT 3 PLC runtime 1, a 5 second request
// timeout, auto-reconnect with 1s-to-30s exponential backoff, stale
// notification handles cleaned up automatically, and enums decoded as
// {name, value} objects.
func DefaultSettings() Settings {
	return Settings{
		TargetAdsPort:              PortTC3PLC1,
		TimeoutMs:                  5000,
		AutoReconnect:              true,
		ReconnectIntervalMs:        1000,
		MaxReconnectIntervalMs:     30000,
		DeleteUnknownSubscriptions: true,
		ObjectifyEnumerations:      true,
	}
}

// LoadSettingsFile reads a YAML-encoded Settings document from path,
// starting from DefaultSettings so a partial file only overrides the
// fields it names.
func LoadSettingsFile(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("ads: read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("ads: parse settings file: %w", err)
	}
	return s, nil
}

func (s Settings) timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (s Settings) reconnectInterval() time.Duration {
	if s.ReconnectIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.ReconnectIntervalMs) * time.Millisecond
}

func (s Settings) maxReconnectInterval() time.Duration {
	if s.MaxReconnectIntervalMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.MaxReconnectIntervalMs) * time.Millisecond
}

// Option is a functional option for Connect, layered on top of Settings so
// callers that just want "connect to this NetId on this port" don't need
// to build a whole Settings value.
type Option func(*Settings)

// WithAmsNetId configures the target AMS Net ID. If not specified, it is
// derived from the dialed IP address using the IP.1.1 convention.
func WithAmsNetId(netId string) Option {
	return func(s *Settings) {
		s.TargetAmsNetId = netId
	}
}

// WithAmsPort configures the target AMS port. Default is 851 (TwinCAT 3 PLC
// runtime 1).
func WithAmsPort(port uint16) Option {
	return func(s *Settings) {
		s.TargetAdsPort = port
	}
}

// WithTimeout configures the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Settings) {
		s.TimeoutMs = int(d / time.Millisecond)
	}
}

// WithRawClient disables data-type resolution and value conversion (see
// Settings.RawClient).
func WithRawClient(raw bool) Option {
	return func(s *Settings) {
		s.RawClient = raw
	}
}

// WithAutoReconnect enables or disables automatic reconnection with
// exponential backoff.
func WithAutoReconnect(enabled bool) Option {
	return func(s *Settings) {
		s.AutoReconnect = enabled
	}
}

// WithSettings replaces the settings outright, for callers that built one
// via LoadSettingsFile.
func WithSettings(settings Settings) Option {
	return func(s *Settings) {
		*s = settings
	}
}
