package ads

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/yatesdr/goads/logging"
)

// DiscoveredDevice contains identity information about a discovered Beckhoff/TwinCAT device.
type DiscoveredDevice struct {
	IP          net.IP // Device IP address
	Port        uint16 // ADS port (48898)
	AmsNetId    string // AMS Net ID if discovered
	ProductName string // Product name if available
	Connected   bool   // True if successfully connected and identified
}

// String returns a human-readable summary of the device.
func (d *DiscoveredDevice) String() string {
	if d.AmsNetId != "" {
		return fmt.Sprintf("Beckhoff TwinCAT at %s:%d (AMS: %s)", d.IP, d.Port, d.AmsNetId)
	}
	return fmt.Sprintf("Beckhoff TwinCAT at %s:%d", d.IP, d.Port)
}

// Discover scans a list of IP addresses for Beckhoff/TwinCAT devices by
// attempting an ADS handshake (ReadDeviceInfo) over the session transport on
// TCP port 48898.
//
// ips is a list of IP addresses to probe.
// timeout is the connection timeout per device (e.g., 500ms).
// concurrency is the number of parallel probes (e.g., 20).
func Discover(ips []net.IP, timeout time.Duration, concurrency int) []DiscoveredDevice {
	if len(ips) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 20
	}

	log := logging.Default()
	log.Debug("ads: discover starting", "ips", len(ips), "concurrency", concurrency, "timeout", timeout)

	var (
		results []DiscoveredDevice
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, concurrency)
		scanned int
	)

	for _, ip := range ips {
		wg.Add(1)
		sem <- struct{}{}

		go func(ip net.IP) {
			defer wg.Done()
			defer func() { <-sem }()

			device := probeADS(ip, timeout, log)
			if device != nil {
				mu.Lock()
				results = append(results, *device)
				mu.Unlock()
			}
			mu.Lock()
			scanned++
			if scanned%50 == 0 {
				log.Debug("ads: discover progress", "scanned", scanned, "total", len(ips), "found", len(results))
			}
			mu.Unlock()
		}(ip)
	}

	wg.Wait()
	log.Debug("ads: discover complete", "scanned", len(ips), "found", len(results))
	return results
}

// DiscoverSubnet scans a subnet for Beckhoff/TwinCAT devices.
// cidr is in the format "192.168.1.0/24".
func DiscoverSubnet(cidr string, timeout time.Duration, concurrency int) ([]DiscoveredDevice, error) {
	ips, err := expandCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return Discover(ips, timeout, concurrency), nil
}

// probeADS attempts to connect to a Beckhoff device and identify it using the
// same session transport the Client uses, rather than a bespoke connection.
func probeADS(ip net.IP, timeout time.Duration, log *slog.Logger) *DiscoveredDevice {
	netId, err := AmsNetIdFromIP(ip.String())
	if err != nil {
		return nil
	}
	targetAddr := AmsAddress{NetId: netId, Port: PortTC3PLC1}

	sess := newSession(targetAddr, timeout, timeout, log)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sess.connect(ctx, 0); err != nil {
		return nil
	}
	defer sess.close()

	info, err := cmdReadDeviceInfo(ctx, sess)
	if err != nil {
		var adsErr *AdsError
		if isAdsError(err, &adsErr) {
			// Connected and spoke ADS, but the target rejected the route
			// (unknown AMS NetId, port not routed, etc).
			return &DiscoveredDevice{
				IP:          ip,
				Port:        DefaultTCPPort,
				AmsNetId:    netId.String(),
				ProductName: "Beckhoff TwinCAT",
				Connected:   true,
			}
		}
		return &DiscoveredDevice{
			IP:          ip,
			Port:        DefaultTCPPort,
			ProductName: "Beckhoff TwinCAT (unconfirmed)",
			Connected:   false,
		}
	}

	productName := fmt.Sprintf("%s v%d.%d.%d", info.DeviceName, info.MajorVersion, info.MinorVersion, info.BuildVersion)
	if info.DeviceName == "" {
		productName = fmt.Sprintf("TwinCAT v%d.%d.%d", info.MajorVersion, info.MinorVersion, info.BuildVersion)
	}

	return &DiscoveredDevice{
		IP:          ip,
		Port:        DefaultTCPPort,
		AmsNetId:    netId.String(),
		ProductName: productName,
		Connected:   true,
	}
}

// expandCIDR expands a CIDR notation to a list of IP addresses.
func expandCIDR(cidr string) ([]net.IP, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR: %w", err)
	}

	var ips []net.IP
	for ip := ip.Mask(ipnet.Mask); ipnet.Contains(ip); inc(ip) {
		// Skip network and broadcast addresses for /24 and larger
		ones, bits := ipnet.Mask.Size()
		if bits-ones >= 8 {
			if ip[len(ip)-1] == 0 || ip[len(ip)-1] == 255 {
				continue
			}
		}
		ipCopy := make(net.IP, len(ip))
		copy(ipCopy, ip)
		ips = append(ips, ipCopy)
	}

	return ips, nil
}

// inc increments an IP address.
func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
