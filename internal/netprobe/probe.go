// Package netprobe answers a single question: is anything accepting TCP
// connections on a local port right now?
//
// The probe is deliberately dumb. It dials, it closes, it reports. It never
// speaks any protocol: the harness only needs proof an external client could
// connect, and a connection-level failure is the ordinary "not listening"
// case, not an error.
package netprobe

import (
	"context"
	"net"
	"net/netip"
	"time"
)

const dialTimeout = 500 * time.Millisecond

// Probe checks local TCP ports by attempting to open connections to them.
// The zero value probes 127.0.0.1.
type Probe struct {
	// Addr overrides the loopback address, for tests.
	Addr netip.Addr
}

func (p Probe) addrPort(port uint16) netip.AddrPort {
	addr := p.Addr
	if !addr.IsValid() {
		addr = netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.AddrPortFrom(addr, port)
}

// IsListening reports whether a process currently accepts connections on
// port. A closed port returns false, never an error.
func (p Probe) IsListening(port uint16) bool {
	conn, err := net.DialTimeout("tcp", p.addrPort(port).String(), dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// TryConnectRepeatedly polls IsListening up to maxAttempts times with a fixed
// interval between attempts. It returns true on the first success and false
// once attempts are exhausted or ctx is cancelled.
func (p Probe) TryConnectRepeatedly(ctx context.Context, port uint16, maxAttempts int, interval time.Duration) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.IsListening(port) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}
