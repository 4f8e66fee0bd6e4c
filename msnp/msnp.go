// Package msnp implements the MSNP11 wire protocol: command framing and
// parsing, request/response correlation over notification and switchboard
// connections, event classification, and the MSNSLP/P2P binary layer used
// for display picture transfers.
package msnp

import (
	"net"
	"strconv"
)

const (
	// ProtocolVersion is the only dialect this module speaks.
	ProtocolVersion = "MSNP11"

	// TransportBufferReadSize is the socket read chunk used by connections.
	// Official clients read notification and switchboard sockets in 1664
	// byte slices and servers size their write bursts accordingly.
	TransportBufferReadSize = 1664

	// DefaultPort is the notification server port used when a redirect or
	// configuration omits one.
	DefaultPort = 1863

	// DefaultClientCapabilities is the capabilities bitfield sent in CHG
	// for a client that renders ink and nothing exotic.
	DefaultClientCapabilities uint64 = 0x40000000
)

// WireDebug enables logging of raw protocol traffic. Password material never
// travels on NS or SB sockets, so this is safe outside of Passport exchanges.
var WireDebug bool

// ParseAddr splits a host:port pair as found in XFR and RNG arguments.
// A missing or malformed port falls back to DefaultPort, matching how
// official clients treated sloppy dispatch servers.
func ParseAddr(addr string) (host string, port int) {
	host, pstr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, DefaultPort
	}

	port, err = strconv.Atoi(pstr)
	if err != nil {
		return host, DefaultPort
	}
	return host, port
}
