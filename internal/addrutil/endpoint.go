package addrutil

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// SplitEndpoint parses "host[:port]" as written in authority tables.
//
// Authorities serving directory documents on port 80 are usually listed
// without a port, so a missing port falls back to defaultPort. Unbracketed
// IPv6 addresses with a trailing ":port" are accepted as well.
func SplitEndpoint(addr string, defaultPort int) (string, int, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", 0, fmt.Errorf("empty address")
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, p, err := net.SplitHostPort(a); err == nil {
		port, err := parsePort(p)
		if err != nil {
			return "", 0, fmt.Errorf("address %q: %w", addr, err)
		}
		return h, port, nil
	}

	// Unbracketed IPv6 "host:port": peel off the last ":port".
	if strings.Count(a, ":") > 1 {
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if ip, err := netip.ParseAddr(a[:last]); err == nil {
				port, err := parsePort(a[last+1:])
				if err != nil {
					return "", 0, fmt.Errorf("address %q: %w", addr, err)
				}
				return ip.String(), port, nil
			}
		}
	}

	// Raw IPv6 without port.
	if ip, err := netip.ParseAddr(strings.Trim(a, "[]")); err == nil {
		return ip.String(), defaultPort, nil
	}

	if strings.Contains(a, ":") {
		return "", 0, fmt.Errorf("address %q: cannot split host and port", addr)
	}
	return a, defaultPort, nil
}

// Endpoint renders a canonical "host:port" key. IP hosts are normalised so
// that differently spelled IPv6 addresses compare equal.
func Endpoint(host string, port int) string {
	h := strings.Trim(strings.TrimSpace(host), "[]")
	if ip, err := netip.ParseAddr(h); err == nil {
		h = ip.Unmap().String()
	} else {
		h = strings.ToLower(h)
	}
	return net.JoinHostPort(h, strconv.Itoa(port))
}

// SameEndpoint reports whether two host/port pairs name the same endpoint.
func SameEndpoint(hostA string, portA int, hostB string, portB int) bool {
	return Endpoint(hostA, portA) == Endpoint(hostB, portB)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
