// Package stunutil discovers the public address the monitoring host is
// seen from, so that reports say where the authorities were probed from.
package stunutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	MappingUnknown    = "unknown"
	MappingVaries     = "varies"
	MappingConsistent = "consistent"
)

// Vantage is the public side of the monitoring host.
type Vantage struct {
	// Address is the first mapped address (ip:port of the STUN socket).
	Address string
	Mapping string
	Servers int
}

// Host returns the IP part of Address.
func (v Vantage) Host() string {
	host, _, err := net.SplitHostPort(v.Address)
	if err != nil {
		return v.Address
	}
	return host
}

func (v Vantage) String() string {
	if v.Address == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s mapping, %d STUN servers)", v.Host(), v.Mapping, v.Servers)
}

// Probe asks each STUN server for our mapped address. It fails only when no
// server answers.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (Vantage, error) {
	if len(servers) == 0 {
		return Vantage{Mapping: MappingUnknown}, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		results = append(results, addr)
	}

	if len(results) == 0 {
		return Vantage{Mapping: MappingUnknown}, lastErr
	}
	return Vantage{Address: results[0], Mapping: Classify(results), Servers: len(results)}, nil
}

// Classify compares the host part of the mapped addresses. Different hosts
// mean outgoing connections may leave from more than one public address.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return MappingUnknown
	}
	first := hostOf(addrs[0])
	for _, addr := range addrs[1:] {
		if hostOf(addr) != first {
			return MappingVaries
		}
	}
	return MappingConsistent
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 2)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
