// Package authority holds the static table of directory authorities the
// monitor audits.
package authority

import (
	"fmt"
	"sort"

	"dirdoctor/internal/addrutil"
	"dirdoctor/internal/model"
)

// Registry is an immutable, nickname-ordered set of peers.
type Registry struct {
	peers  []model.Peer
	byNick map[string]int
}

// New builds a registry. Nicknames must be unique.
func New(peers []model.Peer) (Registry, error) {
	sorted := append([]model.Peer(nil), peers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Nickname < sorted[j].Nickname })

	byNick := make(map[string]int, len(sorted))
	for i, p := range sorted {
		if p.Nickname == "" {
			return Registry{}, fmt.Errorf("authority without nickname at %s", p.Addr())
		}
		if _, dup := byNick[p.Nickname]; dup {
			return Registry{}, fmt.Errorf("duplicate authority nickname %q", p.Nickname)
		}
		byNick[p.Nickname] = i
	}
	return Registry{peers: sorted, byNick: byNick}, nil
}

// MustNew is New for static tables.
func MustNew(peers []model.Peer) Registry {
	r, err := New(peers)
	if err != nil {
		panic(err)
	}
	return r
}

// Peers returns a copy of all peers ordered by nickname.
func (r Registry) Peers() []model.Peer {
	return append([]model.Peer(nil), r.peers...)
}

// Len is the number of peers.
func (r Registry) Len() int { return len(r.peers) }

// Nicknames returns the sorted nicknames.
func (r Registry) Nicknames() []string {
	out := make([]string, len(r.peers))
	for i, p := range r.peers {
		out[i] = p.Nickname
	}
	return out
}

// Lookup finds a peer by nickname.
func (r Registry) Lookup(nickname string) (model.Peer, bool) {
	i, ok := r.byNick[nickname]
	if !ok {
		return model.Peer{}, false
	}
	return r.peers[i], true
}

// Contains reports whether nickname is a known peer.
func (r Registry) Contains(nickname string) bool {
	_, ok := r.byNick[nickname]
	return ok
}

// BandwidthAuthorities returns the nicknames of peers expected to run
// bandwidth scanners.
func (r Registry) BandwidthAuthorities() []string {
	var out []string
	for _, p := range r.peers {
		if p.BandwidthAuthority {
			out = append(out, p.Nickname)
		}
	}
	return out
}

// ByEndpoint finds the peer whose directory port is host:port.
func (r Registry) ByEndpoint(host string, port int) (model.Peer, bool) {
	for _, p := range r.peers {
		if addrutil.SameEndpoint(p.Host, p.DirPort, host, port) {
			return p, true
		}
	}
	return model.Peer{}, false
}
