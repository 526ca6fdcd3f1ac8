package check

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"dirdoctor/internal/authority"
	"dirdoctor/internal/docstore"
	"dirdoctor/internal/logging"
	"dirdoctor/internal/model"
	"dirdoctor/internal/netstatus/netstatustest"
)

var (
	now            = time.Date(2024, 3, 1, 12, 20, 0, 0, time.UTC)
	clientVersions = []string{"0.4.8.9", "0.4.8.10"}
	serverVersions = []string{"0.4.8.10"}
	testOptions    = Options{
		KnownParams:   []string{"circwindow"},
		ParamPrefixes: []string{"bwauth"},
		Freshness:     time.Hour,
	}
)

// fixture describes a healthy network of three authorities. Tests break
// one thing and look at what fires.
type fixture struct {
	peers       []model.Peer
	consensuses map[string]*netstatustest.Consensus
	votes       map[string]*netstatustest.Vote
}

func newFixture() *fixture {
	f := &fixture{
		consensuses: make(map[string]*netstatustest.Consensus),
		votes:       make(map[string]*netstatustest.Vote),
	}
	for i, nick := range []string{"alpha", "bravo", "charlie"} {
		f.peers = append(f.peers, model.Peer{
			Nickname:           nick,
			Host:               fmt.Sprintf("10.0.0.%d", i+1),
			DirPort:            80,
			Identity:           netstatustest.Identity("relay-" + nick),
			BandwidthAuthority: nick != "charlie",
		})
	}

	var sources []netstatustest.DirSource
	var signers []string
	var relays []netstatustest.Relay
	for _, p := range f.peers {
		sources = append(sources, netstatustest.DirSource{
			Nickname: p.Nickname,
			Identity: netstatustest.Identity(p.Nickname),
			Address:  p.Host,
			DirPort:  p.DirPort,
		})
		signers = append(signers, netstatustest.Identity(p.Nickname))
		relays = append(relays, netstatustest.Relay{
			Nickname:    p.Nickname,
			Fingerprint: p.Identity,
			Address:     p.Host,
			DirPort:     p.DirPort,
			Flags:       []string{"Authority", "Running", "V2Dir"},
			Version:     "0.4.8.10",
		})
	}

	for i, p := range f.peers {
		f.consensuses[p.Nickname] = &netstatustest.Consensus{
			ValidAfter:     now.Add(-20 * time.Minute),
			Method:         32,
			ClientVersions: append([]string(nil), clientVersions...),
			ServerVersions: append([]string(nil), serverVersions...),
			Params:         map[string]int{"circwindow": 1000},
			DirSources:     append([]netstatustest.DirSource(nil), sources...),
			Signers:        append([]string(nil), signers...),
			Relays:         append([]netstatustest.Relay(nil), relays...),
		}
		var measured []netstatustest.Relay
		if p.BandwidthAuthority {
			measured = scanned(10)
		}
		f.votes[p.Nickname] = &netstatustest.Vote{
			Source:         sources[i],
			ValidAfter:     now.Add(-20 * time.Minute),
			DirKeyExpires:  now.AddDate(1, 0, 0),
			Methods:        []int{31, 32},
			ClientVersions: append([]string(nil), clientVersions...),
			ServerVersions: append([]string(nil), serverVersions...),
			Params:         map[string]int{"circwindow": 1000},
			Relays:         measured,
		}
	}
	return f
}

func scanned(n int) []netstatustest.Relay {
	out := make([]netstatustest.Relay, n)
	for i := range out {
		name := fmt.Sprintf("relay%d", i)
		out[i] = netstatustest.Relay{
			Nickname:    name,
			Fingerprint: netstatustest.Identity(name),
			Address:     fmt.Sprintf("192.0.2.%d", i+1),
			Flags:       []string{"Fast", "Running"},
			Measured:    int64(100 + i),
		}
	}
	return out
}

func (f *fixture) eachConsensus(fn func(c *netstatustest.Consensus)) {
	for _, c := range f.consensuses {
		fn(c)
	}
}

func (f *fixture) registry() authority.Registry {
	return authority.MustNew(f.peers)
}

func (f *fixture) store(t *testing.T) *docstore.Store {
	t.Helper()
	log := logging.NewTestLogger(t)

	var consensusRecs []model.FetchRecord
	for _, nick := range sortedKeys(f.consensuses) {
		consensusRecs = append(consensusRecs, model.FetchRecord{
			Peer: nick, Class: model.ClassConsensus, Outcome: model.Success, Body: f.consensuses[nick].Bytes(),
		})
	}
	s := docstore.Build(consensusRecs, log)

	var voteRecs []model.FetchRecord
	for _, nick := range sortedKeys(f.votes) {
		voteRecs = append(voteRecs, model.FetchRecord{
			Peer: "alpha", Class: model.ClassVote, Outcome: model.Success, Body: f.votes[nick].Bytes(),
		})
	}
	s.Extend(voteRecs, log)
	return s
}

func (f *fixture) validate(t *testing.T) Warnings {
	t.Helper()
	return Validate(f.store(t), f.registry(), testOptions, now)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
