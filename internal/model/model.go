package model

import (
	"net"
	"strconv"
	"time"
)

// Peer is a directory authority we fetch documents from.
type Peer struct {
	Nickname string
	Host     string
	DirPort  int
	// Identity is the expected relay identity fingerprint (upper-case hex).
	// Empty when unknown.
	Identity           string
	BandwidthAuthority bool
}

// Addr returns host:dirport.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.DirPort))
}

// DocumentClass says which resource a fetch asked for.
type DocumentClass int

const (
	ClassConsensus DocumentClass = iota
	ClassVote
)

func (c DocumentClass) String() string {
	switch c {
	case ClassConsensus:
		return "consensus"
	case ClassVote:
		return "vote"
	default:
		return "unknown"
	}
}

// Outcome of a single fetch.
type Outcome int

const (
	Success Outcome = iota
	Timeout
	TransportError
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case TransportError:
		return "transport_error"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchRecord is the immutable result of one request.
type FetchRecord struct {
	Peer     string
	URL      string
	Class    DocumentClass
	Body     []byte // nil unless Outcome == Success
	Start    time.Time
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// StatusEntry is one relay line group ("r", "s", "v", "w") of a status document.
type StatusEntry struct {
	Fingerprint string
	Nickname    string
	Address     string
	DirPort     int
	Flags       map[string]bool
	Version     string
	// Measured is the bandwidth-scanner measurement; HasMeasured reports
	// whether the "w" line carried one.
	Measured    int64
	HasMeasured bool
}

// HasFlag reports whether the entry carries flag.
func (e StatusEntry) HasFlag(flag string) bool {
	return e.Flags[flag]
}

// Descriptor is the closed set of things the decoder can produce:
// *ConsensusDocument, *VoteDocument or *Unrecognized.
type Descriptor interface {
	descriptor()
}

// ConsensusDocument is a decoded network-status consensus.
type ConsensusDocument struct {
	// PublishingPeer is the authority that served this copy.
	PublishingPeer            string
	ValidAfter                time.Time
	ConsensusMethod           int
	RecommendedClientVersions []string
	RecommendedServerVersions []string
	Params                    map[string]int
	// DirSources maps authority nickname to its v3 identity fingerprint.
	DirSources map[string]string
	// Signatures holds the nicknames of signing authorities. Signatures
	// whose identity matches no dir-source keep the hex identity.
	Signatures    map[string]bool
	StatusEntries []StatusEntry
}

// VoteDocument is a decoded network-status vote.
type VoteDocument struct {
	// PublishingPeer is the nickname of the authority that authored the vote.
	PublishingPeer            string
	Identity                  string
	ValidAfter                time.Time
	DirKeyExpires             time.Time
	SupportedMethods          map[int]bool
	RecommendedClientVersions []string
	RecommendedServerVersions []string
	Params                    map[string]int
	StatusEntries             []StatusEntry
}

// Unrecognized is a well-formed document of a type we do not check.
type Unrecognized struct {
	Type string
}

func (*ConsensusDocument) descriptor() {}
func (*VoteDocument) descriptor()      {}
func (*Unrecognized) descriptor()      {}
