// Package docstore indexes the decoded documents of one run and selects the
// reference consensus.
package docstore

import (
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dirdoctor/internal/model"
	"dirdoctor/internal/netstatus"
)

// DefaultFreshness is how old a consensus may be and still count as fresh.
const DefaultFreshness = time.Hour

// Store holds the documents of one run. Only Build and Extend change it;
// accessors hand out copies of the indexes.
type Store struct {
	consensuses map[string]*model.ConsensusDocument
	votes       map[string]*model.VoteDocument
	reference   *model.ConsensusDocument
	records     []model.FetchRecord
}

// Build decodes every successful record. Decode failures are logged and the
// document is dropped.
func Build(records []model.FetchRecord, log *logrus.Entry) *Store {
	s := &Store{
		consensuses: make(map[string]*model.ConsensusDocument),
		votes:       make(map[string]*model.VoteDocument),
		records:     records,
	}
	for _, rec := range records {
		if rec.Outcome != model.Success {
			continue
		}
		s.add(rec, log.WithFields(logrus.Fields{"peer": rec.Peer, "class": rec.Class}))
	}
	s.reference = selectReference(s.consensuses)
	return s
}

// Extend adds the documents of further records (the vote phase) to s.
func (s *Store) Extend(records []model.FetchRecord, log *logrus.Entry) {
	for _, rec := range records {
		s.records = append(s.records, rec)
		if rec.Outcome != model.Success {
			continue
		}
		s.add(rec, log.WithFields(logrus.Fields{"peer": rec.Peer, "class": rec.Class}))
	}
	s.reference = selectReference(s.consensuses)
}

func (s *Store) add(rec model.FetchRecord, log *logrus.Entry) {
	sc := netstatus.NewScanner(rec.Body, rec.Class)
	for sc.More() {
		d, err := sc.Next()
		if err != nil {
			log.WithError(err).Warn("dropping undecodable document")
			if errors.Is(err, netstatus.ErrTruncated) || errors.Is(err, netstatus.ErrUnknownDocument) {
				break
			}
			continue
		}

		switch doc := d.(type) {
		case *model.ConsensusDocument:
			doc.PublishingPeer = rec.Peer
			if prev, ok := s.consensuses[rec.Peer]; ok && !doc.ValidAfter.After(prev.ValidAfter) {
				continue
			}
			s.consensuses[rec.Peer] = doc
		case *model.VoteDocument:
			if prev, ok := s.votes[doc.PublishingPeer]; ok && !doc.ValidAfter.After(prev.ValidAfter) {
				continue
			}
			s.votes[doc.PublishingPeer] = doc
		case *model.Unrecognized:
			log.WithField("type", doc.Type).Warn("ignoring unexpected document type")
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, netstatus.ErrTruncated) {
		log.WithError(err).Warn("stopped reading response")
	}
}

// selectReference returns the consensus with the latest valid-after. Ties go
// to the alphabetically first serving peer.
func selectReference(byPeer map[string]*model.ConsensusDocument) *model.ConsensusDocument {
	var ref *model.ConsensusDocument
	for _, peer := range sortedKeys(byPeer) {
		c := byPeer[peer]
		if ref == nil || c.ValidAfter.After(ref.ValidAfter) {
			ref = c
		}
	}
	return ref
}

// Reference is the most recent consensus, or nil when none was received.
func (s *Store) Reference() *model.ConsensusDocument {
	return s.reference
}

// Consensuses maps serving peer to the consensus it returned. The map is a
// copy; the documents are shared and must not be modified.
func (s *Store) Consensuses() map[string]*model.ConsensusDocument {
	return maps.Clone(s.consensuses)
}

// Consensus returns the consensus served by peer.
func (s *Store) Consensus(peer string) (*model.ConsensusDocument, bool) {
	c, ok := s.consensuses[peer]
	return c, ok
}

// ConsensusPeers lists the peers that returned a consensus, sorted.
func (s *Store) ConsensusPeers() []string {
	return sortedKeys(s.consensuses)
}

// Votes maps authoring authority to its vote, as a copy.
func (s *Store) Votes() map[string]*model.VoteDocument {
	return maps.Clone(s.votes)
}

// Vote returns the vote authored by peer.
func (s *Store) Vote(peer string) (*model.VoteDocument, bool) {
	v, ok := s.votes[peer]
	return v, ok
}

// VotePeers lists the authors of the received votes, sorted.
func (s *Store) VotePeers() []string {
	return sortedKeys(s.votes)
}

// Records returns every fetch record the store was built from.
func (s *Store) Records() []model.FetchRecord {
	return append([]model.FetchRecord(nil), s.records...)
}

// Empty reports whether no consensus was received.
func (s *Store) Empty() bool {
	return s.reference == nil
}

// IsFresh reports whether validAfter lies within window before now.
func IsFresh(validAfter, now time.Time, window time.Duration) bool {
	return !validAfter.Before(now.Add(-window))
}

// FreshConsensuses returns the consensuses that pass IsFresh, keyed by peer.
func (s *Store) FreshConsensuses(now time.Time, window time.Duration) map[string]*model.ConsensusDocument {
	out := make(map[string]*model.ConsensusDocument, len(s.consensuses))
	for peer, c := range s.consensuses {
		if IsFresh(c.ValidAfter, now, window) {
			out[peer] = c
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
