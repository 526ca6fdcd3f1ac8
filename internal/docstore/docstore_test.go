package docstore

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirdoctor/internal/logging"
	"dirdoctor/internal/model"
	"dirdoctor/internal/netstatus/netstatustest"
)

var now = time.Date(2024, 3, 1, 12, 20, 0, 0, time.UTC)

func consensusAt(validAfter time.Time) []byte {
	return netstatustest.Consensus{
		ValidAfter: validAfter,
		Method:     32,
		DirSources: []netstatustest.DirSource{
			{Nickname: "moria1", Identity: netstatustest.Identity("moria1"), Address: "128.31.0.39", DirPort: 9131},
		},
		Signers: []string{netstatustest.Identity("moria1")},
	}.Bytes()
}

func voteBy(nick string) []byte {
	return netstatustest.Vote{
		Source:        netstatustest.DirSource{Nickname: nick, Identity: netstatustest.Identity(nick), Address: "10.0.0.1", DirPort: 80},
		ValidAfter:    now.Add(-20 * time.Minute),
		DirKeyExpires: now.AddDate(0, 6, 0),
		Methods:       []int{31, 32},
	}.Bytes()
}

func success(peer string, class model.DocumentClass, body []byte) model.FetchRecord {
	return model.FetchRecord{Peer: peer, Class: class, Outcome: model.Success, Body: body}
}

func TestBuild_SelectsLatestReference(t *testing.T) {
	t.Parallel()

	s := Build([]model.FetchRecord{
		success("moria1", model.ClassConsensus, consensusAt(now.Add(-2*time.Hour))),
		success("tor26", model.ClassConsensus, consensusAt(now.Add(-20*time.Minute))),
		success("gabelmoo", model.ClassConsensus, consensusAt(now.Add(-80*time.Minute))),
		{Peer: "dizum", Class: model.ClassConsensus, Outcome: model.Timeout},
	}, logging.NewTestLogger(t))

	require.False(t, s.Empty())
	assert.Equal(t, []string{"gabelmoo", "moria1", "tor26"}, s.ConsensusPeers())
	assert.Equal(t, "tor26", s.Reference().PublishingPeer)
	assert.Len(t, s.Records(), 4)

	fresh := s.FreshConsensuses(now, DefaultFreshness)
	assert.Len(t, fresh, 1)
	assert.Contains(t, fresh, "tor26")
}

func TestBuild_ReferenceTieBreak(t *testing.T) {
	t.Parallel()

	va := now.Add(-20 * time.Minute)
	s := Build([]model.FetchRecord{
		success("tor26", model.ClassConsensus, consensusAt(va)),
		success("bastet", model.ClassConsensus, consensusAt(va)),
	}, logging.NewTestLogger(t))

	assert.Equal(t, "bastet", s.Reference().PublishingPeer)
}

func TestBuild_DropsUndecodable(t *testing.T) {
	t.Parallel()

	truncated := consensusAt(now)
	truncated = truncated[:bytes.Index(truncated, []byte("directory-footer"))]
	truncated = append(truncated, []byte("-----BEGIN SIGNATURE-----\n")...)

	s := Build([]model.FetchRecord{
		success("moria1", model.ClassConsensus, truncated),
		success("tor26", model.ClassConsensus, []byte("")),
		success("dizum", model.ClassConsensus, []byte("router foo 1.2.3.4 9001 0 80\n")),
	}, logging.NewTestLogger(t))

	assert.True(t, s.Empty())
	assert.Nil(t, s.Reference())
	assert.Empty(t, s.Consensuses())
}

func TestExtend_IndexesVotesByAuthor(t *testing.T) {
	t.Parallel()

	log := logging.NewTestLogger(t)
	s := Build([]model.FetchRecord{
		success("moria1", model.ClassConsensus, consensusAt(now.Add(-20*time.Minute))),
	}, log)

	// Votes are fetched from whichever peer answered; the author comes
	// from the document itself.
	s.Extend([]model.FetchRecord{
		success("moria1", model.ClassVote, voteBy("tor26")),
		success("moria1", model.ClassVote, voteBy("gabelmoo")),
		{Peer: "moria1", Class: model.ClassVote, Outcome: model.TransportError},
	}, log)

	assert.Equal(t, []string{"gabelmoo", "tor26"}, s.VotePeers())
	v, ok := s.Vote("tor26")
	require.True(t, ok)
	assert.Equal(t, netstatustest.Identity("tor26"), v.Identity)
	assert.True(t, v.SupportedMethods[32])
	assert.Len(t, s.Records(), 4)
	assert.Equal(t, "moria1", s.Reference().PublishingPeer)
}

func TestStore_AccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	s := Build([]model.FetchRecord{
		success("tor26", model.ClassConsensus, consensusAt(now.Add(-20*time.Minute))),
	}, logging.NewTestLogger(t))
	s.Extend([]model.FetchRecord{success("tor26", model.ClassVote, voteBy("moria1"))}, logging.NewTestLogger(t))

	delete(s.Consensuses(), "tor26")
	delete(s.Votes(), "moria1")
	recs := s.Records()
	recs[0].Peer = "mallory"

	assert.Equal(t, []string{"tor26"}, s.ConsensusPeers())
	assert.Equal(t, []string{"moria1"}, s.VotePeers())
	assert.Equal(t, "tor26", s.Records()[0].Peer)
}

func TestIsFresh(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFresh(now, now, time.Hour))
	assert.True(t, IsFresh(now.Add(-time.Hour), now, time.Hour))
	assert.False(t, IsFresh(now.Add(-time.Hour-time.Second), now, time.Hour))
	assert.True(t, IsFresh(now.Add(time.Minute), now, time.Hour))
}
