package netstatus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirdoctor/internal/model"
	"dirdoctor/internal/netstatus/netstatustest"
)

var validAfter = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleConsensus() netstatustest.Consensus {
	moria := netstatustest.Identity("moria1")
	tor26 := netstatustest.Identity("tor26")
	return netstatustest.Consensus{
		ValidAfter:     validAfter,
		Method:         32,
		ClientVersions: []string{"0.4.8.9", "0.4.8.10"},
		ServerVersions: []string{"0.4.8.10"},
		Params:         map[string]int{"circwindow": 1000, "bwauthpid": 1},
		DirSources: []netstatustest.DirSource{
			{Nickname: "moria1", Identity: moria, Address: "128.31.0.39", DirPort: 9131},
			{Nickname: "tor26", Identity: tor26, Address: "86.59.21.38", DirPort: 80},
		},
		Signers: []string{moria, netstatustest.Identity("stranger")},
		Relays: []netstatustest.Relay{
			{Nickname: "moria1", Fingerprint: netstatustest.Identity("relay-moria1"), Address: "128.31.0.39", DirPort: 9131, Flags: []string{"Authority", "Running"}, Version: "0.4.8.10"},
			{Nickname: "exit", Fingerprint: netstatustest.Identity("exit"), Address: "10.0.0.1", DirPort: 0, Flags: []string{"Exit"}, Measured: 500},
		},
	}
}

func TestDecode_Consensus(t *testing.T) {
	t.Parallel()

	docs, err := Decode(sampleConsensus().Bytes(), model.ClassConsensus)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	c, ok := docs[0].(*model.ConsensusDocument)
	require.True(t, ok, "got %T", docs[0])
	assert.Equal(t, validAfter, c.ValidAfter)
	assert.Equal(t, 32, c.ConsensusMethod)
	assert.Equal(t, []string{"0.4.8.9", "0.4.8.10"}, c.RecommendedClientVersions)
	assert.Equal(t, map[string]int{"circwindow": 1000, "bwauthpid": 1}, c.Params)
	assert.Equal(t, map[string]string{
		"moria1": netstatustest.Identity("moria1"),
		"tor26":  netstatustest.Identity("tor26"),
	}, c.DirSources)
	assert.True(t, c.Signatures["moria1"])
	assert.False(t, c.Signatures["tor26"])
	assert.True(t, c.Signatures[netstatustest.Identity("stranger")])

	require.Len(t, c.StatusEntries, 2)
	auth := c.StatusEntries[0]
	assert.Equal(t, netstatustest.Identity("relay-moria1"), auth.Fingerprint)
	assert.Equal(t, "128.31.0.39", auth.Address)
	assert.Equal(t, 9131, auth.DirPort)
	assert.True(t, auth.HasFlag("Authority"))
	assert.Equal(t, "0.4.8.10", auth.Version)
	assert.False(t, auth.HasMeasured)

	exit := c.StatusEntries[1]
	assert.True(t, exit.HasMeasured)
	assert.EqualValues(t, 500, exit.Measured)
}

func TestDecode_Vote(t *testing.T) {
	t.Parallel()

	expires := validAfter.AddDate(0, 2, 0)
	vote := netstatustest.Vote{
		Source:        netstatustest.DirSource{Nickname: "tor26", Identity: netstatustest.Identity("tor26"), Address: "86.59.21.38", DirPort: 80},
		ValidAfter:    validAfter,
		DirKeyExpires: expires,
		Methods:       []int{30, 31, 32},
		Params:        map[string]int{"circwindow": 900},
	}

	docs, err := Decode(vote.Bytes(), model.ClassVote)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	v, ok := docs[0].(*model.VoteDocument)
	require.True(t, ok, "got %T", docs[0])
	assert.Equal(t, "tor26", v.PublishingPeer)
	assert.Equal(t, expires, v.DirKeyExpires)
	assert.Equal(t, map[int]bool{30: true, 31: true, 32: true}, v.SupportedMethods)
	assert.Nil(t, v.RecommendedClientVersions)
	assert.Equal(t, 900, v.Params["circwindow"])
}

func TestScanner_MultipleDocuments(t *testing.T) {
	t.Parallel()

	first := sampleConsensus()
	second := sampleConsensus()
	second.ValidAfter = validAfter.Add(time.Hour)
	body := append(first.Bytes(), second.Bytes()...)

	docs, err := Decode(body, model.ClassConsensus)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, validAfter.Add(time.Hour), docs[1].(*model.ConsensusDocument).ValidAfter)
}

func TestScanner_TruncatedStopsConsumption(t *testing.T) {
	t.Parallel()

	body := append(sampleConsensus().Bytes(), []byte("network-status-version 3\nvote-status consensus\n")...)
	body = append(body, sampleConsensus().Bytes()...)

	s := NewScanner(body, model.ClassConsensus)
	var got int
	var lastErr error
	for s.More() {
		_, err := s.Next()
		if err != nil {
			lastErr = err
			break
		}
		got++
	}
	assert.Equal(t, 1, got)
	assert.True(t, errors.Is(lastErr, ErrTruncated), "err=%v", lastErr)
	assert.False(t, s.More())
}

func TestScanner_FieldErrorDoesNotStopScan(t *testing.T) {
	t.Parallel()

	bad := []byte("network-status-version 3\nvote-status consensus\nvalid-after yesterday\ndirectory-footer\n")
	body := append(bad, sampleConsensus().Bytes()...)

	s := NewScanner(body, model.ClassConsensus)
	require.True(t, s.More())
	_, err := s.Next()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTruncated))

	require.True(t, s.More())
	d, err := s.Next()
	require.NoError(t, err)
	assert.IsType(t, &model.ConsensusDocument{}, d)
}

func TestDecode_EmptyAndForeign(t *testing.T) {
	t.Parallel()

	_, err := Decode(nil, model.ClassVote)
	assert.True(t, errors.Is(err, ErrUnknownDocument))

	docs, err := Decode([]byte("dir-key-certificate-version 3\nfingerprint ABC\n"), model.ClassVote)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, &model.Unrecognized{Type: "dir-key-certificate-version"}, docs[0])
}

func TestIdentityRoundTrip(t *testing.T) {
	t.Parallel()

	fp := netstatustest.Identity("x")
	b64, err := EncodeIdentity(fp)
	require.NoError(t, err)
	back, err := DecodeIdentity(b64)
	require.NoError(t, err)
	assert.Equal(t, fp, back)

	_, err = DecodeIdentity("AAAA")
	assert.Error(t, err)
}
