package check

import "sort"

// Kind is a consistency-violation category.
type Kind int

const (
	NoConsensusKnown Kind = iota
	ConsensusDownloadTimeout
	ConsensusNotFresh
	ConsensusMissingVotes
	ConsensusMissingSignatures
	ConsensusMethodNotSupported
	DifferentRecommendedClientVersions
	DifferentRecommendedServerVersions
	UnknownConsensusParams
	ConflictingConsensusParams
	CertificateExpiresInThreeMonths
	CertificateExpiresInTwoMonths
	CertificateExpiresInTwoWeeks
	VotesMissing
	BandwidthScannerResultsMissing
	MissingAuthorities
	UnexpectedFingerprints
	BandwidthScannerResultsUnexpected
	BandwidthScannersOutOfSync
	ExtraAuthorities
	UnrecommendedVersions

	numKinds
)

var kindNames = [numKinds]string{
	NoConsensusKnown:                   "NoConsensusKnown",
	ConsensusDownloadTimeout:           "ConsensusDownloadTimeout",
	ConsensusNotFresh:                  "ConsensusNotFresh",
	ConsensusMissingVotes:              "ConsensusMissingVotes",
	ConsensusMissingSignatures:         "ConsensusMissingSignatures",
	ConsensusMethodNotSupported:        "ConsensusMethodNotSupported",
	DifferentRecommendedClientVersions: "DifferentRecommendedClientVersions",
	DifferentRecommendedServerVersions: "DifferentRecommendedServerVersions",
	UnknownConsensusParams:             "UnknownConsensusParams",
	ConflictingConsensusParams:         "ConflictingConsensusParams",
	CertificateExpiresInThreeMonths:    "CertificateExpiresInThreeMonths",
	CertificateExpiresInTwoMonths:      "CertificateExpiresInTwoMonths",
	CertificateExpiresInTwoWeeks:       "CertificateExpiresInTwoWeeks",
	VotesMissing:                       "VotesMissing",
	BandwidthScannerResultsMissing:     "BandwidthScannerResultsMissing",
	MissingAuthorities:                 "MissingAuthorities",
	UnexpectedFingerprints:             "UnexpectedFingerprints",
	BandwidthScannerResultsUnexpected:  "BandwidthScannerResultsUnexpected",
	BandwidthScannersOutOfSync:         "BandwidthScannersOutOfSync",
	ExtraAuthorities:                   "ExtraAuthorities",
	UnrecommendedVersions:              "UnrecommendedVersions",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Unknown"
	}
	return kindNames[k]
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Warnings maps each violated kind to its sorted, deduplicated details.
// A kind is present only when it fired.
type Warnings map[Kind][]string

// Kinds returns the fired kinds in declaration order.
func (w Warnings) Kinds() []Kind {
	out := make([]Kind, 0, len(w))
	for k := range w {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether k fired.
func (w Warnings) Has(k Kind) bool {
	_, ok := w[k]
	return ok
}
