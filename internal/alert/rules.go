package alert

import (
	"time"

	"dirdoctor/internal/check"
)

// Severity orders messages in the output files.
type Severity int

const (
	Notice Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "ERROR"
	case Warning:
		return "WARNING"
	default:
		return "NOTICE"
	}
}

// Rule says how a warning kind is rendered and how often it may be repeated.
type Rule struct {
	Severity Severity
	// EscalateAbove raises the severity to Error when more than this many
	// details are present. Zero disables escalation.
	EscalateAbove int
	Interval      time.Duration
	Template      string
}

const (
	transient = 150 * time.Minute
	daily     = 24 * time.Hour
)

var rules = map[check.Kind]Rule{
	check.NoConsensusKnown: {
		Severity: Error,
		Template: "No consensus known.",
	},
	check.ConsensusDownloadTimeout: {
		Severity: Warning, EscalateAbove: 3, Interval: transient,
		Template: "The following directory authorities did not return a consensus within a timeout of 60 seconds: ",
	},
	check.ConsensusNotFresh: {
		Severity: Warning, EscalateAbove: 3, Interval: transient,
		Template: "The consensuses published by the following directory authorities are more than 1 hour old and therefore not fresh anymore: ",
	},
	check.ConsensusMissingVotes: {
		Severity: Notice, Interval: transient,
		Template: "The consensuses downloaded from the following authorities are missing votes that are contained in consensuses downloaded from other authorities: ",
	},
	check.ConsensusMissingSignatures: {
		Severity: Notice, Interval: transient,
		Template: "The consensuses downloaded from the following authorities are missing signatures from previously voting authorities: ",
	},
	check.ConsensusMethodNotSupported: {
		Severity: Warning, Interval: daily,
		Template: "The following directory authorities do not support the consensus method that the consensus uses: ",
	},
	check.DifferentRecommendedClientVersions: {
		Severity: Notice, Interval: transient,
		Template: "The following directory authorities recommend other client versions than the consensus: ",
	},
	check.DifferentRecommendedServerVersions: {
		Severity: Notice, Interval: transient,
		Template: "The following directory authorities recommend other server versions than the consensus: ",
	},
	check.UnknownConsensusParams: {
		Severity: Notice, Interval: 330 * time.Minute,
		Template: "The following directory authorities set unknown consensus parameters: ",
	},
	check.ConflictingConsensusParams: {
		Severity: Notice, Interval: 330 * time.Minute,
		Template: "The following directory authorities set conflicting or invalid consensus parameters: ",
	},
	check.CertificateExpiresInThreeMonths: {
		Severity: Notice, Interval: 5 * 7 * daily,
		Template: "The certificates of the following directory authorities expire within the next three months: ",
	},
	check.CertificateExpiresInTwoMonths: {
		Severity: Notice, Interval: 7 * daily,
		Template: "The certificates of the following directory authorities expire within the next two months: ",
	},
	check.CertificateExpiresInTwoWeeks: {
		Severity: Warning, Interval: daily,
		Template: "The certificates of the following directory authorities expire within the next 14 days: ",
	},
	check.VotesMissing: {
		Severity: Warning, Interval: transient,
		Template: "We're missing votes from the following directory authorities: ",
	},
	check.BandwidthScannerResultsMissing: {
		Severity: Warning, EscalateAbove: 1, Interval: transient,
		Template: "The following directory authorities are not reporting bandwidth scanner results: ",
	},
	check.MissingAuthorities: {
		Severity: Warning, Interval: transient,
		Template: "The following authorities are missing from the consensus: ",
	},
	check.UnexpectedFingerprints: {
		Severity: Error, Interval: transient,
		Template: "The following relays running on the IP address and dir port of authorities are using different relay identity keys than expected: ",
	},
	check.BandwidthScannerResultsUnexpected: {
		Severity: Notice, Interval: daily,
		Template: "The following directory authorities are reporting bandwidth scanner results but have not been configured to do so: ",
	},
	check.BandwidthScannersOutOfSync: {
		Severity: Notice, Interval: daily,
		Template: "The following directory authorities are reporting bandwidth scanner results that differ by more than 20% from the average: ",
	},
	check.ExtraAuthorities: {
		Severity: Notice, Interval: daily,
		Template: "The following authorities are in the consensus but not in the configured authority list: ",
	},
	check.UnrecommendedVersions: {
		Severity: Warning, Interval: transient,
		Template: "The following authorities are running unrecommended Tor versions: ",
	},
}

// RuleFor returns the rule of k. Kinds without an entry render as a notice
// repeated daily.
func RuleFor(k check.Kind) Rule {
	if r, ok := rules[k]; ok {
		return r
	}
	return Rule{Severity: Notice, Interval: daily, Template: k.String() + ": "}
}

// MaxInterval is the longest suppression interval of any rule. State older
// than this can no longer suppress anything.
func MaxInterval() time.Duration {
	var max time.Duration
	for _, r := range rules {
		if r.Interval > max {
			max = r.Interval
		}
	}
	return max
}
