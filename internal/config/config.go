package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dirdoctor/internal/addrutil"
	"dirdoctor/internal/model"
)

const (
	DefaultDataDir      = "out"
	DefaultFetchTimeout = 60 * time.Second
	DefaultHardDeadline = 5 * time.Minute
	DefaultFreshness    = time.Hour
	DefaultStatsWindow  = 7 * 24 * time.Hour
	DefaultInterval     = time.Hour
	DefaultLogLevel     = "info"
	DefaultDirPort      = 80

	// STUNTimeout bounds each vantage probe.
	STUNTimeout = 5 * time.Second
)

// DefaultKnownParams are the consensus parameters authorities may vote on
// without triggering an unknown-parameter notice.
var DefaultKnownParams = []string{
	"AuthDirNumSRVAgreements",
	"CircuitPriorityHalflifeMsec",
	"DoSCircuitCreationEnabled",
	"DoSConnectionEnabled",
	"DoSConnectionMaxConcurrentCount",
	"DoSRefuseSingleHopClientRendezvous",
	"GuardLifetime",
	"KISTSchedRunInterval",
	"KISTSockBufSizeFactor",
	"NumDirectoryGuards",
	"NumEntryGuards",
	"NumNTorsPerTAP",
	"Support022HiddenServices",
	"UseNTorHandshake",
	"UseOptimisticData",
	"cbtclosequantile",
	"cbtdisabled",
	"cbtinitialtimeout",
	"cbtmaxtimeouts",
	"cbtmincircs",
	"cbtmintimeout",
	"cbtnummodes",
	"cbtquantile",
	"cbtrecentcount",
	"cbttestfreq",
	"cc_alg",
	"circwindow",
	"hs_service_max_rdv_failures",
	"max-consensus-age-to-cache-for-diff",
	"pb_disablepct",
	"perconnbwburst",
	"perconnbwrate",
	"refuseunknownexits",
	"sendme_accept_min_version",
	"sendme_emit_min_version",
	"try-diff-for-consensus-newer-than",
	"usecreatefast",
}

// DefaultParamPrefixes are parameter namespaces owned by bandwidth scanners.
var DefaultParamPrefixes = []string{"bwauth"}

// Config holds all settings of a dirdoctor run.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	StateFile   string `yaml:"state_file"`
	StatusDir   string `yaml:"status_dir"`
	StatsFile   string `yaml:"stats_file"`
	WebsiteFile string `yaml:"website_file"`
	// Textfile, when set, receives Prometheus metrics in text exposition
	// format after every run.
	Textfile string `yaml:"textfile,omitempty"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	HardDeadline time.Duration `yaml:"hard_deadline"`
	Freshness    time.Duration `yaml:"freshness"`
	StatsWindow  time.Duration `yaml:"stats_window"`
	Interval     time.Duration `yaml:"interval"`
	Listen       string        `yaml:"listen,omitempty"`

	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file,omitempty"`
	DebugLogFile string `yaml:"debug_log_file,omitempty"`

	STUNServers   []string `yaml:"stun_servers,omitempty"`
	KnownParams   []string `yaml:"known_params"`
	ParamPrefixes []string `yaml:"param_prefixes"`

	// Authorities replaces the built-in authority table when non-empty.
	Authorities []AuthorityConfig `yaml:"authorities,omitempty"`
}

// AuthorityConfig is one directory authority entry.
type AuthorityConfig struct {
	Nickname           string `yaml:"nickname"`
	Address            string `yaml:"address"`
	Fingerprint        string `yaml:"fingerprint,omitempty"`
	BandwidthAuthority bool   `yaml:"bandwidth_authority,omitempty"`
}

// Load reads and parses a YAML config file. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Read parses a YAML config file without filling in defaults, so callers
// can overlay flags before derived paths are computed.
func Read(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if floor := MinHardDeadline(cfg.FetchTimeout); cfg.HardDeadline < floor {
		return fmt.Errorf("hard_deadline (%s) must cover both fetch phases and the STUN probe (at least %s)", cfg.HardDeadline, floor)
	}
	if cfg.Freshness <= 0 {
		return fmt.Errorf("freshness must be positive")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	seen := map[string]bool{}
	for i, a := range cfg.Authorities {
		if a.Nickname == "" {
			return fmt.Errorf("authorities[%d].nickname is required", i)
		}
		if seen[a.Nickname] {
			return fmt.Errorf("authorities[%d]: duplicate nickname %q", i, a.Nickname)
		}
		seen[a.Nickname] = true
		if _, _, err := addrutil.SplitEndpoint(a.Address, DefaultDirPort); err != nil {
			return fmt.Errorf("authorities[%d] (%s): %w", i, a.Nickname, err)
		}
		if a.Fingerprint != "" && !isHexFingerprint(a.Fingerprint) {
			return fmt.Errorf("authorities[%d] (%s): fingerprint must be 40 hex characters", i, a.Nickname)
		}
	}
	return nil
}

// MinHardDeadline is the shortest hard deadline that lets a run finish both
// fetch phases and the vantage probe.
func MinHardDeadline(fetchTimeout time.Duration) time.Duration {
	return 2*fetchTimeout + STUNTimeout
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(cfg.DataDir, "state", "last-warned")
	}
	if cfg.StatusDir == "" {
		cfg.StatusDir = filepath.Join(cfg.DataDir, "status")
	}
	if cfg.StatsFile == "" {
		cfg.StatsFile = filepath.Join(cfg.DataDir, "download-stats.csv")
	}
	if cfg.WebsiteFile == "" {
		cfg.WebsiteFile = filepath.Join(cfg.DataDir, "website", "consensus-health.html")
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.HardDeadline == 0 {
		cfg.HardDeadline = DefaultHardDeadline
	}
	if cfg.Freshness == 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.StatsWindow == 0 {
		cfg.StatsWindow = DefaultStatsWindow
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.KnownParams == nil {
		cfg.KnownParams = append([]string(nil), DefaultKnownParams...)
	}
	if cfg.ParamPrefixes == nil {
		cfg.ParamPrefixes = append([]string(nil), DefaultParamPrefixes...)
	}
}

// AllWarningsFile is the path of the artifact listing every current warning.
func (c Config) AllWarningsFile() string {
	return filepath.Join(c.StatusDir, "all-warnings")
}

// NewWarningsFile is the path of the artifact listing not-yet-reported warnings.
func (c Config) NewWarningsFile() string {
	return filepath.Join(c.StatusDir, "new-warnings")
}

// Peers converts the configured authorities. It returns nil when the file
// does not override the built-in table.
func (c Config) Peers() ([]model.Peer, error) {
	if len(c.Authorities) == 0 {
		return nil, nil
	}
	peers := make([]model.Peer, 0, len(c.Authorities))
	for _, a := range c.Authorities {
		host, port, err := addrutil.SplitEndpoint(a.Address, DefaultDirPort)
		if err != nil {
			return nil, fmt.Errorf("authority %s: %w", a.Nickname, err)
		}
		peers = append(peers, model.Peer{
			Nickname:           a.Nickname,
			Host:               host,
			DirPort:            port,
			Identity:           strings.ToUpper(a.Fingerprint),
			BandwidthAuthority: a.BandwidthAuthority,
		})
	}
	return peers, nil
}

func isHexFingerprint(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
