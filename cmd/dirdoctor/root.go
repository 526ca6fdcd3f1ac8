package main

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dirdoctor/internal/authority"
	"dirdoctor/internal/config"
	"dirdoctor/internal/logging"
)

const envPrefix = "DIRDOCTOR"

// overrides maps viper keys to the config fields they replace when set on
// the command line or in the environment.
var overrides = map[string]func(*config.Config, *viper.Viper, string){
	"data_dir":      func(c *config.Config, v *viper.Viper, k string) { c.DataDir = v.GetString(k) },
	"log_level":     func(c *config.Config, v *viper.Viper, k string) { c.LogLevel = v.GetString(k) },
	"log_file":      func(c *config.Config, v *viper.Viper, k string) { c.LogFile = v.GetString(k) },
	"textfile":      func(c *config.Config, v *viper.Viper, k string) { c.Textfile = v.GetString(k) },
	"fetch_timeout": func(c *config.Config, v *viper.Viper, k string) { c.FetchTimeout = v.GetDuration(k) },
	"hard_deadline": func(c *config.Config, v *viper.Viper, k string) { c.HardDeadline = v.GetDuration(k) },
	"freshness":     func(c *config.Config, v *viper.Viper, k string) { c.Freshness = v.GetDuration(k) },
	"interval":      func(c *config.Config, v *viper.Viper, k string) { c.Interval = v.GetDuration(k) },
	"listen":        func(c *config.Config, v *viper.Viper, k string) { c.Listen = v.GetString(k) },
	"stun_servers":  func(c *config.Config, v *viper.Viper, k string) { c.STUNServers = v.GetStringSlice(k) },
}

type app struct {
	v   *viper.Viper
	cfg config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:              "dirdoctor",
		Short:            "Tor directory authority consensus health checker",
		SilenceUsage:     true,
		TraverseChildren: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "path to YAML config")
	flags.String("data-dir", "", "directory for state, status files and statistics")
	flags.String("log-level", "", "debug, info, warn, error, fatal, panic")
	flags.String("log-file", "", "copy info and above to this file")
	flags.String("textfile", "", "write Prometheus metrics to this file after every run")
	flags.Duration("fetch-timeout", 0, "per-phase download timeout")
	flags.Duration("hard-deadline", 0, "abort a run that takes longer than this")
	flags.Duration("freshness", 0, "maximum consensus age considered fresh")
	flags.StringSlice("stun-server", nil, "STUN server used to record the vantage address (repeatable)")

	root.AddCommand(
		newRunCmd(a),
		newWatchCmd(a),
		newStatsCmd(a),
		newAuthoritiesCmd(a),
		newVersionCmd(),
	)
	return root
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// load merges the config file, environment and flags, in increasing order
// of precedence, and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := flagKey(f.Name)
		if err := a.v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Read(a.v.GetString("config"))
	if err != nil {
		return err
	}
	for key, apply := range overrides {
		if a.v.IsSet(key) {
			apply(&cfg, a.v, key)
		}
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logging.New(logging.Options{
		Level:     cfg.LogLevel,
		InfoFile:  cfg.LogFile,
		DebugFile: cfg.DebugLogFile,
	})
	a.log.WithFields(logrus.Fields{
		"data_dir":      cfg.DataDir,
		"fetch_timeout": cfg.FetchTimeout,
		"hard_deadline": cfg.HardDeadline,
		"freshness":     cfg.Freshness,
	}).Debug("configuration loaded")
	return nil
}

func (a *app) registry() (authority.Registry, error) {
	peers, err := a.cfg.Peers()
	if err != nil {
		return authority.Registry{}, err
	}
	if peers == nil {
		return authority.Default(), nil
	}
	return authority.New(peers)
}

func flagKey(name string) string {
	if name == "stun-server" {
		return "stun_servers"
	}
	return strings.ReplaceAll(name, "-", "_")
}
