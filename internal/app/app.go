package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NoorahSmith/ViewCounter-d/internal/app/version"
	"github.com/NoorahSmith/ViewCounter-d/internal/config"
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Falling back to system environment variables.")
	}

	return NewRootCommand().ExecuteContext(context.Background())
}

func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "viewcounter",
		Short:         "Dispatch repeated page visits through rotating proxies",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./viewcounter.{yaml,json,toml})")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCommand(&configPath),
		newValidateCommand(&configPath),
		newSourcesCommand(&configPath),
		newHistoryCommand(&configPath),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads the config file and environment, appends targets given as
// arguments, applies flag overrides and configures logging.
func loadConfig(flags *pflag.FlagSet, path string, args []string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Targets = append(cfg.Targets, args...)
	applyOverrides(flags, &cfg)

	if err := configureLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags == nil {
		return
	}
	if v, ok := changedInt(flags, "units"); ok {
		cfg.TotalUnits = v
	}
	if v, ok := changedInt(flags, "concurrency"); ok {
		cfg.Concurrency = v
	}
	if v, ok := changedString(flags, "executor"); ok {
		cfg.Executor.Kind = v
	}
	if v, ok := changedString(flags, "proxy-mode"); ok {
		cfg.Proxy.Mode = config.ProxyMode(v)
	}
	if v, ok := changedString(flags, "format"); ok {
		cfg.Report.Format = v
	}
	if v, ok := changedString(flags, "output"); ok {
		cfg.Report.Output = v
	}
	if v, ok := changedString(flags, "log-level"); ok {
		cfg.Log.Level = v
	}
}

func changedInt(flags *pflag.FlagSet, name string) (int, bool) {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return 0, false
	}
	v, err := flags.GetInt(name)
	return v, err == nil
}

func changedString(flags *pflag.FlagSet, name string) (string, bool) {
	if f := flags.Lookup(name); f == nil || !f.Changed {
		return "", false
	}
	v, err := flags.GetString(name)
	return v, err == nil
}

func configureLogging(level, format string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(parsed)
	log.SetReportTimestamp(true)

	switch format {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	default:
		log.SetFormatter(log.TextFormatter)
	}
	return nil
}
