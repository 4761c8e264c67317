package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/NoorahSmith/ViewCounter-d/internal/app/bootstrap"
	"github.com/NoorahSmith/ViewCounter-d/internal/app/version"
	"github.com/NoorahSmith/ViewCounter-d/internal/config"
	"github.com/NoorahSmith/ViewCounter-d/internal/database"
	"github.com/NoorahSmith/ViewCounter-d/internal/report"
)

func newRunCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Validate the configuration, dispatch every unit and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), *configPath, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap.Setup(ctx, cfg)
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer rt.Close()

			log.Info("Starting run", "run", rt.RunID, "targets", len(cfg.Targets), "units", cfg.TotalUnits, "concurrency", cfg.Concurrency, "proxyMode", cfg.Proxy.Mode, "executor", cfg.Executor.Kind)

			stats, runErr := rt.Run(ctx)
			if stats != nil {
				if err := report.NewReporter(cfg.Report.Format, cfg.Report.Output).Generate(stats); err != nil {
					return errors.Join(runErr, fmt.Errorf("write report: %w", err))
				}
				log.Info("Run finished", "run", rt.RunID, "succeeded", stats.Succeeded, "failed", stats.Failed, "aborted", stats.Aborted)
			}
			return runErr
		},
	}

	cmd.Flags().Int("units", 0, "total work units (overrides totalUnits)")
	cmd.Flags().Int("concurrency", 0, "units per batch; 1 runs sequentially")
	cmd.Flags().String("executor", "", "executor kind: http or browser")
	cmd.Flags().String("proxy-mode", "", "none, static, pooled-authenticated or pooled-open")
	cmd.Flags().String("format", "", "report format: text or json")
	cmd.Flags().String("output", "", "report file (default stdout)")
	return cmd
}

func newValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [targets...]",
		Short: "Load and validate the configuration, then print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), *configPath, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(cfg.Redacted()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "configuration valid")
			return nil
		},
	}
}

func newSourcesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Fetch every configured proxy source once and print candidate counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), *configPath, nil)
			if err != nil {
				return err
			}
			if len(cfg.Proxy.Sources) == 0 {
				return fmt.Errorf("%w: proxy.sources is empty", config.ErrInvalidConfig)
			}

			probes, err := bootstrap.ProbeSources(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PRIORITY\tSOURCE\tKIND\tCANDIDATES\tELAPSED\tERROR")
			for _, p := range probes {
				errText := "-"
				if p.Err != nil {
					errText = p.Err.Error()
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", p.Source.Priority, p.Source, p.Source.Kind, p.Candidates, p.Elapsed.Round(time.Millisecond), errText)
			}
			return tw.Flush()
		},
	}
}

func newHistoryCommand(configPath *string) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the visits of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), *configPath, nil)
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return fmt.Errorf("%w: store.dsn (or DATABASE_DSN) is required", config.ErrInvalidConfig)
			}

			store, err := database.Open(cfg.Store.DSN, database.WithAutoMigrate(false))
			if err != nil {
				return err
			}
			defer store.Close()

			return printHistory(cmd, store, runID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the visits of this run")
	return cmd
}

func printHistory(cmd *cobra.Command, store *database.Store, runID string, limit int) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if runID != "" {
		run, err := store.Run(cmd.Context(), runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "UNIT\tSTATUS\tATTEMPTS\tKIND\tPROXY\tTARGET")
		for _, v := range run.Visits {
			proxy := v.ProxyIdentity
			if v.Direct || proxy == "" {
				proxy = "direct"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", v.UnitIndex, v.Status, v.Attempts, dash(v.FailureKind), proxy, v.Target)
		}
		return tw.Flush()
	}

	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "RUN\tSTARTED\tUNITS\tSUCCEEDED\tFAILED\tPROXY MODE\tABORTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%t\n", r.RunID, r.StartedAt.Format(time.RFC3339), r.TotalUnits, r.Succeeded, r.Failed, dash(r.ProxyMode), r.Aborted)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "viewcounter %s\n", info)
			if info.GoVersion != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "go %s\n", info.GoVersion)
			}
		},
	}
}
