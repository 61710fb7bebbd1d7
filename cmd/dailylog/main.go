package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/dailylog/internal/archive"
	"github.com/stellarlinkco/dailylog/internal/clock"
	"github.com/stellarlinkco/dailylog/internal/config"
	"github.com/stellarlinkco/dailylog/internal/runner"
	"github.com/stellarlinkco/dailylog/internal/scheduler"
	"github.com/stellarlinkco/dailylog/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "dailylog",
	Short: "dailylog - cross-AI daily activity log for your notes",
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render yesterday's log block without writing anything",
	RunE:  runPreview,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate yesterday's log and insert it into the daily note",
	RunE:  runGenerate,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run in the background and generate the log once per day",
	RunE:  runDaemon,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize the config file",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dailylog configuration and run state",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history [date]",
	Short: "List archived runs, or show one run's markdown by date (YYYY-MM-DD)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum runs to list")
	rootCmd.AddCommand(previewCmd, generateCmd, daemonCmd, onboardCmd, statusCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRunner assembles a Runner from the on-disk config and state.
// The returned cleanup closes the archive, if one was opened.
func buildRunner(cfg *config.Config) (*runner.Runner, func(), error) {
	st := state.NewStore(config.StatePath())
	if err := st.Load(); err != nil {
		return nil, nil, fmt.Errorf("load run state: %w", err)
	}

	cleanup := func() {}
	var opts []runner.Option
	if cfg.Archive.Enabled && cfg.Archive.DBPath != "" {
		store, err := archive.Open(cfg.Archive.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, runner.WithArchive(store))
		cleanup = func() { store.Close() }
	}

	r, err := runner.New(cfg, st, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return r, cleanup, nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st := state.NewStore(config.StatePath())
	r, err := runner.New(cfg, st)
	if err != nil {
		return err
	}

	block, dateKey, err := r.Preview(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Log for %s:\n\n%s\n", dateKey, block)
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	r, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return r.Run(cmd.Context(), true)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	loc, err := clock.LoadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sched := scheduler.New(
		cfg.Schedule.RunAtLocalTime,
		func() *time.Location { return loc },
		r.ShouldRunToday,
		func(ctx context.Context) error { return r.Run(ctx, false) },
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	fmt.Printf("dailylog daemon running, daily log at %s (%s)\n", cfg.Schedule.RunAtLocalTime, loc)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	fmt.Println("shutting down")
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfigTo(cfgPath, config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s: set vault.dir and at least one provider API key\n", cfgPath)
	fmt.Println("  2. Or set DAILYLOG_OPENAI_API_KEY / DAILYLOG_ANTHROPIC_API_KEY / DAILYLOG_GEMINI_API_KEY")
	fmt.Println("  3. Run 'dailylog preview' to test without touching your notes")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Vault: %s\n", cfg.Vault.Dir)
	if cfg.Vault.DailyFolder != "" {
		fmt.Printf("Daily folder: %s\n", cfg.Vault.DailyFolder)
	}
	fmt.Printf("Schedule: %s", cfg.Schedule.RunAtLocalTime)
	if cfg.Schedule.TimeZone != "" {
		fmt.Printf(" (%s)", cfg.Schedule.TimeZone)
	}
	fmt.Println()
	fmt.Printf("OpenAI: %s (%s)\n", keyDisplay(cfg.Providers.OpenAI.APIKey), cfg.Providers.OpenAI.Model)
	fmt.Printf("Anthropic: %s (%s)\n", keyDisplay(cfg.Providers.Anthropic.APIKey), cfg.Providers.Anthropic.Model)
	fmt.Printf("Gemini: %s (%s)\n", keyDisplay(cfg.Providers.Gemini.APIKey), cfg.Providers.Gemini.Model)
	fmt.Printf("Archive: enabled=%v path=%s\n", cfg.Archive.Enabled, cfg.Archive.DBPath)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Notify.Telegram.Enabled)

	st := state.NewStore(config.StatePath())
	if err := st.Load(); err != nil {
		fmt.Printf("Run state: error (%v)\n", err)
		return nil
	}
	runs := st.Runs()
	if len(runs) == 0 {
		fmt.Println("Run state: no runs recorded")
		return nil
	}
	fmt.Printf("Run state: %d runs recorded\n", len(runs))
	dates := make([]string, 0, len(runs))
	for date := range runs {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > 5 {
		dates = dates[:5]
	}
	for _, date := range dates {
		fmt.Printf("  %s at %s\n", date, runs[date])
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Archive.Enabled || cfg.Archive.DBPath == "" {
		return fmt.Errorf("archive is disabled; enable it in %s", config.ConfigPath())
	}

	store, err := archive.Open(cfg.Archive.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	if len(args) == 1 {
		run, err := store.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no archived run for %s", args[0])
		}
		fmt.Printf("Run %s (%s, %d events):\n\n%s\n", run.DateKey, run.CreatedAt.Format(time.RFC3339), run.EventCount, run.Markdown)
		return nil
	}

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %d events\n", run.DateKey, run.CreatedAt.Format(time.RFC3339), run.EventCount)
	}
	return nil
}

func keyDisplay(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "set"
}
