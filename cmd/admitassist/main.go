// Admit-Assist - Student onboarding assistant grounded in the admission brochure.
//
// Usage:
//
//	admitassist [flags] <command> [args]
//
// Commands:
//
//	serve                 Start the HTTP server
//	init [dir]            Write a starter config and sample brochure
//	ask <question...>     Send one chat message and print the reply
//	status                Show the student's onboarding milestones
//	stats                 Summarize progress across all stored students
//	reset [milestone...]  Clear milestones (all when none are named)
//	version               Show version information
//
// Flags:
//
//	--config <path>    Path to config file (default: auto-discover)
//	--student <id>     Student to act for (default: student_id from config)
//	-o, --output fmt   Output format: text (default) or json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n1dhiparate/admit-assist/internal/assistant"
	"github.com/n1dhiparate/admit-assist/internal/brochure"
	"github.com/n1dhiparate/admit-assist/internal/buildinfo"
	"github.com/n1dhiparate/admit-assist/internal/config"
	"github.com/n1dhiparate/admit-assist/internal/llm"
	"github.com/n1dhiparate/admit-assist/internal/metrics"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
	"github.com/n1dhiparate/admit-assist/internal/progress"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals holds the persistent flag values shared by every subcommand.
type globals struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	studentID  string
	output     string
}

// run builds the command tree and executes it with args. All I/O goes
// through stdout and stderr so tests can drive the CLI in-process.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "admitassist",
		Short:         "Admit-Assist - student onboarding assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch g.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q (valid: text, json)", g.output)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "path to config file (default: auto-discover)")
	flags.StringVar(&g.studentID, "student", "", "student to act for (default: student_id from config)")
	flags.StringVarP(&g.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(g),
		newInitCmd(g),
		newAskCmd(g),
		newStatusCmd(g),
		newStatsCmd(g),
		newResetCmd(g),
		newVersionCmd(g),
	)
	return root
}

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runVersion(g.stdout, g.output)
		},
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func newAskCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Send one chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			answer := app.service.SubmitMessage(cmd.Context(), app.studentID, strings.Join(args, " "))
			if g.output == "json" {
				return writeJSON(g.stdout, answer)
			}
			fmt.Fprintln(g.stdout, answer.Reply)
			if answer.Source != "" {
				fmt.Fprintf(g.stdout, "\nSource: %s\n", answer.Source)
			}
			for _, m := range answer.NewlyCompleted {
				fmt.Fprintf(g.stdout, "Completed: %s\n", m)
			}
			return nil
		},
	}
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the student's onboarding milestones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			status := app.service.Status(cmd.Context(), app.studentID)
			if g.output == "json" {
				return writeJSON(g.stdout, status)
			}
			printStatus(g.stdout, app.studentID, status)
			return nil
		},
	}
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize progress across all stored students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			stats := app.service.AggregateStats(cmd.Context())
			if g.output == "json" {
				return writeJSON(g.stdout, stats)
			}
			fmt.Fprintf(g.stdout, "Students:  %d\n", stats.Total)
			fmt.Fprintf(g.stdout, "Completed: %d\n", stats.Completed)
			fmt.Fprintln(g.stdout, "Pending by milestone:")
			for _, m := range onboarding.Milestones() {
				fmt.Fprintf(g.stdout, "  %-22s %d\n", m, stats.PendingByMilestone[m])
			}
			return nil
		},
	}
}

func newResetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [milestone...]",
		Short: "Clear milestones (all when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ms := make([]onboarding.Milestone, 0, len(args))
			for _, a := range args {
				m, err := onboarding.ParseMilestone(a)
				if err != nil {
					return err
				}
				ms = append(ms, m)
			}

			app, err := bootstrap(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			status := app.service.Reset(cmd.Context(), app.studentID, ms...)
			if g.output == "json" {
				return writeJSON(g.stdout, status)
			}
			printStatus(g.stdout, app.studentID, status)
			return nil
		},
	}
}

// application is the wired assistant core shared by the one-shot
// commands and serve.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	studentID string
	store     progress.Store
	generator llm.Generator
	brochure  *brochure.Store
	metrics   *metrics.Metrics
	service   *assistant.Service
}

// Close releases the store connection.
func (a *application) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store failed", "error", err)
	}
}

// bootstrap loads config and wires the assistant for the one-shot
// commands. Logs go to stderr so stdout carries only command output.
func bootstrap(ctx context.Context, g *globals) (*application, error) {
	logger := config.NewLogger(g.stderr, slog.LevelWarn, "text")
	cfg, err := loadConfig(g.configPath, logger)
	if err != nil {
		return nil, err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return newApplication(ctx, cfg, g.studentID, config.NewLogger(g.stderr, level, cfg.LogFormat)), nil
}

// newApplication opens the configured store and generator and builds
// the service. Neither an unreachable store nor a generator that cannot
// be created is fatal: the service falls back to the memory store and
// to brochure-only answers.
func newApplication(ctx context.Context, cfg *config.Config, studentID string, logger *slog.Logger) *application {
	if studentID == "" {
		studentID = cfg.StudentID
	}

	store, err := progress.Open(ctx, cfg.Store)
	if err != nil {
		logger.Warn("onboarding store unavailable, progress will not survive restart",
			"driver", cfg.Store.Driver,
			"error", err,
		)
		store = progress.NewMemoryStore()
	}

	gen, err := llm.New(ctx, cfg.Generation, logger)
	if err != nil {
		logger.Warn("answer generation unavailable, replying from the brochure only",
			"provider", cfg.Generation.Provider,
			"error", err,
		)
		gen = nil
	}

	m := metrics.New()
	docs := brochure.NewStore(cfg.Brochure.Path, logger)
	composer := assistant.NewComposer(gen, cfg.Generation.Timeout(), m, logger)
	service := assistant.NewService(assistant.ServiceConfig{
		Brochure: docs,
		Composer: composer,
		Store:    store,
		Metrics:  m,
		Logger:   logger,
	})

	return &application{
		cfg:       cfg,
		logger:    logger,
		studentID: studentID,
		store:     store,
		generator: gen,
		brochure:  docs,
		metrics:   m,
		service:   service,
	}
}

// loadConfig locates and parses the configuration file. An explicit
// path must exist; when discovery finds nothing the defaults are used.
func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	logger.Info("config loaded", "path", cfgPath)
	return cfg, nil
}

func printStatus(w io.Writer, studentID string, status onboarding.Status) {
	fmt.Fprintf(w, "Onboarding status for %s:\n", studentID)
	for _, m := range onboarding.Milestones() {
		mark := " "
		if status[m] {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, m)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
