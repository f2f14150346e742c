// Package main provides the preconfig-tester CLI entry point.
//
// preconfig-tester tries DPI-circumvention pre-config scripts one by one
// and reports the first one that makes the target domains reachable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-preconfig-tester/internal/catalog"
	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
	"github.com/randomizedcoder/go-preconfig-tester/internal/logging"
	"github.com/randomizedcoder/go-preconfig-tester/internal/metrics"
	"github.com/randomizedcoder/go-preconfig-tester/internal/orchestrator"
	"github.com/randomizedcoder/go-preconfig-tester/internal/preflight"
	"github.com/randomizedcoder/go-preconfig-tester/internal/probe"
	"github.com/randomizedcoder/go-preconfig-tester/internal/process"
	"github.com/randomizedcoder/go-preconfig-tester/internal/stats"
	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
	"github.com/randomizedcoder/go-preconfig-tester/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/preconfig-tester
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("preconfig-tester %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// No target on the command line: ask for one when interactive
	if len(cfg.Targets) == 0 && isatty.IsTerminal(os.Stdin.Fd()) {
		target, err := tui.RunMenu(os.Stdin, os.Stdout)
		if errors.Is(err, tui.ErrMenuExit) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg.Targets = []string{target}
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	runID := uuid.NewString()

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logger = logging.WithRun(logger, runID)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	candidates, loadErr := catalog.Load(cfg.CandidatesDir, cfg.Extensions)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		RunID:       runID,
		Targets:     cfg.Targets,
		ProcessName: cfg.ProcessName,
		Candidates:  len(candidates),
	}, registry)

	mcfg := process.ManagerConfigFromApp(cfg, logger)
	mcfg.OnKill = collector.RecordKill
	manager := process.NewManager(process.SystemTable{}, process.ScriptRunner{}, mcfg)

	if !cfg.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			CandidatesDir: cfg.CandidatesDir,
			Candidates:    len(candidates),
			ProcessName:   cfg.ProcessName,
			IsRunning:     manager.IsRunning,
			Targets:       cfg.Targets,
			DNSResolver:   cfg.DNSResolver,
		})
		preflight.PrintResults(os.Stderr, result)
		if !result.Passed {
			return 1
		}
	}
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", loadErr)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"targets", cfg.Targets,
		"candidates", len(candidates),
		"process_name", cfg.ProcessName,
		"metrics_addr", cfg.MetricsAddr,
	)

	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(cfg.MetricsAddr, registry, logger)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				logger.Warn("metrics_server_shutdown_failed", "error", err)
			}
		}()
	}

	ocfg := orchestrator.ConfigFromApp(cfg, runID, logger)
	ocfg.Metrics = collector
	prober := probe.New(probe.ConfigFromApp(cfg, logger))

	var summary *trial.Summary
	if cfg.TUIEnabled {
		summary = runWithTUI(ctx, stop, cfg, ocfg, prober, manager, candidates, logger)
	} else {
		printBanner(cfg, len(candidates))
		ocfg.Callbacks.OnPreflight = func(v preflight.Verdict, results []probe.Result) {
			preflight.PrintCheck(os.Stdout, preflight.TargetCheck(v, results))
		}
		summary = orchestrator.New(ocfg, prober, manager).Run(ctx, candidates)
	}

	ms := collector.GenerateSummary()
	metricsAddr := ""
	if server != nil {
		metricsAddr = server.Addr()
	}
	fmt.Print(stats.FormatRunSummary(summary, stats.SummaryConfig{
		Color:       isatty.IsTerminal(os.Stdout.Fd()),
		MetricsAddr: metricsAddr,
		ProbeP50:    ms.ProbeP50,
		ProbeP95:    ms.ProbeP95,
		WaitP50:     ms.WaitP50,
		WaitP95:     ms.WaitP95,
		Kills:       ms.Kills,
	}))

	if cfg.SummaryFile != "" {
		if err := stats.WriteJSON(cfg.SummaryFile, summary); err != nil {
			logger.Error("summary_write_failed", "path", cfg.SummaryFile, "error", err)
		}
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			logger.Error("metrics_write_failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	return summary.Verdict.ExitCode()
}

// runWithTUI runs the orchestrator behind the live dashboard. Quitting the
// dashboard cancels the run; the candidate is still cleaned up.
func runWithTUI(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	ocfg orchestrator.Config,
	prober orchestrator.Prober,
	manager *process.Manager,
	candidates []trial.Candidate,
	logger *slog.Logger,
) *trial.Summary {
	model := tui.New(tui.Config{
		Targets:     cfg.Targets,
		ProcessName: cfg.ProcessName,
		Candidates:  len(candidates),
		MetricsAddr: cfg.MetricsAddr,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ocfg.Callbacks = tui.Callbacks(p)

	done := make(chan *trial.Summary, 1)
	go func() {
		s := orchestrator.New(ocfg, prober, manager).Run(ctx, candidates)
		done <- s
		tui.SendQuit(p)
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("tui_failed", "error", err)
	}
	cancel()
	return <-done
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config, candidates int) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       preconfig-tester                            ║")
	fmt.Println("║         Find the DPI bypass pre-config that works for you         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	for _, t := range cfg.Targets {
		fmt.Printf("  Target:      %s\n", t)
	}
	fmt.Printf("  Pre-configs: %d in %s\n", candidates, cfg.CandidatesDir)
	fmt.Printf("  Process:     %s (wait %s)\n", cfg.ProcessName, cfg.ProcessWaitTimeout)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.KeepRunning {
		fmt.Println("  On success:  leave the pre-config running")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
