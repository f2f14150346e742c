package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// stringList is a custom flag type for repeatable list flags.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses the given arguments. When -config is present the YAML
// file is loaded first, so explicit flags take precedence over file values.
// Positional arguments are target domains.
func ParseArgs(args []string, usageOut io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	if path := findConfigPath(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	var (
		targets       stringList
		extensions    stringList
		urlSignatures stringList
		bodySignature stringList
		configPath    = cfg.ConfigFile
	)

	fs := flag.NewFlagSet("preconfig-tester", flag.ContinueOnError)
	fs.SetOutput(usageOut)
	fs.Usage = func() { printUsage(fs, usageOut) }

	// Target
	fs.Var(&targets, "target", "Target domain (can repeat, or pass as arguments)")

	// Candidates
	fs.StringVar(&cfg.CandidatesDir, "dir", cfg.CandidatesDir, "Directory containing pre-config scripts")
	fs.Var(&extensions, "ext", "Candidate script extension (can repeat, replaces defaults)")
	fs.StringVar(&cfg.ProcessName, "process", cfg.ProcessName, "Expected bypass process name")

	// Process lifecycle
	fs.DurationVar(&cfg.ProcessWaitTimeout, "wait", cfg.ProcessWaitTimeout, "How long to wait for the bypass process to appear")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Process table poll interval")
	fs.IntVar(&cfg.TerminateAttempts, "terminate-attempts", cfg.TerminateAttempts, "Kill attempts per terminate")
	fs.DurationVar(&cfg.TerminateInterval, "terminate-interval", cfg.TerminateInterval, "Delay between kill attempts")
	fs.DurationVar(&cfg.CleanupSettle, "cleanup-settle", cfg.CleanupSettle, "Delay between killing the script and terminating by name")
	fs.DurationVar(&cfg.FinalSettle, "final-settle", cfg.FinalSettle, "Delay before the final terminate")

	// Probe
	fs.DurationVar(&cfg.ProbeTimeout, "timeout", cfg.ProbeTimeout, "Probe request timeout")
	fs.DurationVar(&cfg.ProbePreDelay, "probe-pre-delay", cfg.ProbePreDelay, "Settle delay before each probe")
	fs.DurationVar(&cfg.ProbePostDelay, "probe-post-delay", cfg.ProbePostDelay, "Settle delay after each probe")
	fs.IntVar(&cfg.MaxRedirects, "max-redirects", cfg.MaxRedirects, "Maximum redirects followed by a probe")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.Var(&urlSignatures, "block-url", "Extra block-page URL substring (can repeat)")
	fs.Var(&bodySignature, "block-body", "Extra block-page content substring (can repeat)")
	fs.StringVar(&cfg.DNSResolver, "dns", cfg.DNSResolver, `DNS resolver for the preflight lookup (host:port, "" disables)`)

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty disables)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write metrics in text format to this file at exit")
	fs.StringVar(&cfg.SummaryFile, "summary-file", cfg.SummaryFile, "Write the run summary as JSON to this file")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.CaptureOutput, "capture-output", cfg.CaptureOutput, "Log candidate script output at debug level")

	// Run modes
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.KeepRunning, "keep-running", cfg.KeepRunning, "Leave the working pre-config running on success")
	fs.StringVar(&configPath, "config", configPath, "YAML config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if len(extensions) > 0 {
		cfg.Extensions = normalizeExtensions(extensions)
	}
	cfg.BlockURLSignatures = append(cfg.BlockURLSignatures, urlSignatures...)
	cfg.BlockBodySignatures = append(cfg.BlockBodySignatures, bodySignature...)

	// Flags and positional targets replace file targets
	raw := append([]string(targets), fs.Args()...)
	if len(raw) == 0 {
		raw = cfg.Targets
	}
	normalized, err := SplitTargets(raw)
	if err != nil {
		return nil, err
	}
	cfg.Targets = normalized

	return cfg, nil
}

// findConfigPath scans args for -config / --config without a full parse.
func findConfigPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			return ""
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
	}
	return ""
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		for _, part := range strings.Split(e, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !strings.HasPrefix(part, ".") {
				part = "." + part
			}
			out = append(out, part)
		}
	}
	return out
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `preconfig-tester - find a working DPI bypass pre-config for a domain

Usage:
  preconfig-tester [flags] [domain ...]

Candidates:
`)
	printFlagCategory(fs, w, []string{"dir", "ext", "process"})

	fmt.Fprintf(w, "\nProcess Lifecycle:\n")
	printFlagCategory(fs, w, []string{"wait", "poll", "terminate-attempts", "terminate-interval", "cleanup-settle", "final-settle"})

	fmt.Fprintf(w, "\nProbe:\n")
	printFlagCategory(fs, w, []string{"target", "timeout", "probe-pre-delay", "probe-post-delay", "max-redirects", "user-agent", "block-url", "block-body", "dns"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(fs, w, []string{"metrics", "metrics-file", "summary-file", "v", "log-format", "tui", "capture-output"})

	fmt.Fprintf(w, "\nRun Modes:\n")
	printFlagCategory(fs, w, []string{"skip-preflight", "keep-running", "config"})

	fmt.Fprintf(w, `
Without a domain argument an interactive menu is shown.

Examples:
  # Test all pre-configs against discord.com
  preconfig-tester discord.com

  # Several domains must all work
  preconfig-tester -dir ./pre-configs youtube.com googlevideo.com

  # Faster iteration with shorter waits
  preconfig-tester -wait 5s -timeout 3s spotify.com

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := time.ParseDuration(f.DefValue); err == nil && f.DefValue != "0" {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
