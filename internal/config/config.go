// Package config provides configuration management for preconfig-tester.
package config

import (
	"runtime"
	"time"
)

// Config holds all configuration options for a pre-config test run.
type Config struct {
	// Target
	Targets []string `json:"targets" yaml:"targets"` // normalized host:port

	// Candidates
	CandidatesDir string   `json:"candidates_dir" yaml:"candidates_dir"`
	Extensions    []string `json:"extensions" yaml:"extensions"`
	ProcessName   string   `json:"process_name" yaml:"process_name"`

	// Process lifecycle timing
	ProcessWaitTimeout time.Duration `json:"process_wait_timeout" yaml:"process_wait_timeout"`
	PollInterval       time.Duration `json:"poll_interval" yaml:"poll_interval"`
	TerminateAttempts  int           `json:"terminate_attempts" yaml:"terminate_attempts"`
	TerminateInterval  time.Duration `json:"terminate_interval" yaml:"terminate_interval"`
	CleanupSettle      time.Duration `json:"cleanup_settle" yaml:"cleanup_settle"`
	FinalSettle        time.Duration `json:"final_settle" yaml:"final_settle"`

	// Probe
	ProbeTimeout        time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	ProbePreDelay       time.Duration `json:"probe_pre_delay" yaml:"probe_pre_delay"`
	ProbePostDelay      time.Duration `json:"probe_post_delay" yaml:"probe_post_delay"`
	MaxRedirects        int           `json:"max_redirects" yaml:"max_redirects"`
	UserAgent           string        `json:"user_agent" yaml:"user_agent"`
	BlockURLSignatures  []string      `json:"block_url_signatures" yaml:"block_url_signatures"`
	BlockBodySignatures []string      `json:"block_body_signatures" yaml:"block_body_signatures"`
	DNSResolver         string        `json:"dns_resolver" yaml:"dns_resolver"` // host:port, empty = skip

	// Observability
	MetricsAddr   string `json:"metrics_addr" yaml:"metrics_addr"` // empty = disabled
	MetricsFile   string `json:"metrics_file" yaml:"metrics_file"`
	SummaryFile   string `json:"summary_file" yaml:"summary_file"`
	Verbose       bool   `json:"verbose" yaml:"verbose"`
	LogFormat     string `json:"log_format" yaml:"log_format"` // json, text
	TUIEnabled    bool   `json:"tui" yaml:"tui"`
	CaptureOutput bool   `json:"capture_output" yaml:"capture_output"`

	// Run modes
	SkipPreflight bool   `json:"skip_preflight" yaml:"skip_preflight"`
	KeepRunning   bool   `json:"keep_running" yaml:"keep_running"`
	ConfigFile    string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Candidates
		CandidatesDir: "pre-configs",
		Extensions:    DefaultExtensions(),
		ProcessName:   DefaultProcessName(),

		// Process lifecycle timing
		ProcessWaitTimeout: 10 * time.Second,
		PollInterval:       500 * time.Millisecond,
		TerminateAttempts:  3,
		TerminateInterval:  200 * time.Millisecond,
		CleanupSettle:      500 * time.Millisecond,
		FinalSettle:        500 * time.Millisecond,

		// Probe
		ProbeTimeout:   5 * time.Second,
		ProbePreDelay:  1000 * time.Millisecond,
		ProbePostDelay: 500 * time.Millisecond,
		MaxRedirects:   4,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		DNSResolver:    "1.1.1.1:53",

		// Observability
		MetricsAddr: "",
		Verbose:     false,
		LogFormat:   "json",
		TUIEnabled:  false,
	}
}

// DefaultExtensions returns the script extensions treated as candidates on
// the current platform.
func DefaultExtensions() []string {
	if runtime.GOOS == "windows" {
		return []string{".bat", ".cmd"}
	}
	return []string{".bat", ".cmd", ".sh"}
}

// DefaultProcessName returns the expected bypass process name for the
// current platform.
func DefaultProcessName() string {
	if runtime.GOOS == "windows" {
		return "winws.exe"
	}
	return "nfqws"
}

// PresetDomains are offered by the interactive domain menu.
var PresetDomains = []string{
	"discord.com",
	"youtube.com",
	"spotify.com",
	"speedtest.net",
	"steampowered.com",
}
