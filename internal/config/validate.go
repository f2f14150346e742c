package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if len(cfg.Targets) == 0 {
		errs = append(errs, ValidationError{
			Field:   "targets",
			Message: "at least one target domain is required",
		})
	}
	for _, t := range cfg.Targets {
		if _, err := NormalizeDomain(t); err != nil {
			errs = append(errs, ValidationError{Field: "targets", Message: err.Error()})
		}
	}

	if strings.TrimSpace(cfg.CandidatesDir) == "" {
		errs = append(errs, ValidationError{
			Field:   "candidates_dir",
			Message: "must not be empty",
		})
	}

	if len(cfg.Extensions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "extensions",
			Message: "at least one extension is required",
		})
	}

	if strings.TrimSpace(cfg.ProcessName) == "" {
		errs = append(errs, ValidationError{
			Field:   "process_name",
			Message: "must not be empty",
		})
	}
	if strings.ContainsAny(cfg.ProcessName, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "process_name",
			Message: fmt.Sprintf("must be an executable name, not a path (got %q)", cfg.ProcessName),
		})
	}

	// Hard ceilings must be positive
	positive := []struct {
		field string
		ok    bool
	}{
		{"process_wait_timeout", cfg.ProcessWaitTimeout > 0},
		{"probe_timeout", cfg.ProbeTimeout > 0},
		{"terminate_attempts", cfg.TerminateAttempts > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, ValidationError{Field: p.field, Message: "must be positive"})
		}
	}

	nonNegative := []struct {
		field string
		ok    bool
	}{
		{"poll_interval", cfg.PollInterval >= 0},
		{"terminate_interval", cfg.TerminateInterval >= 0},
		{"cleanup_settle", cfg.CleanupSettle >= 0},
		{"final_settle", cfg.FinalSettle >= 0},
		{"probe_pre_delay", cfg.ProbePreDelay >= 0},
		{"probe_post_delay", cfg.ProbePostDelay >= 0},
		{"max_redirects", cfg.MaxRedirects >= 0},
	}
	for _, n := range nonNegative {
		if !n.ok {
			errs = append(errs, ValidationError{Field: n.field, Message: "must not be negative"})
		}
	}

	if cfg.PollInterval > cfg.ProcessWaitTimeout && cfg.ProcessWaitTimeout > 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must not exceed process_wait_timeout (%v)", cfg.ProcessWaitTimeout),
		})
	}

	if cfg.DNSResolver != "" {
		if _, _, err := net.SplitHostPort(cfg.DNSResolver); err != nil {
			errs = append(errs, ValidationError{
				Field:   "dns_resolver",
				Message: fmt.Sprintf("must be host:port (got %q)", cfg.DNSResolver),
			})
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
