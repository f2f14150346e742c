package probe

import (
	"fmt"
	"time"
)

// Outcome is the classification of one connectivity probe.
type Outcome int

const (
	// Success means the target answered with a 2xx page that is not a block page.
	Success Outcome = iota

	// ConnectionReset covers refused, reset and aborted connections, TLS
	// failures, non-2xx answers and transport errors nothing else matched.
	ConnectionReset

	// Timeout means the exchange did not finish within the probe timeout.
	Timeout

	// NoConnection means name resolution or routing failed.
	NoConnection

	// CensorshipRedirect means the answer was, or led to, a block page.
	CensorshipRedirect
)

// AllOutcomes lists every outcome in declaration order.
func AllOutcomes() []Outcome {
	return []Outcome{Success, ConnectionReset, Timeout, NoConnection, CensorshipRedirect}
}

// String returns the snake_case name used in logs, metrics and summaries.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ConnectionReset:
		return "connection_reset"
	case Timeout:
		return "timeout"
	case NoConnection:
		return "no_connection"
	case CensorshipRedirect:
		return "censorship_redirect"
	default:
		return "unknown"
	}
}

// Label returns a short human-readable description.
func (o Outcome) Label() string {
	switch o {
	case Success:
		return "connection successful"
	case ConnectionReset:
		return "connection reset"
	case Timeout:
		return "connection timed out"
	case NoConnection:
		return "no connection"
	case CensorshipRedirect:
		return "redirected to a block page"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome as its name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range AllOutcomes() {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown probe outcome %q", b)
}

// Result is one probe's outcome plus the diagnostics that led to it.
type Result struct {
	Target  string  `json:"target"`
	Outcome Outcome `json:"outcome"`

	// ErrorClass is the errclass name of the transport error, if any.
	ErrorClass string `json:"error_class,omitempty"`

	// Unclassified is set when a transport error matched no rule and was
	// folded into ConnectionReset.
	Unclassified bool   `json:"unclassified,omitempty"`
	Error        string `json:"error,omitempty"`

	StatusCode int    `json:"status_code,omitempty"`
	FinalURL   string `json:"final_url,omitempty"`

	// Signature is the block signature that matched, for CensorshipRedirect.
	Signature string `json:"signature,omitempty"`

	Latency time.Duration `json:"latency"`
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Detail returns a one-line description suitable for a trial reason.
func (r Result) Detail() string {
	switch {
	case r.Signature != "":
		return fmt.Sprintf("%s (matched %q)", r.Outcome.Label(), r.Signature)
	case r.Unclassified:
		return fmt.Sprintf("%s (unclassified: %s)", r.Outcome.Label(), r.Error)
	case r.ErrorClass != "":
		return fmt.Sprintf("%s (%s)", r.Outcome.Label(), r.ErrorClass)
	case r.StatusCode != 0 && r.Outcome != Success:
		return fmt.Sprintf("%s (HTTP %d)", r.Outcome.Label(), r.StatusCode)
	default:
		return r.Outcome.Label()
	}
}
