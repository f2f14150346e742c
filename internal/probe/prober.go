// Package probe decides whether a target domain is reachable over HTTPS and,
// when it is not, how the connection failed.
//
// Every probe uses a brand-new transport with keep-alives disabled, so a
// connection established under one pre-config is never reused under the
// next one. Transport failures never surface as errors; they are classified
// into an Outcome.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
)

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config holds probe settings.
type Config struct {
	Timeout      time.Duration // whole exchange, default 5s
	PreDelay     time.Duration // settle before each probe
	PostDelay    time.Duration // settle after each probe
	MaxRedirects int
	UserAgent    string
	Signatures   *Signatures

	// DialContext overrides the network dialer. Tests use it to route every
	// host to a local server.
	DialContext DialContextFunc

	// RootCAs overrides the system trust store.
	RootCAs *x509.CertPool

	Logger *slog.Logger
}

// ConfigFromApp builds a probe Config from the application configuration.
func ConfigFromApp(cfg *config.Config, logger *slog.Logger) Config {
	return Config{
		Timeout:      cfg.ProbeTimeout,
		PreDelay:     cfg.ProbePreDelay,
		PostDelay:    cfg.ProbePostDelay,
		MaxRedirects: cfg.MaxRedirects,
		UserAgent:    cfg.UserAgent,
		Signatures:   NewSignatures(cfg.BlockURLSignatures, cfg.BlockBodySignatures),
		Logger:       logger,
	}
}

// Prober performs connectivity probes.
type Prober struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Prober. Zero values fall back to defaults.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	if cfg.Signatures == nil {
		cfg.Signatures = NewSignatures(nil, nil)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultConfig().UserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{cfg: cfg, logger: logger}
}

// errBlockRedirect stops a redirect chain that leaves for a block page.
var errBlockRedirect = errors.New("redirect to block page")

// Probe requests https://target and classifies the answer. The only error
// returned is *config.InvalidInputError for a malformed target.
func (p *Prober) Probe(ctx context.Context, target string) (Result, error) {
	normalized, err := config.NormalizeDomain(target)
	if err != nil {
		return Result{}, err
	}

	if !sleep(ctx, p.cfg.PreDelay) {
		o, class, _ := ClassifyError(ctx.Err())
		return Result{Target: normalized, Outcome: o, ErrorClass: class, Error: ctx.Err().Error()}, nil
	}

	result := p.probe(ctx, normalized)

	p.logger.Debug("probe_result",
		"target", result.Target,
		"outcome", result.Outcome.String(),
		"error_class", result.ErrorClass,
		"unclassified", result.Unclassified,
		"status", result.StatusCode,
		"final_url", result.FinalURL,
		"signature", result.Signature,
		"latency", result.Latency.String(),
	)

	sleep(ctx, p.cfg.PostDelay)
	return result, nil
}

// IsDirectlyReachable reports whether target probes Success with no
// pre-config running.
func (p *Prober) IsDirectlyReachable(ctx context.Context, target string) bool {
	r, err := p.Probe(ctx, target)
	return err == nil && r.Outcome == Success
}

func (p *Prober) probe(ctx context.Context, target string) Result {
	result := Result{Target: target}
	start := time.Now()

	reqURL := targetURL(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		result.Outcome = ConnectionReset
		result.Unclassified = true
		result.Error = err.Error()
		result.Latency = time.Since(start)
		return result
	}
	setBrowserHeaders(req, p.cfg.UserAgent)

	transport := p.newTransport()
	defer transport.CloseIdleConnections()

	var blockedBy, blockedURL string
	client := &http.Client{
		Transport: transport,
		Timeout:   p.cfg.Timeout,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			prev := via[len(via)-1]
			if crossesDomain(prev.URL, next.URL) {
				if sig, ok := p.cfg.Signatures.MatchURL(next.URL.String()); ok {
					blockedBy, blockedURL = sig, next.URL.String()
					return errBlockRedirect
				}
			}
			if len(via) > p.cfg.MaxRedirects {
				return http.ErrUseLastResponse
			}
			setBrowserHeaders(next, p.cfg.UserAgent)
			return nil
		},
	}

	resp, err := client.Do(req)
	if errors.Is(err, errBlockRedirect) {
		if resp != nil {
			resp.Body.Close()
			result.StatusCode = resp.StatusCode
		}
		result.Outcome = CensorshipRedirect
		result.Signature = blockedBy
		result.FinalURL = blockedURL
		result.Latency = time.Since(start)
		return result
	}
	if err != nil {
		result.Outcome, result.ErrorClass, result.Unclassified = ClassifyError(err)
		result.Error = err.Error()
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()

	if !isSuccessStatus(resp.StatusCode) {
		result.Outcome, result.Signature = classifyStatus(resp, p.cfg.Signatures)
		result.Latency = time.Since(start)
		return result
	}

	body, err := readBody(resp)
	if err != nil {
		_, result.ErrorClass, _ = ClassifyError(err)
		result.Outcome = ConnectionReset
		result.Error = fmt.Sprintf("read body: %v", err)
		result.Latency = time.Since(start)
		return result
	}

	if sig, ok := p.cfg.Signatures.MatchBody(body); ok {
		result.Outcome = CensorshipRedirect
		result.Signature = sig
	} else {
		result.Outcome = Success
	}
	result.Latency = time.Since(start)
	return result
}

func (p *Prober) newTransport() *http.Transport {
	dial := p.cfg.DialContext
	if dial == nil {
		dial = (&net.Dialer{Timeout: p.cfg.Timeout}).DialContext
	}
	return &http.Transport{
		Proxy:       nil,
		DialContext: dial,
		TLSClientConfig: &tls.Config{
			RootCAs:    p.cfg.RootCAs,
			MinVersion: tls.VersionTLS12,
		},
		TLSHandshakeTimeout: p.cfg.Timeout,
		DisableKeepAlives:   true,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
	}
}

// targetURL converts a normalized host:port into the probe URL, dropping
// the default port.
func targetURL(target string) string {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "https://" + target + "/"
	}
	if port == "443" {
		return "https://" + host + "/"
	}
	return "https://" + net.JoinHostPort(host, port) + "/"
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
