package probe

import (
	"bytes"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultURLSignatures are substrings of block-page URLs.
var DefaultURLSignatures = []string{
	"block",
	"blocked",
	"warning",
	"restrict",
	"rkn",
	"zapret",
	"eais",
}

// DefaultBodySignatures are substrings of block-page content.
var DefaultBodySignatures = []string{
	"заблокирован",
	"доступ ограничен",
	"access denied",
	"blocked by",
	"webmaster@rkn.gov.ru",
	"eais.rkn.gov.ru",
	"restricted by",
}

// Signatures holds the lowercased block-page patterns a prober matches.
type Signatures struct {
	URL  []string
	Body [][]byte
}

// NewSignatures combines the defaults with extra patterns. Matching is
// case-insensitive.
func NewSignatures(extraURL, extraBody []string) *Signatures {
	s := &Signatures{}
	for _, p := range append(append([]string(nil), DefaultURLSignatures...), extraURL...) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			s.URL = append(s.URL, p)
		}
	}
	for _, p := range append(append([]string(nil), DefaultBodySignatures...), extraBody...) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			s.Body = append(s.Body, []byte(p))
		}
	}
	return s
}

// MatchURL returns the first URL signature contained in u.
func (s *Signatures) MatchURL(u string) (string, bool) {
	lower := strings.ToLower(u)
	for _, p := range s.URL {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// MatchBody returns the first content signature contained in body.
func (s *Signatures) MatchBody(body []byte) (string, bool) {
	lower := bytes.ToLower(body)
	for _, p := range s.Body {
		if bytes.Contains(lower, p) {
			return string(p), true
		}
	}
	return "", false
}

// registrableDomain returns the eTLD+1 of host, or host itself for IPs and
// names the public suffix list cannot reduce.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// crossesDomain reports whether a redirect from one URL to another leaves
// the registrable domain.
func crossesDomain(from, to *url.URL) bool {
	return registrableDomain(from.Hostname()) != registrableDomain(to.Hostname())
}
