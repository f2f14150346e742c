package probe

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rbmk-project/common/errclass"
)

// ClassifyError maps a transport error to an outcome. It returns the
// errclass name and whether the error was folded into ConnectionReset
// because no rule recognised it.
func ClassifyError(err error) (outcome Outcome, class string, unclassified bool) {
	class = errclass.New(err)

	switch class {
	case errclass.ETIMEDOUT, errclass.EINTR:
		return Timeout, class, false

	case errclass.ECONNREFUSED, errclass.ECONNRESET, errclass.ECONNABORTED, errclass.EEOF,
		errclass.ETLS_HOSTNAME_MISMATCH, errclass.ETLS_CA_UNKNOWN, errclass.ETLS_CERT_INVALID:
		return ConnectionReset, class, false

	case errclass.EDNS_NONAME, errclass.EDNS_NODATA, errclass.ENETUNREACH,
		errclass.EHOSTUNREACH, errclass.ENETDOWN, errclass.EADDRNOTAVAIL:
		return NoConnection, class, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout, errclass.ETIMEDOUT, false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Timeout, class, false
		}
		return NoConnection, class, false
	}

	if o, ok := classifyMessage(err.Error()); ok {
		return o, class, false
	}

	return ConnectionReset, class, true
}

// messageRules are checked in order against the lowercased error text.
var messageRules = []struct {
	outcome  Outcome
	patterns []string
}{
	{Timeout, []string{"timed out", "timeout"}},
	{ConnectionReset, []string{"refused", "reset", "aborted", "forcibly closed", "broken pipe"}},
	{NoConnection, []string{"no such host", "name resolution", "not found", "unreachable", "network is down"}},
}

func classifyMessage(msg string) (Outcome, bool) {
	msg = strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return rule.outcome, true
			}
		}
	}
	return 0, false
}

// classifyStatus handles a response that is not 2xx.
func classifyStatus(resp *http.Response, sigs *Signatures) (Outcome, string) {
	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return CensorshipRedirect, "http 451"
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			if sig, ok := sigs.MatchURL(loc); ok {
				return CensorshipRedirect, sig
			}
		}
	}
	return ConnectionReset, ""
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}
