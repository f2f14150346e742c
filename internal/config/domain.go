package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is appended to targets given without an explicit port.
const DefaultPort = 443

// maxDomainLength is the longest host name accepted.
const maxDomainLength = 255

// InvalidInputError reports a malformed target domain.
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid target %q: %s", e.Input, e.Reason)
}

// NormalizeDomain validates a target and returns it as host:port, appending
// DefaultPort when no port is present. Hosts are lowercased.
func NormalizeDomain(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", &InvalidInputError{Input: raw, Reason: "empty"}
	}
	if strings.Contains(input, "://") || strings.ContainsAny(input, "/?#@") {
		return "", &InvalidInputError{Input: raw, Reason: "must be a domain name, not a URL"}
	}

	host, port := input, DefaultPort
	if strings.Contains(input, ":") {
		h, p, err := net.SplitHostPort(input)
		if err != nil {
			return "", &InvalidInputError{Input: raw, Reason: err.Error()}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return "", &InvalidInputError{Input: raw, Reason: fmt.Sprintf("invalid port %q", p)}
		}
		host, port = h, n
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if reason := checkHost(host); reason != "" {
		return "", &InvalidInputError{Input: raw, Reason: reason}
	}

	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// checkHost returns an empty string for a valid host, or the reason it is not.
func checkHost(host string) string {
	if host == "" {
		return "empty host"
	}
	if len(host) > maxDomainLength {
		return fmt.Sprintf("longer than %d characters", maxDomainLength)
	}
	for _, c := range host {
		if !isASCIIAlphanumeric(c) && c != '.' && c != '-' {
			return fmt.Sprintf("invalid character %q", c)
		}
	}
	if strings.HasPrefix(host, "-") || strings.HasSuffix(host, "-") {
		return "must not start or end with '-'"
	}
	if strings.HasPrefix(host, ".") || strings.Contains(host, "..") {
		return "empty label"
	}
	return ""
}

func isASCIIAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// SplitTargets splits whitespace-separated target lists and normalizes
// each entry. All invalid entries are reported.
func SplitTargets(values []string) ([]string, error) {
	var targets []string
	var bad []string
	for _, v := range values {
		for _, field := range strings.Fields(v) {
			t, err := NormalizeDomain(field)
			if err != nil {
				bad = append(bad, err.Error())
				continue
			}
			targets = append(targets, t)
		}
	}
	if len(bad) > 0 {
		return targets, &InvalidInputError{Input: strings.Join(values, " "), Reason: strings.Join(bad, "; ")}
	}
	return targets, nil
}

// HostOnly strips the port from a normalized target.
func HostOnly(target string) string {
	host, _, err := net.SplitHostPort(target)
	if err != nil {
		return target
	}
	return host
}
