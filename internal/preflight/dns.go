package preflight

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/randomizedcoder/go-preconfig-tester/internal/config"
)

const defaultDNSTimeout = 3 * time.Second

// Lookup resolves host's A and AAAA records against resolver (host:port)
// over UDP. NXDOMAIN and other non-success rcodes are errors.
func Lookup(ctx context.Context, resolver, host string, timeout time.Duration) ([]netip.Addr, error) {
	client := &dns.Client{Net: "udp", Timeout: timeout}

	var addrs []netip.Addr
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, msg, resolver)
		if err != nil {
			return nil, fmt.Errorf("query %s %s: %w", host, dns.TypeToString[qtype], err)
		}
		if resp.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("query %s %s: %s", host, dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
					addrs = append(addrs, a)
				}
			case *dns.AAAA:
				if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
					addrs = append(addrs, a)
				}
			}
		}
	}
	return addrs, nil
}

// suspicious reports answers a public name should never resolve to. Some
// ISPs answer blocked names with such addresses.
func suspicious(a netip.Addr) bool {
	return a.IsUnspecified() || a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast()
}

// checkDNS resolves each target's host. It is a warning at most: the probe
// itself decides reachability.
func checkDNS(ctx context.Context, resolver string, targets []string, timeout time.Duration) Check {
	var problems, ok []string
	for _, target := range targets {
		host := config.HostOnly(target)
		if net.ParseIP(host) != nil {
			continue
		}
		addrs, err := Lookup(ctx, resolver, host, timeout)
		switch {
		case err != nil:
			problems = append(problems, err.Error())
		case len(addrs) == 0:
			problems = append(problems, host+": no addresses")
		default:
			bad := false
			for _, a := range addrs {
				if suspicious(a) {
					problems = append(problems, fmt.Sprintf("%s resolves to %s (DNS tampering?)", host, a))
					bad = true
					break
				}
			}
			if !bad {
				ok = append(ok, fmt.Sprintf("%s (%d addresses)", host, len(addrs)))
			}
		}
	}

	if len(problems) > 0 {
		return Check{
			Name:    "dns",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("via %s: %s", resolver, strings.Join(problems, "; ")),
		}
	}
	return Check{
		Name:    "dns",
		Passed:  true,
		Message: fmt.Sprintf("via %s: %s", resolver, strings.Join(ok, ", ")),
	}
}
