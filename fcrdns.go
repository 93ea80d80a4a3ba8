package autofilter

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Verdict is the tagged result of an FCrDNS check (§4.C, §9): the
// resolver's distinct failure modes (timeout, NXDOMAIN, YXDOMAIN, no
// answer, no servers) all collapse into Unverified rather than being
// modeled as distinct error types, since none of them change what the
// detector does with the result.
type Verdict int

const (
	// Unverified means the reverse/forward lookup failed, didn't confirm
	// the original address, or the resolver could not be reached.
	Unverified Verdict = iota
	// VerifiedOther means the hostname is forward-confirmed but isn't on
	// the search-engine allowlist.
	VerifiedOther
	// Whitelisted means the hostname is forward-confirmed and ends with
	// one of the curated search-engine suffixes.
	Whitelisted
)

// FCrDNSResult is the outcome of Verifier.Verify for a single address.
type FCrDNSResult struct {
	Verdict  Verdict
	Hostname string // set for VerifiedOther and Whitelisted
}

// ReasonHostname returns the hostname for use in a bot record's reason
// text, or the documented placeholder when verification failed.
func (r FCrDNSResult) ReasonHostname() string {
	if r.Hostname != "" {
		return r.Hostname
	}
	return "UNKNOWN REVERSE DOMAIN NAME"
}

// crawlerSuffixes is the curated search-engine allowlist from §4.C. A
// forward-confirmed hostname ending in one of these (case-insensitive,
// trailing dot required) is never added to the bot set.
var crawlerSuffixes = []string{
	".googlebot.com.",
	".google.com.",
	".yandex.com.",
	".yandex.net.",
	".yandex.ru.",
	".search.msn.com.",
	".fbsv.net.",
}

func isWhitelistedCrawler(hostname string) bool {
	lower := strings.ToLower(hostname)
	for _, suffix := range crawlerSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Verifier performs forward-confirmed reverse DNS lookups against a
// resolver, normally the recursive resolver reachable at a loopback
// address per §6. It is built on miekg/dns rather than net.Resolver. Every
// failure (exchange error, non-success rcode, no usable answer) returns
// Unverified; Verify does not log which kind of failure occurred.
type Verifier struct {
	client       *dns.Client
	resolverAddr string
}

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	// ResolverAddr is host:port of the recursive resolver to query.
	// Defaults to 127.0.0.1:53.
	ResolverAddr string
	// Timeout bounds each of the two DNS exchanges. Defaults to 5s.
	Timeout time.Duration
}

// NewVerifier returns a Verifier configured per opt.
func NewVerifier(opt VerifierOptions) *Verifier {
	addr := opt.ResolverAddr
	if addr == "" {
		addr = "127.0.0.1:53"
	}
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		client:       &dns.Client{Timeout: timeout},
		resolverAddr: addr,
	}
}

// Verify performs FCrDNS for address: a PTR lookup, then a forward lookup
// (A or AAAA as appropriate) of the first PTR answer, confirming it
// resolves back to address. Any resolver failure at either step yields
// Unverified; it never blocks progress (§5, §7).
func (v *Verifier) Verify(address string) FCrDNSResult {
	ip := net.ParseIP(address)
	if ip == nil {
		return FCrDNSResult{Verdict: Unverified}
	}

	ptrName, err := dns.ReverseAddr(address)
	if err != nil {
		return FCrDNSResult{Verdict: Unverified}
	}

	rm := new(dns.Msg)
	rm.SetQuestion(ptrName, dns.TypePTR)
	rm.RecursionDesired = true
	rresp, _, err := v.client.Exchange(rm, v.resolverAddr)
	if err != nil || rresp == nil || rresp.Rcode != dns.RcodeSuccess {
		return FCrDNSResult{Verdict: Unverified}
	}

	var hostname string
	for _, rr := range rresp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			hostname = ptr.Ptr
			break
		}
	}
	if hostname == "" {
		return FCrDNSResult{Verdict: Unverified}
	}

	qtype := dns.TypeA
	if ip.To4() == nil {
		qtype = dns.TypeAAAA
	}
	fm := new(dns.Msg)
	fm.SetQuestion(hostname, qtype)
	fm.RecursionDesired = true
	fresp, _, err := v.client.Exchange(fm, v.resolverAddr)
	if err != nil || fresp == nil || fresp.Rcode != dns.RcodeSuccess {
		return FCrDNSResult{Verdict: Unverified}
	}

	confirmed := false
	for _, rr := range fresp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if rec.A.Equal(ip) {
				confirmed = true
			}
		case *dns.AAAA:
			if rec.AAAA.Equal(ip) {
				confirmed = true
			}
		}
	}
	if !confirmed {
		return FCrDNSResult{Verdict: Unverified}
	}

	if isWhitelistedCrawler(hostname) {
		return FCrDNSResult{Verdict: Whitelisted, Hostname: hostname}
	}
	return FCrDNSResult{Verdict: VerifiedOther, Hostname: hostname}
}
