package autofilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsWhitelistedCrawler(t *testing.T) {
	require.True(t, isWhitelistedCrawler("crawl-1-2-3-4.googlebot.com."))
	require.True(t, isWhitelistedCrawler("CRAWL-1-2-3-4.GOOGLEBOT.COM."))
	require.True(t, isWhitelistedCrawler("msnbot-1-2-3-4.search.msn.com."))
	require.False(t, isWhitelistedCrawler("evil-googlebot.com.attacker.net."))
	require.False(t, isWhitelistedCrawler("example.com."))
}

func TestFCrDNSResultReasonHostname(t *testing.T) {
	withHost := FCrDNSResult{Verdict: VerifiedOther, Hostname: "host.example.com."}
	require.Equal(t, "host.example.com.", withHost.ReasonHostname())

	unverified := FCrDNSResult{Verdict: Unverified}
	require.Equal(t, "UNKNOWN REVERSE DOMAIN NAME", unverified.ReasonHostname())
}

func TestVerifyUnparseableAddressIsUnverified(t *testing.T) {
	v := NewVerifier(VerifierOptions{})
	result := v.Verify("not-an-ip-address")
	require.Equal(t, Unverified, result.Verdict)
}

func TestVerifyUnreachableResolverIsUnverified(t *testing.T) {
	v := NewVerifier(VerifierOptions{ResolverAddr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	result := v.Verify("203.0.113.1")
	require.Equal(t, Unverified, result.Verdict)
	require.Equal(t, "UNKNOWN REVERSE DOMAIN NAME", result.ReasonHostname())
}

func TestNewVerifierDefaults(t *testing.T) {
	v := NewVerifier(VerifierOptions{})
	require.Equal(t, "127.0.0.1:53", v.resolverAddr)
	require.Equal(t, 5*time.Second, v.client.Timeout)
}
