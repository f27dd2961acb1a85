package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds the proxies whose forwarding headers are believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// ExtractClientIP returns the client address for auditing and rate limiting.
//
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is
// inside a trusted proxy range; otherwise the headers are attacker-controlled
// and RemoteAddr is used. X-Forwarded-For is read right to left: each trusted
// proxy appends the address it saw, so the first hop outside the trusted
// ranges is the client. Anything left of it was written by the client.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if ip, ok := forwardedClient(r.Header.Values("X-Forwarded-For"), config.TrustedProxies); ok {
		return ip
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}

	return remoteIP
}

// forwardedClient walks the X-Forwarded-For hops from the nearest proxy
// outwards, skipping trusted ranges. An unparseable hop ends the walk since
// no trusted proxy wrote it. When every hop is trusted the outermost is used.
func forwardedClient(headers []string, trustedProxies []string) (string, bool) {
	var hops []string
	for _, h := range headers {
		hops = append(hops, strings.Split(h, ",")...)
	}

	outermost := ""
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		ip := addr.Unmap().String()
		if !isTrustedProxy(ip, trustedProxies) {
			return ip, true
		}
		outermost = ip
	}

	return outermost, outermost != ""
}

// getRemoteAddr strips the port from RemoteAddr when present
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// isTrustedProxy reports whether ip falls in any of the CIDR ranges.
// Unparseable ranges are skipped.
func isTrustedProxy(ip string, trustedProxies []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}
