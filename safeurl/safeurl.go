// Package safeurl normalizes user-supplied domains into fetchable URLs and
// enforces an optional SSRF policy on the literal hostname.
//
// The policy check is purely syntactic: it inspects the hostname or IP
// literal as written and never resolves DNS. A hostname that resolves to a
// private address at connection time is NOT caught here; this is a
// documented limitation, not a defense against DNS rebinding.
package safeurl

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrInvalid is returned when the input cannot be turned into an http(s) URL.
var ErrInvalid = errors.New("safeurl: invalid URL")

// ErrBlocked is returned when the SSRF policy rejects the literal host.
// Callers serving external traffic should present it with the same message
// as ErrInvalid so a prober cannot distinguish the two.
var ErrBlocked = errors.New("safeurl: address not allowed")

// Policy configures validation. The zero value allows any syntactically
// valid http(s) URL.
type Policy struct {
	// BlockPrivate rejects loopback, RFC 1918, link-local and IPv6
	// unique-local literals.
	BlockPrivate bool
}

// Normalize turns a free-form domain or URL into a parsed http(s) URL.
// Inputs without a scheme are prefixed with https://.
func Normalize(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalid
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrInvalid
	}
	if u.Hostname() == "" {
		return nil, ErrInvalid
	}
	return u, nil
}

// Validate normalizes raw and applies the policy.
func (p Policy) Validate(raw string) (*url.URL, error) {
	u, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if p.BlockPrivate && isPrivateHost(u.Hostname()) {
		return nil, ErrBlocked
	}
	return u, nil
}

// ValidateURL applies the policy to an already-formed URL string. Used for
// redirect hops and caller-supplied default-image URLs.
func (p Policy) ValidateURL(raw string) error {
	_, err := p.Validate(raw)
	return err
}

func isPrivateHost(host string) bool {
	h := strings.ToLower(host)
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// Not an IP literal; only literal names are checked.
		return false
	}
	return isPrivateIP(ip)
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// RFC 1918 / RFC 4193
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	}
	for _, pr := range privateRanges {
		_, cidr, err := net.ParseCIDR(pr)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
