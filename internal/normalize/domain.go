// Package normalize canonicalises raw domain strings into registrable root
// domains so ingestion and lookup share one join key.
package normalize

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

const (
	maxHostLength  = 253
	maxLabelLength = 63
)

// Domain returns the eTLD+1 of raw in lower-case ASCII (punycode) form.
// Errors wrap domain.ErrInvalidDomain.
func Domain(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("%w: empty input", domain.ErrInvalidDomain)
	}

	host = extractHost(host)
	if host == "" {
		return "", invalid(raw, "no host")
	}
	if strings.HasPrefix(host, "[") || net.ParseIP(host) != nil {
		return "", invalid(raw, "ip literals are not supported")
	}

	host = stripPort(host)
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", invalid(raw, "no host")
	}
	if net.ParseIP(host) != nil {
		return "", invalid(raw, "ip literals are not supported")
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", invalid(raw, err.Error())
	}
	if err := validateLabels(ascii); err != nil {
		return "", invalid(raw, err.Error())
	}

	suffix, icann := publicsuffix.PublicSuffix(ascii)
	if !icann && !strings.Contains(suffix, ".") {
		return "", invalid(raw, fmt.Sprintf("unknown top-level domain %q", suffix))
	}

	root, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return "", invalid(raw, "no registrable domain")
	}
	return root, nil
}

// Many normalises every input, dropping the invalid ones and duplicates.
// The order of first appearance is kept.
func Many(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		root, err := Domain(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		out = append(out, root)
	}
	return out
}

// extractHost drops the scheme, userinfo, path, query and fragment.
func extractHost(s string) string {
	if i := strings.Index(s, "://"); i >= 0 && !strings.ContainsAny(s[:i], "/?#") {
		s = s[i+len("://"):]
	}
	s = strings.TrimPrefix(s, "//")
	if i := strings.IndexAny(s, "/?#\\"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}

func validateLabels(host string) error {
	if len(host) > maxHostLength {
		return fmt.Errorf("host longer than %d characters", maxHostLength)
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return errors.New("missing top-level domain")
	}
	for _, label := range labels {
		switch {
		case label == "":
			return errors.New("empty label")
		case len(label) > maxLabelLength:
			return fmt.Errorf("label %q longer than %d characters", label, maxLabelLength)
		case strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-"):
			return fmt.Errorf("label %q starts or ends with a hyphen", label)
		}
		for _, r := range label {
			if !isLDH(r) {
				return fmt.Errorf("label %q contains %q", label, r)
			}
		}
	}
	return nil
}

func isLDH(r rune) bool {
	return r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w %q: %s", domain.ErrInvalidDomain, raw, reason)
}
