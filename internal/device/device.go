// Package device derives a human-readable device label and a version-tolerant
// fingerprint from a User-Agent header. The fingerprint feeds the risk
// engine's DEVICE_MISMATCH signal (§4.2): it is stable across minor browser
// bumps so routine auto-updates don't manufacture false risk, but sensitive
// to a major version or platform change.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Service parses user agents and computes device fingerprints. It can be
// disabled entirely (ComputeFingerprint returns "") for deployments that
// don't want device-level risk signals.
type Service struct {
	enabled bool
}

// NewService constructs a Service. When enabled is false, ComputeFingerprint
// always returns the empty string.
func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// majorVersion keeps only the leading dot-separated component of a version
// string ("120.0.6099.129" -> "120") so patch-level bumps don't change the
// fingerprint.
func majorVersion(version string) string {
	if i := strings.IndexByte(version, '.'); i >= 0 {
		return version[:i]
	}
	return version
}

// displayPlatform classifies the parsed OS string into a short human label.
func displayPlatform(os string) string {
	switch {
	case strings.Contains(os, "iPhone"):
		return "iPhone"
	case strings.Contains(os, "iPad"):
		return "iPad"
	case strings.Contains(os, "Android"):
		return "Android"
	case strings.Contains(os, "Windows"):
		return "Windows"
	case strings.Contains(os, "Macintosh"), strings.Contains(os, "Mac OS X"), strings.Contains(os, "macOS"):
		return "macOS"
	case strings.Contains(os, "Linux"):
		return "Linux"
	default:
		return "Unknown Platform"
	}
}

// parse extracts the browser name/major-version and a platform label from
// ua using mssola/useragent's parser.
func parse(ua string) (browser, major, platform string) {
	a := useragent.New(ua)
	name, version := a.Browser()
	return name, majorVersion(version), displayPlatform(a.OS())
}

// ParseUserAgent renders a display string like "Chrome on macOS" for UI and
// audit consumption. An empty user agent yields "Unknown Device".
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Unknown Device"
	}

	browser, _, platform := parse(ua)
	if browser == "" {
		browser = "Unknown Browser"
	}

	return strings.TrimSpace(browser + " on " + platform)
}

// ComputeFingerprint derives a SHA-256 hex digest from the browser's major
// version and platform label. It deliberately ignores minor/patch version
// components so routine auto-updates don't trip device-mismatch risk
// signals, but changes when the major version or platform changes. Returns
// "" when the service is disabled.
func (s *Service) ComputeFingerprint(ua string) string {
	if !s.enabled {
		return ""
	}

	browser, major, platform := parse(ua)

	sum := sha256.Sum256([]byte(browser + "/" + major + "|" + platform))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether two fingerprints match, and whether
// their mismatch should be treated as device drift (a non-match where both
// sides are non-empty).
func (s *Service) CompareFingerprints(a, b string) (matched, drift bool) {
	matched = a == b
	drift = !matched
	return matched, drift
}
