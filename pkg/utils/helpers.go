package utils

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParseDuration parses a duration string like "5m". An empty string yields fallback.
func ParseDuration(d string, fallback time.Duration) (time.Duration, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return fallback, nil
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return fallback, errors.Wrapf(err, "invalid duration %q", d)
	}
	if duration < 0 {
		return fallback, errors.Errorf("negative duration %q", d)
	}
	return duration, nil
}

// SplitScheme splits "scheme://rest" into its parts. Without "://" the scheme is "".
func SplitScheme(uri string) (scheme, rest string) {
	if i := strings.Index(uri, "://"); i > 0 {
		return strings.ToLower(uri[:i]), uri[i+3:]
	}
	return "", uri
}
