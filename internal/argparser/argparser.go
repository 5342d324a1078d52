package argparser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Trozz/get-s3-checksums/internal/checksum"
)

// ParseChecksums parses a comma-separated algorithm list into an ordered
// checksum request. The whole run aborts here on an unrecognised name.
func ParseChecksums(s string) (checksum.Request, error) {
	names := strings.Split(s, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return checksum.NewRequest(names)
}

// ParseS3URI splits an "s3://bucket/prefix" URI into bucket and prefix.
func ParseS3URI(s string) (string, string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI %q: %w", s, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URI %q: scheme must be s3", s)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket name", s)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Slug converts an S3 URI into the token used in the artifact file name.
func Slug(s string) string {
	return strings.ReplaceAll(strings.TrimPrefix(s, "s3://"), "/", "_")
}
