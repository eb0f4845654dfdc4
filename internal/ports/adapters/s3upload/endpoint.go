package s3upload

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateEndpoint checks a custom S3-compatible endpoint. Empty means the
// AWS default. Plain http is only accepted for loopback hosts.
func ValidateEndpoint(endpoint string) error {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid s3 endpoint: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid s3 endpoint %q: absolute URL with host is required", endpoint)
	}
	if u.User != nil {
		return fmt.Errorf("invalid s3 endpoint %q: userinfo is not allowed", endpoint)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid s3 endpoint %q: query and fragment are not allowed", endpoint)
	}

	host := strings.ToLower(u.Hostname())
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("invalid s3 endpoint %q: https is required for non-local hosts", endpoint)
		}
	default:
		return fmt.Errorf("invalid s3 endpoint %q: scheme must be https", endpoint)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
