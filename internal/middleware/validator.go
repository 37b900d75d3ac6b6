package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)
	isrcPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$`)
	keyPattern  = regexp.MustCompile(`^[a-zA-Z0-9_./-]{1,512}$`)
)

// ValidateAudioRef accepts a public http(s) URL or an object storage key.
func ValidateAudioRef(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("audio_url cannot be empty")
	}
	if strings.Contains(ref, "://") {
		return ValidateURL(ref)
	}
	if strings.Contains(ref, "..") || !keyPattern.MatchString(ref) {
		return fmt.Errorf("invalid audio object key")
	}
	return nil
}

// ValidateURL validates and sanitizes URLs
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL host cannot be empty")
	}

	// Check for localhost/internal IPs (SSRF protection)
	host := strings.ToLower(u.Hostname())
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1"}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
	}

	// Block private IP ranges (basic check)
	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "169.254.") ||
		isPrivate172(host) {
		return fmt.Errorf("private IP ranges are not allowed")
	}

	return nil
}

// 172.16.0.0/12
func isPrivate172(host string) bool {
	var a, b int
	if n, _ := fmt.Sscanf(host, "%d.%d.", &a, &b); n != 2 {
		return false
	}
	return a == 172 && b >= 16 && b <= 31
}

// ValidateID validates release, track and scan identifiers
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid %s format (alphanumeric, dash, underscore, dot, colon only, max 64 chars)", field)
	}
	return nil
}

// ValidateISRC checks the 12 character ISRC format; empty is allowed.
func ValidateISRC(isrc string) error {
	if isrc == "" {
		return nil
	}
	normalized := strings.ToUpper(strings.ReplaceAll(isrc, "-", ""))
	if !isrcPattern.MatchString(normalized) {
		return fmt.Errorf("invalid ISRC: %s", isrc)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 50 // default
	}
	if limit > 200 {
		return 200 // max limit
	}
	return limit
}
