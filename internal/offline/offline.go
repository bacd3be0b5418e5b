// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https URLs are allowed")

	// ErrNonLocalhost is returned for remote hosts under a local-only policy.
	ErrNonLocalhost = errors.New("local-only mode: server must be on localhost")
)

// Policy restricts where the inference server may live.
type Policy struct {
	// LocalOnly accepts loopback hosts only.
	LocalOnly bool
}

// CheckURL validates a server URL against the policy. The scheme is
// checked whether or not LocalOnly is set.
func (p Policy) CheckURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse %q: %w", rawURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidURLScheme, rawURL)
	}
	if p.LocalOnly && !IsLocalhost(parsed.Hostname()) {
		return fmt.Errorf("%w (got %s)", ErrNonLocalhost, parsed.Hostname())
	}
	return nil
}

// String returns a short label for status lines.
func (p Policy) String() string {
	if p.LocalOnly {
		return "local-only"
	}
	return "network"
}

// IsLocalhost reports whether host names this machine. It accepts an
// optional port and bracketed IPv6 forms. Every 127.0.0.0/8 address and
// every spelling of ::1 count as loopback.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
