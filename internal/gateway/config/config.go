// Package config handles configuration for the HTTP gateway,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the gateway process.
//
// Fields:
//   - Addr: listen address for the HTTP server.
//   - BusURL: NATS endpoint requests are bridged onto.
//   - BusTimeout: per-request deadline for correlated bus calls.
//   - PublicKeyPath: PEM-encoded RSA public key used to verify session claims.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: cookie
//     max-ages, matching the token lifetimes the worker issues.
//   - GoogleClientID / GoogleClientSecret / GoogleRedirectURL: OAuth provider
//     settings for the consent redirect.
//   - CookieSecure: Secure attribute on session cookies; disable only for
//     plain-HTTP development.
type Config struct {
	Addr                         string
	BusURL                       string
	BusTimeout                   time.Duration
	PublicKeyPath                string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	GoogleClientID               string
	GoogleClientSecret           string
	GoogleRedirectURL            string
	CookieSecure                 bool
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.BusURL = "nats://127.0.0.1:4222"
	c.BusTimeout = 2 * time.Second
	c.PublicKeyPath = "certs/session.pub"
	c.AccessTokenValidityDuration = 1 * time.Hour
	c.RefreshTokenValidityDuration = 30 * 24 * time.Hour
	c.GoogleRedirectURL = "http://localhost:8080/auth/google/callback"
	c.CookieSecure = true
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
