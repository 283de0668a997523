package config

import (
	"encoding/json"
	"os"

	"github.com/osokin-dev/gatehouse/internal/flagx"
	"github.com/osokin-dev/gatehouse/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "2s" and integer nanoseconds. After
// unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	Addr                         string         `json:"addr"`
	BusURL                       string         `json:"bus_url"`
	BusTimeout                   timex.Duration `json:"bus_timeout"`
	PublicKeyPath                string         `json:"public_key_path"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	GoogleClientID               string         `json:"google_client_id"`
	GoogleClientSecret           string         `json:"google_client_secret"`
	GoogleRedirectURL            string         `json:"google_redirect_url"`
	CookieSecure                 *bool          `json:"cookie_secure"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flags into the provided Config. Absent file means no overlay;
// an unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.Addr != "" {
		config.Addr = c.Addr
	}
	if c.BusURL != "" {
		config.BusURL = c.BusURL
	}
	if c.BusTimeout.Duration != 0 {
		config.BusTimeout = c.BusTimeout.Duration
	}
	if c.PublicKeyPath != "" {
		config.PublicKeyPath = c.PublicKeyPath
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.GoogleClientID != "" {
		config.GoogleClientID = c.GoogleClientID
	}
	if c.GoogleClientSecret != "" {
		config.GoogleClientSecret = c.GoogleClientSecret
	}
	if c.GoogleRedirectURL != "" {
		config.GoogleRedirectURL = c.GoogleRedirectURL
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}
