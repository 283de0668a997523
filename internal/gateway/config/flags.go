package config

import (
	"flag"
	"os"
	"time"

	"github.com/osokin-dev/gatehouse/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   listen address (e.g., ":8080")
//	-n string   bus URL (e.g., "nats://127.0.0.1:4222")
//	-w int      bus request timeout, seconds
//	-k string   path to the RSA public key PEM
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-n", "-w", "-k", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "listen address")
	fs.StringVar(&config.BusURL, "n", config.BusURL, "bus URL")
	fs.StringVar(&config.PublicKeyPath, "k", config.PublicKeyPath, "RSA public key path")

	busTimeout := fs.Int("w", int(config.BusTimeout.Seconds()), "bus request timeout (in seconds)")
	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.BusTimeout = time.Duration(*busTimeout) * time.Second
	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
