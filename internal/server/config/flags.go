package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   path to the PEM-encoded RSA private key
//	-p string   path to the PEM-encoded RSA public key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, days
//	-n string   refresh-token cookie name
//	-s          mark the refresh-token cookie Secure
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers and converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-p", "-t", "-r", "-n", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTPrivateKeyPath, "k", config.JWTPrivateKeyPath, "path to RSA private key (PEM)")
	fs.StringVar(&config.JWTPublicKeyPath, "p", config.JWTPublicKeyPath, "path to RSA public key (PEM)")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Hours()/24), "refresh_token_validity_duration (in days)")

	fs.StringVar(&config.RefreshTokenCookieName, "n", config.RefreshTokenCookieName, "refresh token cookie name")
	fs.BoolVar(&config.RefreshTokenCookieSecure, "s", config.RefreshTokenCookieSecure, "set Secure on the refresh token cookie")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * 24 * time.Hour
}
