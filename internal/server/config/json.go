package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr                 string         `json:"endpoint_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	JWTPrivateKeyPath            string         `json:"jwt_private_key_path"`
	JWTPublicKeyPath             string         `json:"jwt_public_key_path"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RefreshTokenCookieName       string         `json:"refresh_token_cookie_name"`
	RefreshTokenCookieSecure     bool           `json:"refresh_token_cookie_secure"`
	PasswordHashMemoryKB         uint32         `json:"password_hash_memory_kb"`
	PasswordHashTime             uint32         `json:"password_hash_time"`
	PasswordHashParallelism      uint8          `json:"password_hash_parallelism"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. Only values present in the file
// override the defaults. If the file cannot be read or contains invalid
// JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.JWTPrivateKeyPath != "" {
		config.JWTPrivateKeyPath = c.JWTPrivateKeyPath
	}
	if c.JWTPublicKeyPath != "" {
		config.JWTPublicKeyPath = c.JWTPublicKeyPath
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	}
	if c.RefreshTokenCookieName != "" {
		config.RefreshTokenCookieName = c.RefreshTokenCookieName
	}
	if c.RefreshTokenCookieSecure {
		config.RefreshTokenCookieSecure = true
	}
	if c.PasswordHashMemoryKB != 0 {
		config.PasswordHashMemoryKB = c.PasswordHashMemoryKB
	}
	if c.PasswordHashTime != 0 {
		config.PasswordHashTime = c.PasswordHashTime
	}
	if c.PasswordHashParallelism != 0 {
		config.PasswordHashParallelism = c.PasswordHashParallelism
	}
}
