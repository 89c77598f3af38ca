/*
Package config loads the server configuration from a TOML file with
environment-variable overrides.

PURPOSE:
  Produces the Configuration record the rest of the process consumes:
  bind address, store selector, auth selector, body cap, log settings.
  The settings named by the VSS_* constants below can be overridden by
  their environment variables, so containerized deployments can run
  without a file at all. cors_allowed_origins, log_json and rsa_pem_file
  have no environment variable and are read from the file only.

SEE ALSO:
  - cmd/server/main.go: the only consumer
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Environment variables overriding file values.
const (
	BindAddressVar  = "VSS_BIND_ADDRESS"
	StoreTypeVar    = "VSS_STORE_TYPE"
	SQLitePathVar   = "VSS_SQLITE_PATH"
	AuthProviderVar = "VSS_AUTH_PROVIDER"
	JWTRSAPEMVar    = "VSS_JWT_RSA_PEM"
	MaxBodyBytesVar = "VSS_MAX_BODY_BYTES"
	LogLevelVar     = "VSS_LOG_LEVEL"
)

// Store selectors.
const (
	StoreTypeSQLite   = "sqlite"
	StoreTypeInMemory = "in-memory"
)

// Auth provider selectors.
const (
	AuthProviderNone      = "none"
	AuthProviderJWT       = "jwt"
	AuthProviderSignature = "signature"
)

// Config is the parsed configuration file.
type Config struct {
	Server  ServerConfig  `toml:"server_config"`
	JWTAuth JWTAuthConfig `toml:"jwt_auth_config"`
	SQLite  SQLiteConfig  `toml:"sqlite_config"`
}

// ServerConfig configures the listener and request handling.
type ServerConfig struct {
	BindAddress        string   `toml:"bind_address"`
	StoreType          string   `toml:"store_type"`
	AuthProvider       string   `toml:"auth_provider"`
	MaxBodyBytes       int64    `toml:"max_body_bytes"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	LogLevel           string   `toml:"log_level"`
	LogJSON            bool     `toml:"log_json"`
}

// JWTAuthConfig configures the bearer-token authenticator. RSAPEM holds
// the public key inline; RSAPEMFile points at a PEM file instead.
type JWTAuthConfig struct {
	RSAPEM     string `toml:"rsa_pem"`
	RSAPEMFile string `toml:"rsa_pem_file"`
}

// SQLiteConfig configures the durable backend.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// Load reads the configuration file at path (optional; empty means
// defaults only), applies environment overrides and validates selectors.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BindAddress:  ":8080",
			StoreType:    StoreTypeSQLite,
			AuthProvider: AuthProviderNone,
		},
		SQLite: SQLiteConfig{Path: "vss.db"},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
	}

	applyEnv(&cfg.Server.BindAddress, BindAddressVar)
	applyEnv(&cfg.Server.StoreType, StoreTypeVar)
	applyEnv(&cfg.Server.AuthProvider, AuthProviderVar)
	applyEnv(&cfg.Server.LogLevel, LogLevelVar)
	applyEnv(&cfg.SQLite.Path, SQLitePathVar)
	applyEnv(&cfg.JWTAuth.RSAPEM, JWTRSAPEMVar)
	if v, ok := os.LookupEnv(MaxBodyBytesVar); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", MaxBodyBytesVar, v, err)
		}
		cfg.Server.MaxBodyBytes = n
	}

	switch cfg.Server.StoreType {
	case StoreTypeSQLite, StoreTypeInMemory:
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Server.StoreType)
	}
	switch cfg.Server.AuthProvider {
	case AuthProviderNone, AuthProviderJWT, AuthProviderSignature:
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Server.AuthProvider)
	}
	if cfg.Server.AuthProvider == AuthProviderJWT && cfg.JWTAuth.RSAPEM == "" && cfg.JWTAuth.RSAPEMFile == "" {
		return nil, fmt.Errorf("jwt auth provider requires an RSA public key")
	}

	return cfg, nil
}

// JWTPublicKeyPEM resolves the configured RSA public key, reading the
// file variant when the inline value is empty.
func (c *Config) JWTPublicKeyPEM() ([]byte, error) {
	if c.JWTAuth.RSAPEM != "" {
		return []byte(c.JWTAuth.RSAPEM), nil
	}
	pem, err := os.ReadFile(c.JWTAuth.RSAPEMFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read RSA public key file: %w", err)
	}
	return pem, nil
}

func applyEnv(target *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok {
		*target = v
	}
}
