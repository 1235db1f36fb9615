// Package config loads the process's environment-variable surface
// through viper, the way the Solana-adjacent tools in the retrieval
// pack bind flat env-var configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every environment input the core and its adjacent HTTP
// surface read at startup.
type Config struct {
	DatabaseURL    string
	RPCEndpointHTTP string
	RPCEndpointWSS  string
	AuthServiceURL  string
	Port            int
}

// Load reads the process environment into a Config, applying the
// documented default for PORT. Every other field is required; a missing
// one is a fatal configuration error, the only one the process treats as
// fatal rather than logging and continuing.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetDefault("PORT", 8080)

	cfg := Config{
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RPCEndpointHTTP: v.GetString("RPC_ENDPOINT_HTTP"),
		RPCEndpointWSS:  v.GetString("RPC_ENDPOINT_WSS"),
		AuthServiceURL:  v.GetString("AUTH_SERVICE_URL"),
		Port:            v.GetInt("PORT"),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.RPCEndpointHTTP == "" {
		missing = append(missing, "RPC_ENDPOINT_HTTP")
	}
	if cfg.RPCEndpointWSS == "" {
		missing = append(missing, "RPC_ENDPOINT_WSS")
	}
	if cfg.AuthServiceURL == "" {
		missing = append(missing, "AUTH_SERVICE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variables: %v", missing)
	}
	return cfg, nil
}
