// Package config holds the call manager runtime configuration and the
// candidate profile loader.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the towerline server configuration
type Config struct {
	// APIAddr is the HTTP API listen address
	APIAddr string
	// LogLevel controls slog verbosity (debug, info, warn, error)
	LogLevel string
	// NodeID identifies this instance in emitted events
	NodeID string
	// ProfilePath points to the YAML candidate profile
	ProfilePath string
	// DialTimeout bounds a single radio dial attempt
	DialTimeout time.Duration
	// APISecret is the HMAC secret for API bearer tokens; empty disables auth
	APISecret string
	// Domain selects the selection pipeline mode: "ps", "cs", or "off"
	Domain string
	// RadioPowerDelay simulates the radio power-on latency
	RadioPowerDelay time.Duration
	// SIPGateway enables the SIP radio backend when set (host or host:port)
	SIPGateway string
	// SIPAdvertiseAddr is our local SIP identity host
	SIPAdvertiseAddr string
	// SIPPort is our local SIP identity port
	SIPPort int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIAddr:          ":8080",
		LogLevel:         "info",
		NodeID:           "towerline-0",
		ProfilePath:      "resources/config/profile.yaml",
		DialTimeout:      30 * time.Second,
		Domain:           "ps",
		RadioPowerDelay:  500 * time.Millisecond,
		SIPAdvertiseAddr: "127.0.0.1",
		SIPPort:          5060,
	}
}

// ApplyEnv overrides fields from environment variables if set.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv("API_ADDR"); addr != "" {
		c.APIAddr = addr
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		c.LogLevel = loglevel
	}
	if node := os.Getenv("NODE_ID"); node != "" {
		c.NodeID = node
	}
	if profile := os.Getenv("PROFILE_PATH"); profile != "" {
		c.ProfilePath = profile
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		c.APISecret = secret
	}
	if domain := os.Getenv("DOMAIN"); domain != "" {
		c.Domain = domain
	}
	if gw := os.Getenv("SIP_GATEWAY"); gw != "" {
		c.SIPGateway = gw
	}
	if addr := os.Getenv("SIP_ADVERTISE_ADDR"); addr != "" {
		c.SIPAdvertiseAddr = addr
	}
	if port := os.Getenv("SIP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.SIPPort = p
		}
	}
	if timeout := os.Getenv("DIAL_TIMEOUT_SECONDS"); timeout != "" {
		if s, err := strconv.Atoi(timeout); err == nil && s > 0 {
			c.DialTimeout = time.Duration(s) * time.Second
		}
	}
}
