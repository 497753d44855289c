package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds channel node configuration.
type Config struct {
	ServerAddr       string
	DatabaseURL      string
	DatabaseMaxConns int32
	MigrationsDir    string
	MessagingTimeout time.Duration
	ShutdownTimeout  time.Duration
	CacheEntries     int64
	LogLevel         string
	// Peers maps remote identifiers to the base URL of the node hosting them.
	Peers         map[string]string
	InboundRules  string
	OutboundRules string
}

// Load reads configuration from environment. Signing keys are read by the
// keystore. An empty DATABASE_URL selects the in-memory store.
func Load() (*Config, error) {
	peers, err := ParsePeers(os.Getenv("CHANNEL_NODE_PEERS"))
	if err != nil {
		return nil, err
	}
	maxConns, err := strconv.ParseInt(getenv("DATABASE_MAX_CONNS", "10"), 10, 32)
	if err != nil || maxConns < 0 {
		return nil, fmt.Errorf("invalid DATABASE_MAX_CONNS: %q", os.Getenv("DATABASE_MAX_CONNS"))
	}

	return &Config{
		ServerAddr:       getenv("CHANNEL_NODE_ADDR", "0.0.0.0:18080"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseMaxConns: int32(maxConns),
		MigrationsDir:    getenv("CHANNEL_NODE_MIGRATIONS_DIR", "internal/migrations"),
		MessagingTimeout: parseDuration(getenv("CHANNEL_NODE_MESSAGING_TIMEOUT", "10s"), 10*time.Second),
		ShutdownTimeout:  parseDuration(getenv("CHANNEL_NODE_SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		CacheEntries:     parseInt64(getenv("CHANNEL_NODE_CACHE_ENTRIES", "1024"), 1024),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		Peers:            peers,
		InboundRules:     os.Getenv("RULES_INBOUND"),
		OutboundRules:    os.Getenv("RULES_OUTBOUND"),
	}, nil
}

// ParsePeers parses a comma separated list of identifier@url entries.
// Identifiers are base64 and never contain '@'.
func ParsePeers(raw string) (map[string]string, error) {
	peers := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		identifier, baseURL, ok := strings.Cut(entry, "@")
		identifier = strings.TrimSpace(identifier)
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if !ok || identifier == "" || baseURL == "" {
			return nil, fmt.Errorf("invalid peer entry %q: want identifier@url", entry)
		}
		if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
			return nil, fmt.Errorf("invalid peer url %q", baseURL)
		}
		peers[identifier] = baseURL
	}
	return peers, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt64(val string, def int64) int64 {
	if val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
