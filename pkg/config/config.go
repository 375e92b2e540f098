// Package config loads the orchestrator's configuration: a YAML file for
// the committee roster and threshold policy (environment variables in
// ${VAR_NAME} / ${VAR_NAME:-default} form are substituted first, the
// same convention this module's teacher uses for its anchor config), and
// plain environment variables for everything else.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
)

// MemberConfig is one committee roster entry.
type MemberConfig struct {
	PublicKeyHex string `yaml:"public_key"`
	StakeUnits   uint64 `yaml:"stake_units"`
	BaseURL      string `yaml:"base_url"`
	Blocklisted  bool   `yaml:"blocklisted"`
}

// RosterConfig is the YAML document shape: the committee roster plus any
// threshold override.
type RosterConfig struct {
	ValidityThresholdBps uint64         `yaml:"validity_threshold_bps"`
	Members              []MemberConfig `yaml:"members"`
}

// Config holds every setting the orchestrator binary needs to start.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	WALDir        string // empty selects an in-memory WAL, for local testing only
	QueueCapacity int

	OrchestratorKeyPath   string
	GasObjectID           string
	DestinationRPCURL     string
	DestinationChainID    int64
	BridgeContractAddress string

	SigningRequestTimeout time.Duration

	Roster RosterConfig
}

// Load reads the committee roster from rosterPath and layers the rest of
// the configuration on top from environment variables.
func Load(rosterPath string) (*Config, error) {
	roster, err := loadRoster(rosterPath)
	if err != nil {
		return nil, fmt.Errorf("config: load roster: %w", err)
	}

	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		WALDir:        getEnv("WAL_DIR", "./data/wal"),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 1000),

		OrchestratorKeyPath:   getEnv("ORCHESTRATOR_KEY_PATH", ""),
		GasObjectID:           getEnv("GAS_OBJECT_ID", ""),
		DestinationRPCURL:     getEnv("DESTINATION_RPC_URL", ""),
		DestinationChainID:    getEnvInt64("DESTINATION_CHAIN_ID", 11155111),
		BridgeContractAddress: getEnv("BRIDGE_CONTRACT_ADDRESS", ""),

		SigningRequestTimeout: getEnvDuration("SIGNING_REQUEST_TIMEOUT", 10*time.Second),

		Roster: *roster,
	}
	return cfg, nil
}

// loadRoster reads path, substitutes ${VAR} / ${VAR:-default} references
// against the process environment, and parses the resulting YAML.
func loadRoster(path string) (*RosterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg RosterConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	if cfg.ValidityThresholdBps == 0 {
		cfg.ValidityThresholdBps = bridgeaction.DefaultValidityThresholdBps
	}
	return &cfg, nil
}

// Committee converts the loaded roster into a bridgeaction.Committee.
func (c *Config) Committee() (*bridgeaction.Committee, error) {
	members := make([]bridgeaction.AuthorityMember, 0, len(c.Roster.Members))
	for _, m := range c.Roster.Members {
		pub, err := hex.DecodeString(m.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: member %s: invalid public key: %w", m.BaseURL, err)
		}
		members = append(members, bridgeaction.AuthorityMember{
			PublicKey:   pub,
			StakeUnits:  m.StakeUnits,
			BaseURL:     m.BaseURL,
			Blocklisted: m.Blocklisted,
		})
	}
	return bridgeaction.NewCommittee(members), nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
