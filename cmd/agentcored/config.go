package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// serverConfig is the process-level configuration cmd/agentcored needs
// beyond core.Config's operational knobs: which oracle provider to
// wire, where Redis lives, and what to listen on. It loads from an
// optional YAML file and is then overlaid by environment variables,
// the same two-stage convention core.Config.LoadFromEnv uses for the
// tunables it owns.
type serverConfig struct {
	Port         int    `yaml:"port"`
	RedisURL     string `yaml:"redis_url"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	Oracle struct {
		Provider string `yaml:"provider"` // "openai", "bedrock", or "mock"
		Model    string `yaml:"model"`
	} `yaml:"oracle"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`

	Bedrock struct {
		Region string `yaml:"region"`
	} `yaml:"bedrock"`
}

func defaultServerConfig() *serverConfig {
	c := &serverConfig{Port: 8080}
	c.Oracle.Provider = "mock"
	return c
}

// loadServerConfig reads path (if non-empty and present) as YAML, then
// overlays AGENTCORED_*/well-known provider env vars on top, mirroring
// examples/orchestrator/main.go's construction-from-env idiom for
// everything YAML doesn't cover (secrets, in particular, never belong
// in the checked-in config file).
func loadServerConfig(path string) (*serverConfig, error) {
	c := defaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("AGENTCORED_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
	if v := os.Getenv("ORACLE_PROVIDER"); v != "" {
		c.Oracle.Provider = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Bedrock.Region = v
	}

	return c, nil
}
