package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/oracle"
	"github.com/itsneelabh/agentcore/oracle/providers/bedrock"
	"github.com/itsneelabh/agentcore/oracle/providers/mock"
	"github.com/itsneelabh/agentcore/oracle/providers/openai"
)

// buildProvider selects the oracle.Provider backend named by
// cfg.Oracle.Provider, following the same env-driven provider switch
// examples/orchestrator/main.go uses for its AI client.
func buildProvider(ctx context.Context, cfg *serverConfig, logger core.Logger) (oracle.Provider, error) {
	switch cfg.Oracle.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("oracle provider openai requires OPENAI_API_KEY")
		}
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Oracle.Model, logger), nil
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for bedrock: %w", err)
		}
		return bedrock.New(awsCfg, cfg.Oracle.Model, logger), nil
	case "mock", "":
		return &mock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
	}
}
