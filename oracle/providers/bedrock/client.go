// Package bedrock adapts AWS Bedrock's Converse API to the
// oracle.Provider interface, following ai/providers/bedrock/client.go,
// which wraps bedrockruntime.Client's Converse call behind
// core.AIClient.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/itsneelabh/agentcore/core"
)

// DefaultModel is Bedrock's Claude 3 Sonnet inference profile id, used
// when no model is configured.
const DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"

// Client implements oracle.Provider for AWS Bedrock.
type Client struct {
	runtime *bedrockruntime.Client
	model   string
	logger  core.Logger
}

// New builds a bedrockruntime.Client from cfg and wraps it.
func New(cfg aws.Config, model string, logger core.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Client{
		runtime: bedrockruntime.NewFromConfig(cfg),
		model:   model,
		logger:  logger,
	}
}

// Generate implements oracle.Provider via Bedrock's Converse API.
func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error) {
	temp := float32(temperature)
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(temp)},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: bedrock converse: %v", core.ErrOracle, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("%w: bedrock returned no message", core.ErrOracle)
	}
	for _, block := range msg.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			return textBlock.Value, nil
		}
	}
	return "", fmt.Errorf("%w: bedrock response had no text content", core.ErrOracle)
}

// Stream implements oracle.Provider via Bedrock's ConverseStream API.
func (c *Client) Stream(ctx context.Context, prompt, systemPrompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		input := &bedrockruntime.ConverseStreamInput{
			ModelId: aws.String(c.model),
			Messages: []types.Message{
				{
					Role: types.ConversationRoleUser,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberText{Value: prompt},
					},
				},
			},
		}
		if systemPrompt != "" {
			input.System = []types.SystemContentBlock{
				&types.SystemContentBlockMemberText{Value: systemPrompt},
			}
		}

		resp, err := c.runtime.ConverseStream(ctx, input)
		if err != nil {
			errc <- fmt.Errorf("%w: bedrock converse stream: %v", core.ErrOracle, err)
			return
		}

		stream := resp.GetStream()
		defer stream.Close()
		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			textDelta, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok {
				continue
			}
			select {
			case out <- textDelta.Value:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errc <- fmt.Errorf("%w: %v", core.ErrOracle, err)
		}
	}()

	return out, errc
}
