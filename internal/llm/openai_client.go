package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClient adapts *openai.Client to the chatClient interface so the
// gateway (and tests) never depend on the concrete stream type.
type openAIClient struct {
	c *openai.Client
}

func (o *openAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return o.c.CreateChatCompletion(ctx, req)
}

func (o *openAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error) {
	return o.c.CreateChatCompletionStream(ctx, req)
}
