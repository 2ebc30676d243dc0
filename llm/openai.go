package llm

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAIStreamer streams chat completions from the OpenAI API.
type OpenAIStreamer struct {
	client *openai.Client
	model  string
}

// NewOpenAIStreamer creates an OpenAI-backed streamer from environment
// variables (OPENAI_API_KEY, OPENAI_MODEL).
func NewOpenAIStreamer() (*OpenAIStreamer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT3Dot5Turbo
		log.Printf("OPENAI_MODEL not set, defaulting to %s", model)
	}

	return &OpenAIStreamer{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Model returns the configured model identifier
func (o *OpenAIStreamer) Model() string {
	return o.model
}

// StreamCompletion opens a token stream for the given prompts
func (o *OpenAIStreamer) StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (CompletionStream, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Stream: true,
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &openaiStream{stream: stream}, nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next content fragment. Chunks without content (role
// prelude, finish marker) are skipped so callers only see text.
func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			// io.EOF passes through as the clean-end signal
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		return content, nil
	}
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
