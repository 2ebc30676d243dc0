package llm

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiStreamer streams chat completions from the Gemini API.
type GeminiStreamer struct {
	client *genai.Client
	model  string
}

// NewGeminiStreamer creates a Gemini-backed streamer from environment
// variables (GEMINI_API_KEY, GEMINI_MODEL).
func NewGeminiStreamer(ctx context.Context) (*GeminiStreamer, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
		log.Printf("GEMINI_MODEL not set, defaulting to %s", model)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GeminiStreamer{
		client: client,
		model:  model,
	}, nil
}

// Model returns the configured model identifier
func (g *GeminiStreamer) Model() string {
	return g.model
}

// StreamCompletion opens a token stream for the given prompts
func (g *GeminiStreamer) StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (CompletionStream, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	iter := model.GenerateContentStream(ctx, genai.Text(userPrompt))
	return &geminiStream{iter: iter}, nil
}

// Close releases the underlying client connection
func (g *GeminiStreamer) Close() error {
	return g.client.Close()
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

// Recv returns the next content fragment, mapping iterator.Done to io.EOF so
// both backends share the same end-of-stream signal.
func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err := s.iter.Next()
		if err != nil {
			if err == iterator.Done {
				return "", io.EOF
			}
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		text := partsToText(resp.Candidates[0].Content.Parts)
		if text == "" {
			continue
		}
		return text, nil
	}
}

func (s *geminiStream) Close() error {
	// The iterator has no resources to release; cancellation happens through
	// the request context.
	return nil
}

func partsToText(parts []genai.Part) string {
	var text string
	for _, part := range parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}
