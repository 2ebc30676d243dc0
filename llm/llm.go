// Package llm abstracts the external chat completion services used to
// generate replies. Both backends expose the same fragment-stream contract.
package llm

import "context"

// CompletionStream is a finite, single-consumer sequence of reply fragments.
// Recv returns fragments in delivery order and io.EOF once the stream is
// exhausted; any other error means the generation failed mid-stream.
// Fragments already delivered remain valid after a failure. The stream is not
// restartable.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionStreamer produces a completion stream for a system/user prompt
// pair.
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (CompletionStream, error)
	// Model reports the model identifier recorded on conversations.
	Model() string
}
