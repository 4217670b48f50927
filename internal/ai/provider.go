package ai

import "context"

type Message struct {
	Role    string
	Content string
}

// Request is one chat-completion call: a system prompt, ordered turns, and
// generation bounds.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Result struct {
	Content    string
	TokensUsed int
}

type Provider interface {
	Chat(ctx context.Context, req Request) (*Result, error)
}
