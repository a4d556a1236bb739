package ai

import (
	"context"
	"strings"
)

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// Collect drains a stream, calling onChunk with the text accumulated so far
// after every chunk. It returns the full text or the first stream error.
func Collect(ctx context.Context, sp StreamProvider, messages []Message, onChunk func(sofar string)) (string, error) {
	chunks, errs := sp.StreamChat(ctx, messages)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if onChunk != nil {
			onChunk(b.String())
		}
	}
	// errs is closed after chunks; a nil receive means no error was sent
	if err := <-errs; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
