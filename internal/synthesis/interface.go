package synthesis

import "context"

// Synthesizer turns response text into encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, streaming bool) ([]byte, error)
}
