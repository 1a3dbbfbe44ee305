// Package responder turns caller utterances into agent replies. The
// production implementation keeps a local language model conversation per
// call; anything that can answer text with text satisfies the interface.
package responder

import "context"

// Responder produces the agent's next line given the caller's utterance.
type Responder interface {
	// Reply answers the caller. Conversation state, if any, is the
	// implementation's concern.
	Reply(ctx context.Context, utterance string) (string, error)

	// Reset clears any per-call conversation state.
	Reset()
}
