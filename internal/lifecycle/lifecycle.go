// Package lifecycle governs open/pending/closed transitions, automatic
// reopening on inbound messages, and the post-close rating sub-flow.
// Like routing, transitions are pure; the engine executes the effects.
package lifecycle

import (
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// Effect is one requested lifecycle side effect.
type Effect interface{ isEffect() }

// CaptureRating consumes the inbound message as a 1–5 rating: rating is
// persisted, awaitingRating cleared, status stays closed.
type CaptureRating struct {
	Value int
}

// Reopen moves a closed conversation back to pending: assignee,
// department and endedAt are cleared. The engine combines this with the
// routing re-entry into a single authoritative write so the persisted
// state never shows closed after the prompt went out.
type Reopen struct{}

func (CaptureRating) isEffect() {}
func (Reopen) isEffect()        {}

// ratingValue parses a message that is exactly one of the digits 1–5.
func ratingValue(content string) int {
	s := strings.TrimSpace(content)
	if len(s) != 1 {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 5 {
		return 0
	}
	return n
}

// Evaluate runs one lifecycle transition for an inbound message.
// Only closed conversations react here; open⇄pending and explicit
// closes are agent/administrator actions applied elsewhere.
func Evaluate(c *model.Conversation, incoming model.Message) []Effect {
	if incoming.Sender != model.SenderUser {
		return nil
	}
	if c.Status != model.StatusClosed {
		return nil
	}

	if c.AwaitingRating {
		if v := ratingValue(incoming.Content); v != 0 {
			return []Effect{CaptureRating{Value: v}}
		}
		// Any other reply while awaiting a rating reopens normally.
	}
	return []Effect{Reopen{}}
}
