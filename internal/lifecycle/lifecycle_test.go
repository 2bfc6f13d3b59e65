package lifecycle

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

func userMsg(content string) model.Message {
	return model.Message{Sender: model.SenderUser, Content: content, Timestamp: time.Now()}
}

func TestEvaluate_ReopenOnInbound(t *testing.T) {
	c := &model.Conversation{ID: "c1", Status: model.StatusClosed}
	effects := Evaluate(c, userMsg("oi, ainda preciso de ajuda"))

	if len(effects) != 1 {
		t.Fatalf("effects = %+v, want one Reopen", effects)
	}
	if _, ok := effects[0].(Reopen); !ok {
		t.Errorf("effect = %T, want Reopen", effects[0])
	}
}

func TestEvaluate_RatingCapture(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int // 0 = reopen instead
	}{
		{"digit four", "4", 4},
		{"digit one", "1", 1},
		{"digit five with spaces", " 5 ", 5},
		{"out of range", "6", 0},
		{"zero", "0", 0},
		{"not a digit", "obrigado", 0},
		{"digit inside text", "nota 4", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Conversation{ID: "c1", Status: model.StatusClosed, AwaitingRating: true}
			effects := Evaluate(c, userMsg(tt.content))
			if len(effects) != 1 {
				t.Fatalf("effects = %+v", effects)
			}
			if tt.want != 0 {
				cr, ok := effects[0].(CaptureRating)
				if !ok || cr.Value != tt.want {
					t.Errorf("effect = %+v, want CaptureRating{%d}", effects[0], tt.want)
				}
			} else {
				if _, ok := effects[0].(Reopen); !ok {
					t.Errorf("effect = %T, want Reopen for non-rating reply", effects[0])
				}
			}
		})
	}
}

func TestEvaluate_RatingOnlyWhenAwaiting(t *testing.T) {
	// "4" on a closed conversation NOT awaiting a rating is an ordinary
	// inbound message: reopen.
	c := &model.Conversation{ID: "c1", Status: model.StatusClosed}
	effects := Evaluate(c, userMsg("4"))
	if len(effects) != 1 {
		t.Fatalf("effects = %+v", effects)
	}
	if _, ok := effects[0].(Reopen); !ok {
		t.Errorf("effect = %T, want Reopen", effects[0])
	}
}

func TestEvaluate_OpenConversationsUntouched(t *testing.T) {
	for _, status := range []model.Status{model.StatusOpen, model.StatusPending} {
		c := &model.Conversation{ID: "c1", Status: status}
		if effects := Evaluate(c, userMsg("oi")); len(effects) != 0 {
			t.Errorf("status %s produced effects: %+v", status, effects)
		}
	}
}

func TestEvaluate_NonUserSendersIgnored(t *testing.T) {
	c := &model.Conversation{ID: "c1", Status: model.StatusClosed}
	for _, sender := range []model.Sender{model.SenderAgent, model.SenderSystem} {
		msg := model.Message{Sender: sender, Content: "follow-up", Timestamp: time.Now()}
		if effects := Evaluate(c, msg); len(effects) != 0 {
			t.Errorf("sender %s produced effects: %+v", sender, effects)
		}
	}
}
