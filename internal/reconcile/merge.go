package reconcile

import (
	"sort"
	"time"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// Content-equivalence time windows. The agent window is wider because an
// optimistic local insert and the store echo of the same send can be a
// full persistence round-trip apart.
const (
	agentWindow = 60 * time.Second
	otherWindow = 15 * time.Second
)

// Equivalent reports whether two message representations describe the
// same underlying message.
func Equivalent(a, b model.Message) bool {
	if a.ProviderID != "" && a.ProviderID == b.ProviderID {
		return true
	}
	// One side's provider id may be the other's local id: a locally
	// inserted message is later re-delivered carrying its local id as
	// the transport id.
	if a.ProviderID != "" && a.ProviderID == b.ID {
		return true
	}
	if b.ProviderID != "" && b.ProviderID == a.ID {
		return true
	}
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	// Content fallback for messages that have not been assigned any
	// shared identity yet.
	if a.Sender != b.Sender {
		return false
	}
	content := a.NormalizedContent()
	if content == "" || content != b.NormalizedContent() {
		return false
	}
	window := otherWindow
	if a.Sender == model.SenderAgent {
		window = agentWindow
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}

// prefer reports whether a wins over b when two equivalent messages are
// collapsed. ia/ib are insertion positions in the combined input, used
// as the middle tie-breaker so repeated merges stay order-stable.
func prefer(a, b model.Message, ia, ib int) bool {
	if (a.ProviderID != "") != (b.ProviderID != "") {
		return a.ProviderID != ""
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.ProviderID != b.ProviderID {
		return a.ProviderID < b.ProviderID
	}
	if ia != ib {
		return ia < ib
	}
	return a.ID < b.ID
}

// complete fills any optional field missing on the survivor but present
// on the loser, so e.g. a media URL that arrived late on the other
// channel is not dropped.
func complete(survivor, other model.Message) model.Message {
	if survivor.ProviderID == "" {
		survivor.ProviderID = other.ProviderID
	}
	if survivor.ID == "" {
		survivor.ID = other.ID
	}
	if survivor.MediaURL == "" {
		survivor.MediaURL = other.MediaURL
	}
	if len(survivor.Raw) == 0 {
		survivor.Raw = other.Raw
	}
	if survivor.Type == "" {
		survivor.Type = other.Type
	}
	if other.Status.AtLeast(survivor.Status) {
		survivor.Status = other.Status
	}
	// Hidden is a local-only flag; a provider re-delivery of a consumed
	// message must stay hidden.
	if other.Hidden {
		survivor.Hidden = true
	}
	return survivor
}

// Merge combines two ordered message collections into one, resolving
// duplicates per Equivalent and ordering the result by timestamp with a
// deterministic tie-break chain. Merge is commutative and idempotent:
// Merge(A,B) is effectively Merge(B,A), and re-merging a result with
// either input is a no-op.
func Merge(a, b []model.Message) []model.Message {
	type slot struct {
		msg   model.Message
		index int
	}

	combined := make([]model.Message, 0, len(a)+len(b))
	combined = append(combined, a...)
	combined = append(combined, b...)

	// Fast path: index survivors by explicit identity keys so the common
	// case (matching provider or local ids) avoids a full scan.
	byKey := make(map[string]int, len(combined))
	var out []slot

	find := func(m model.Message) int {
		for _, k := range []string{m.ProviderID, m.ID} {
			if k == "" {
				continue
			}
			if i, ok := byKey[k]; ok {
				return i
			}
		}
		for i := range out {
			if Equivalent(out[i].msg, m) {
				return i
			}
		}
		return -1
	}

	index := func(m model.Message, i int) {
		if m.ProviderID != "" {
			byKey[m.ProviderID] = i
		}
		if m.ID != "" {
			byKey[m.ID] = i
		}
	}

	for pos, m := range combined {
		i := find(m)
		if i < 0 {
			out = append(out, slot{msg: m, index: pos})
			index(m, len(out)-1)
			continue
		}
		existing := out[i]
		if prefer(m, existing.msg, pos, existing.index) {
			out[i] = slot{msg: complete(m, existing.msg), index: pos}
		} else {
			out[i].msg = complete(existing.msg, m)
		}
		index(out[i].msg, i)
	}

	merged := make([]model.Message, len(out))
	for i, s := range out {
		merged[i] = s.msg
	}

	sort.SliceStable(merged, func(i, j int) bool {
		mi, mj := merged[i], merged[j]
		if !mi.Timestamp.Equal(mj.Timestamp) {
			return mi.Timestamp.Before(mj.Timestamp)
		}
		if mi.ProviderID != mj.ProviderID {
			return mi.ProviderID < mj.ProviderID
		}
		return mi.ID < mj.ID
	})
	return merged
}
