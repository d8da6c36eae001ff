package groupchat

import (
	"strings"

	"github.com/haasonsaas/groupchat/internal/events"
)

// Condition is a pluggable termination predicate evaluated over the most
// recent delta of events appended to the thread (spec.md §4.1
// "Termination"). Check returns the stop reason and whether the run should
// end; Reset clears any accumulated state (e.g. a running message count)
// after a termination fires, since the manager resets termination state on
// every stop.
type Condition interface {
	Check(delta []events.Event) (reason string, terminate bool)
	Reset()
}

// TextMention terminates the run the first time any ChatMessage in a delta
// contains phrase, grounded on the original implementation's
// TextMentionTermination("TERMINATE") convention.
type TextMention struct {
	Phrase string
}

// NewTextMention returns a Condition that fires on the first ChatMessage
// containing phrase.
func NewTextMention(phrase string) *TextMention { return &TextMention{Phrase: phrase} }

func (t *TextMention) Check(delta []events.Event) (string, bool) {
	for _, ev := range delta {
		cm, ok := ev.(events.ChatMessage)
		if !ok {
			continue
		}
		if strings.Contains(cm.Content, t.Phrase) {
			return "text mention: " + t.Phrase, true
		}
	}
	return "", false
}

func (t *TextMention) Reset() {}

// MaxMessages terminates the run once the cumulative number of ChatMessages
// observed across all calls to Check reaches Limit, grounded on the
// original implementation's MaxMessageTermination.
type MaxMessages struct {
	Limit int
	seen  int
}

// NewMaxMessages returns a Condition that fires once limit ChatMessages
// have been seen across the run's lifetime.
func NewMaxMessages(limit int) *MaxMessages { return &MaxMessages{Limit: limit} }

func (m *MaxMessages) Check(delta []events.Event) (string, bool) {
	for _, ev := range delta {
		if _, ok := ev.(events.ChatMessage); ok {
			m.seen++
		}
	}
	if m.Limit > 0 && m.seen >= m.Limit {
		return "maximum number of messages reached", true
	}
	return "", false
}

func (m *MaxMessages) Reset() { m.seen = 0 }

// Any combines conditions with OR semantics: the first one to fire wins,
// and Reset resets all of them.
type Any struct {
	Conditions []Condition
}

// NewAny returns a Condition that fires as soon as any of conds does.
func NewAny(conds ...Condition) *Any { return &Any{Conditions: conds} }

func (a *Any) Check(delta []events.Event) (string, bool) {
	for _, c := range a.Conditions {
		if reason, ok := c.Check(delta); ok {
			return reason, true
		}
	}
	return "", false
}

func (a *Any) Reset() {
	for _, c := range a.Conditions {
		c.Reset()
	}
}
