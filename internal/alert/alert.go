// Package alert turns warnings into operator messages and decides which of
// them are new enough to report again.
package alert

import (
	"sort"
	"strings"
	"time"

	"dirdoctor/internal/check"
	"dirdoctor/internal/store"
)

// Message is one rendered warning.
type Message struct {
	Kind     check.Kind
	Severity Severity
	Interval time.Duration
	// Text is the full line, and the key under which its emission time is
	// stored.
	Text string
}

// Render produces one message per fired kind, errors first, then warnings,
// then notices. Within a severity the kind order is kept.
func Render(w check.Warnings) []Message {
	out := make([]Message, 0, len(w))
	for _, k := range w.Kinds() {
		details := w[k]
		rule := RuleFor(k)
		sev := rule.Severity
		if rule.EscalateAbove > 0 && len(details) > rule.EscalateAbove {
			sev = Error
		}
		out = append(out, Message{
			Kind:     k,
			Severity: sev,
			Interval: rule.Interval,
			Text:     sev.String() + ": " + rule.Template + strings.Join(details, ", "),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

// Outcome is the result of comparing messages against the state.
type Outcome struct {
	All []Message
	New []Message
	// State is the state to persist; it is the input state when Changed is
	// false.
	State   store.State
	Changed bool
}

// Evaluate splits messages into all and new. A message is new when it was
// never emitted or its interval has passed since. When anything is new,
// every current message gets now as its emission time.
func Evaluate(messages []Message, state store.State, now time.Time) Outcome {
	if state == nil {
		state = store.State{}
	}
	out := Outcome{All: messages, State: state}
	for _, m := range messages {
		last, ok := state[m.Text]
		if !ok || last.Add(m.Interval).Before(now) {
			out.New = append(out.New, m)
		}
	}
	if len(out.New) == 0 {
		return out
	}

	next := state.Clone()
	for _, m := range messages {
		next[m.Text] = now
	}
	out.State = next
	out.Changed = true
	return out
}

// Lines returns the text of each message.
func Lines(messages []Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Text
	}
	return out
}
