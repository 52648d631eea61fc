package persona

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/dkeye/parley/internal/domain"
)

// Scripted is a deterministic collaborator used when no API key is
// configured, and in tests. Output depends only on the agent and the
// conversation length, so replays are stable.
type Scripted struct{}

func NewScripted() *Scripted { return &Scripted{} }

var scriptedLines = []string{
	"I keep coming back to what was said earlier. There is more to it.",
	"Say that again, slower. I want to be sure I heard it right.",
	"That is one way to see it. Here is another.",
	"Hm. Let me sit with that for a moment before I answer properly.",
	"You all talk as if this were settled. It is not settled.",
	"Fine. But someone should say the obvious thing, so I will.",
}

var scriptedStyles = []struct {
	style     string
	rationale string
	template  string
}{
	{"warm", "keeps the exchange friendly and open", "I like where this is going — %s, tell me more."},
	{"blunt", "moves the conversation to the point", "Let's be direct: what do we actually do about it?"},
	{"curious", "draws out detail from the previous speaker", "Wait — before we move on, what did you mean by that last part?"},
}

func (s *Scripted) Utterance(ctx context.Context, agent domain.Agent, window []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := fnv.New32a()
	h.Write([]byte(agent.ID))
	idx := (int(h.Sum32()) + len(window)) % len(scriptedLines)
	if idx < 0 {
		idx += len(scriptedLines)
	}
	return scriptedLines[idx], nil
}

func (s *Scripted) Suggestions(ctx context.Context, agent domain.Agent, window []domain.Message, n int) ([]domain.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last := "friend"
	if len(window) > 0 {
		last = window[len(window)-1].AgentName
	}
	out := make([]domain.Suggestion, 0, n)
	for i := 0; i < n; i++ {
		st := scriptedStyles[i%len(scriptedStyles)]
		text := st.template
		if strings.Contains(text, "%s") {
			text = fmt.Sprintf(text, last)
		}
		out = append(out, domain.Suggestion{Text: text, Style: st.style, Rationale: st.rationale})
	}
	return out, nil
}
