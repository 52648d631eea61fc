package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dkeye/parley/internal/domain"
)

// OpenAI generates utterances through the chat completions API, staying
// in character via the agent's opaque profile payload.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (o *OpenAI) Utterance(ctx context.Context, agent domain.Agent, window []domain.Message) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(agent)),
			openai.UserMessage(transcript(window) + "\n\nReply with your next line only, no speaker prefix."),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Suggestions issues one completion per requested style so a single
// malformed reply costs one candidate, not the whole set.
func (o *OpenAI) Suggestions(ctx context.Context, agent domain.Agent, window []domain.Message, n int) ([]domain.Suggestion, error) {
	styles := []struct{ style, rationale string }{
		{"warm", "keeps the exchange friendly and open"},
		{"blunt", "moves the conversation to the point"},
		{"curious", "draws out detail from the previous speaker"},
	}
	out := make([]domain.Suggestion, 0, n)
	for i := 0; i < n; i++ {
		st := styles[i%len(styles)]
		resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: o.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt(agent)),
				openai.UserMessage(fmt.Sprintf("%s\n\nOffer one possible next line in a %s tone. Reply with the line only.", transcript(window), st.style)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("suggestion completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		out = append(out, domain.Suggestion{
			Text:      strings.TrimSpace(resp.Choices[0].Message.Content),
			Style:     st.style,
			Rationale: st.rationale,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("suggestion completion: no candidates")
	}
	return out, nil
}

func systemPrompt(agent domain.Agent) string {
	return fmt.Sprintf("You are %s, a participant in a group conversation. Persona: %s\nStay in character. Keep replies under three sentences.", agent.Name, agent.Profile)
}

func transcript(window []domain.Message) string {
	if len(window) == 0 {
		return "The conversation has just started."
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range window {
		fmt.Fprintf(&b, "%s: %s\n", m.AgentName, m.Text)
	}
	return b.String()
}
