package domain

// Suggestion is one candidate reply offered during a possessed turn.
type Suggestion struct {
	Text      string `json:"text"`
	Style     string `json:"style"`
	Rationale string `json:"rationale"`
}
