package model

// TextInputPart is a content part sent with a chat request.
type TextInputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ModelSelection pins the provider and model for one request.
type ModelSelection struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// ChatInput is the body of POST /session/{id}/message.
type ChatInput struct {
	Parts []TextInputPart `json:"parts"`
	Model *ModelSelection `json:"model,omitempty"`
	Agent string          `json:"agent,omitempty"`
}

// NewTextInput builds a ChatInput holding a single text part.
// An empty provider or model leaves the selection to the backend.
func NewTextInput(text string, sel *ModelSelection, agent string) ChatInput {
	in := ChatInput{
		Parts: []TextInputPart{{Type: string(PartTypeText), Text: text}},
		Agent: agent,
	}
	if sel != nil && sel.ProviderID != "" && sel.ModelID != "" {
		s := *sel
		in.Model = &s
	}
	return in
}

// Text returns the concatenated text of the input parts.
func (in ChatInput) Text() string {
	var out string
	for _, p := range in.Parts {
		out += p.Text
	}
	return out
}
