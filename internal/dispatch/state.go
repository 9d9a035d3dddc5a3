package dispatch

// Message is one entry in the accumulated conversation history.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// RunState is the snapshot sent to a worker on each dispatch and
// replaced wholesale by the worker's returned snapshot. It is owned
// exclusively by one supervisor run; workers receive a copy.
type RunState struct {
	Messages []Message              `json:"messages"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Clone returns a copy-on-send snapshot of the state.
func (s RunState) Clone() RunState {
	out := RunState{
		Messages: make([]Message, len(s.Messages)),
	}
	copy(out.Messages, s.Messages)
	if s.Context != nil {
		out.Context = make(map[string]interface{}, len(s.Context))
		for k, v := range s.Context {
			out.Context[k] = v
		}
	}
	return out
}

// FirstUser returns the original request (the first user message).
func (s RunState) FirstUser() (string, bool) {
	for _, m := range s.Messages {
		if m.Role == "user" {
			return m.Content, true
		}
	}
	return "", false
}

// LastAssistant returns the newest assistant message, which is where a
// worker embeds its completion contract.
func (s RunState) LastAssistant() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}
