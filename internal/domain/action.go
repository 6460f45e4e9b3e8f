package domain

// Action is one outbound unit sent to a running session: executable code, a
// chat message, and/or a private reasoning annotation. Actions are
// fire-and-forget and never persisted locally.
type Action struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Thoughts string `json:"thoughts,omitempty"`
}

func (a Action) Validate() error {
	if a.Code == "" && a.Message == "" && a.Thoughts == "" {
		return ErrEmptyAction
	}
	return nil
}

// Credentials identify the agent to the arena service. They come from the
// read-only credential store and are never written by this tool.
type Credentials struct {
	AgentName string
	APIKey    string
}

func (c Credentials) Validate() error {
	if c.AgentName == "" || c.APIKey == "" {
		return ErrNoCredentials
	}
	return nil
}
