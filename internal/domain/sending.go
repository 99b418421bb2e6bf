package domain

// EmailMessage is a fully-resolved message ready for a transport. Content is
// passed through as given; no template substitution happens in this system.
type EmailMessage struct {
	To          string            `json:"to"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content,omitempty"`
	TextContent string            `json:"text_content,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// SendFailure describes one recipient that could not be delivered to.
type SendFailure struct {
	To    string `json:"to"`
	Error string `json:"error"`
}
