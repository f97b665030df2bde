package email

import "context"

// Message is a rendered transactional email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Template string `json:"template,omitempty"`
}

// Notifier dispatches transactional email.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
