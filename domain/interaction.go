package domain

import (
	"strings"
	"time"
)

// InteractionType classifies a logged contact with a client.
type InteractionType string

const (
	InteractionCall      InteractionType = "call"
	InteractionEmail     InteractionType = "email"
	InteractionMeeting   InteractionType = "meeting"
	InteractionMessaging InteractionType = "messaging"
)

// ParseInteractionType normalizes t. "whatsapp" is accepted as messaging.
func ParseInteractionType(t string) (InteractionType, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "call":
		return InteractionCall, nil
	case "email":
		return InteractionEmail, nil
	case "meeting":
		return InteractionMeeting, nil
	case "messaging", "whatsapp":
		return InteractionMessaging, nil
	}
	return "", Invalid("type", "unknown interaction type "+t)
}

// Interaction is a contact event attached to a client card.
type Interaction struct {
	Type      InteractionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Content   string          `json:"content"`
}

// Validate rejects blank content and unknown types.
func (i Interaction) Validate() error {
	if _, err := ParseInteractionType(string(i.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(i.Content) == "" {
		return Invalid("content", "interaction content is required")
	}
	return nil
}
