package domain

import (
	"regexp"
	"strings"
	"time"
)

// Client is a customer record. Stage and Position place it on the sales
// funnel board.
type Client struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Company       string        `json:"company,omitempty"`
	TaxID         string        `json:"taxId,omitempty"`
	Email         string        `json:"email,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	City          string        `json:"city,omitempty"`
	State         string        `json:"state,omitempty"`
	Status        string        `json:"status,omitempty"`
	Value         int64         `json:"value"`
	ReferenceDate string        `json:"referenceDate,omitempty"`
	Stage         string        `json:"stage,omitempty"`
	Position      int           `json:"position"`
	Interactions  []Interaction `json:"interactions,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// placeholder domains are rejected so records carry a reachable address
var placeholderEmailDomains = map[string]struct{}{
	"example.com": {},
	"test.com":    {},
	"localhost":   {},
	"invalid.com": {},
}

// ValidateEmail checks the address syntax and rejects placeholder domains.
func ValidateEmail(email string) error {
	if email == "" {
		return Invalid("email", "required")
	}
	if !emailPattern.MatchString(email) {
		return Invalid("email", "malformed address")
	}
	domain := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	if _, ok := placeholderEmailDomains[domain]; ok {
		return Invalid("email", "placeholder domain "+domain)
	}
	return nil
}

// Validate checks the fields a client form requires.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "required")
	}
	if c.Email != "" {
		if err := ValidateEmail(c.Email); err != nil {
			return err
		}
	}
	if c.Value < 0 {
		return Invalid("value", "must not be negative")
	}
	if c.Position < 0 {
		return Invalid("position", "must not be negative")
	}
	if err := validDate("referenceDate", c.ReferenceDate, false); err != nil {
		return err
	}
	for _, in := range c.Interactions {
		if err := in.Validate(); err != nil {
			return err
		}
	}
	return nil
}
