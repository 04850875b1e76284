package domain

import (
	"strings"
	"time"
)

// LineItem is a priced service line on a proposal or contract.
type LineItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	TotalPrice  int64  `json:"totalPrice"`
}

// Normalize fills TotalPrice from quantity and unit price when unset.
func (li LineItem) Normalize() LineItem {
	if li.TotalPrice == 0 {
		li.TotalPrice = int64(li.Quantity) * li.UnitPrice
	}
	return li
}

func (li LineItem) validate() error {
	if strings.TrimSpace(li.Name) == "" {
		return Invalid("services.name", "required")
	}
	if li.Quantity <= 0 {
		return Invalid("services.quantity", "must be positive")
	}
	if li.UnitPrice < 0 || li.TotalPrice < 0 {
		return Invalid("services.price", "must not be negative")
	}
	return nil
}

// SumItems totals the line items.
func SumItems(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.TotalPrice
	}
	return total
}

// Proposal is a priced offer sent to a client.
type Proposal struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	ClientID    string         `json:"clientId"`
	ClientName  string         `json:"clientName,omitempty"`
	Description string         `json:"description,omitempty"`
	Value       int64          `json:"value"`
	Status      ProposalStatus `json:"status"`
	CreatedAt   string         `json:"createdAt"`
	ValidUntil  string         `json:"validUntil"`
	Services    []LineItem     `json:"services"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Normalize defaults the status and recomputes the value from line items.
func (p Proposal) Normalize() Proposal {
	if p.Status == "" {
		p.Status = ProposalDraft
	}
	items := make([]LineItem, len(p.Services))
	for i, it := range p.Services {
		items[i] = it.Normalize()
	}
	p.Services = items
	p.Value = SumItems(items)
	return p
}

func (p Proposal) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return Invalid("title", "required")
	}
	if p.ClientID == "" && p.ClientName == "" {
		return Invalid("client", "required")
	}
	if !p.Status.valid() {
		return Invalid("status", "unknown proposal status "+string(p.Status))
	}
	if err := validDate("validUntil", p.ValidUntil, true); err != nil {
		return err
	}
	if err := validDate("createdAt", p.CreatedAt, false); err != nil {
		return err
	}
	if len(p.Services) == 0 {
		return Invalid("services", "at least one service is required")
	}
	for _, it := range p.Services {
		if err := it.validate(); err != nil {
			return err
		}
	}
	return nil
}
