package domain

import (
	"strings"
	"time"
)

// Contract is a signed agreement, optionally born from an accepted proposal.
type Contract struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	ClientID    string         `json:"clientId"`
	ClientName  string         `json:"clientName,omitempty"`
	Description string         `json:"description,omitempty"`
	Value       int64          `json:"value"`
	Status      ContractStatus `json:"status"`
	StartDate   string         `json:"startDate"`
	EndDate     string         `json:"endDate"`
	SignedAt    string         `json:"signedAt,omitempty"`
	Services    []LineItem     `json:"services"`
	ProposalID  string         `json:"proposalId,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (c Contract) Normalize() Contract {
	if c.Status == "" {
		c.Status = ContractActive
	}
	items := make([]LineItem, len(c.Services))
	for i, it := range c.Services {
		items[i] = it.Normalize()
	}
	c.Services = items
	c.Value = SumItems(items)
	return c
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return Invalid("title", "required")
	}
	if c.ClientID == "" && c.ClientName == "" {
		return Invalid("client", "required")
	}
	if !c.Status.valid() {
		return Invalid("status", "unknown contract status "+string(c.Status))
	}
	if err := validDate("startDate", c.StartDate, true); err != nil {
		return err
	}
	if err := validDate("endDate", c.EndDate, true); err != nil {
		return err
	}
	if err := validDate("signedAt", c.SignedAt, false); err != nil {
		return err
	}
	start, _ := ParseDate(c.StartDate)
	end, _ := ParseDate(c.EndDate)
	if end.Before(start) {
		return Invalid("endDate", "must not be before startDate")
	}
	for _, it := range c.Services {
		if err := it.validate(); err != nil {
			return err
		}
	}
	return nil
}
