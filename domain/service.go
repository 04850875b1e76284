package domain

import (
	"strings"
	"time"
)

// ServiceUnit is the billing unit of a catalog service.
type ServiceUnit string

const (
	UnitHour    ServiceUnit = "hour"
	UnitProject ServiceUnit = "project"
	UnitMonth   ServiceUnit = "month"
	UnitYear    ServiceUnit = "year"
)

// Service is an entry of the service catalog used to build proposals.
type Service struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Category       string      `json:"category,omitempty"`
	BasePrice      int64       `json:"basePrice"`
	Unit           ServiceUnit `json:"unit"`
	EstimatedHours int         `json:"estimatedHours,omitempty"`
	Active         bool        `json:"active"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (s Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("name", "required")
	}
	switch s.Unit {
	case UnitHour, UnitProject, UnitMonth, UnitYear:
	default:
		return Invalid("unit", "expected hour, project, month or year")
	}
	if s.BasePrice < 0 {
		return Invalid("basePrice", "must not be negative")
	}
	if s.EstimatedHours < 0 {
		return Invalid("estimatedHours", "must not be negative")
	}
	return nil
}
