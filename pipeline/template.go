package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bizdesk/domain"
)

// Template is the stage layout a board is built with.
type Template struct {
	Stages []StageTemplate `yaml:"stages"`
}

// StageTemplate names one column.
type StageTemplate struct {
	ID    StageID `yaml:"id"`
	Title string  `yaml:"title"`
}

// DefaultTemplate is the funnel used when no template file is configured.
func DefaultTemplate() Template {
	return Template{Stages: []StageTemplate{
		{ID: "initial-contact", Title: "Initial Contact"},
		{ID: "proposal", Title: "Proposal"},
		{ID: "contract", Title: "Contract"},
		{ID: "service", Title: "Service"},
		{ID: "closed", Title: "Closed"},
	}}
}

// LoadTemplate reads a YAML template from path. An empty path yields the
// default template.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read board template: %w", err)
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes and validates a YAML template.
//
//	stages:
//	  - id: lead
//	    title: Lead
func ParseTemplate(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, domain.Invalid("template", err.Error())
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Validate requires at least one stage and unique, non-blank ids. A blank
// title falls back to the id.
func (t Template) Validate() error {
	if len(t.Stages) == 0 {
		return domain.Invalid("stages", "template has no stages")
	}
	seen := make(map[StageID]bool, len(t.Stages))
	for _, s := range t.Stages {
		if strings.TrimSpace(string(s.ID)) == "" {
			return domain.Invalid("stages", "stage without id")
		}
		if seen[s.ID] {
			return domain.Invalid("stages", "duplicate stage "+string(s.ID))
		}
		seen[s.ID] = true
	}
	return nil
}

// First returns the stage new clients are placed in.
func (t Template) First() StageID {
	if len(t.Stages) == 0 {
		return ""
	}
	return t.Stages[0].ID
}

// Has reports whether id is a stage of the template.
func (t Template) Has(id StageID) bool {
	for _, s := range t.Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SeedFromClients places clients on the template's stages by their stored
// stage and position. Clients with an unknown or empty stage land at the end
// of the first stage. Ties on position keep creation order.
func (t Template) SeedFromClients(clients []domain.Client) Seed {
	byStage := make(map[StageID][]domain.Client, len(t.Stages))
	for _, c := range clients {
		stage := StageID(c.Stage)
		if !t.Has(stage) {
			stage = t.First()
			c.Position = int(^uint(0) >> 1)
		}
		byStage[stage] = append(byStage[stage], c)
	}

	seed := Seed{Stages: make([]Stage, len(t.Stages)), Cards: make([]Card, 0, len(clients))}
	for i, st := range t.Stages {
		title := st.Title
		if title == "" {
			title = string(st.ID)
		}
		members := byStage[st.ID]
		sort.SliceStable(members, func(a, b int) bool {
			if members[a].Position != members[b].Position {
				return members[a].Position < members[b].Position
			}
			if !members[a].CreatedAt.Equal(members[b].CreatedAt) {
				return members[a].CreatedAt.Before(members[b].CreatedAt)
			}
			return members[a].ID < members[b].ID
		})
		order := make([]CardID, len(members))
		for j, c := range members {
			order[j] = CardID(c.ID)
			seed.Cards = append(seed.Cards, CardFromClient(c))
		}
		seed.Stages[i] = Stage{ID: st.ID, Title: title, CardOrder: order}
	}
	return seed
}

// CardFromClient projects the board-relevant fields of a client.
func CardFromClient(c domain.Client) Card {
	return Card{
		ID:            CardID(c.ID),
		Name:          c.Name,
		Organization:  c.Company,
		Value:         c.Value,
		ReferenceDate: c.ReferenceDate,
		Interactions:  append([]domain.Interaction(nil), c.Interactions...),
	}
}
