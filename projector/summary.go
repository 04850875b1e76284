package projector

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"bizdesk/domain"
)

var entityLabels = map[string]string{
	domain.EntityTypeClient:   "Client",
	domain.EntityTypeProposal: "Proposal",
	domain.EntityTypeContract: "Contract",
	domain.EntityTypeTx:       "Transaction",
	domain.EntityTypeService:  "Service",
}

var changeVerbs = map[string]string{
	domain.EntityCreated: "created",
	domain.EntityUpdated: "updated",
	domain.EntityDeleted: "deleted",
}

// Summarize renders the activity line of an event. Unknown event types and
// payloads that do not decode report false.
func Summarize(ev domain.Event) (domain.Activity, bool) {
	var summary string
	switch ev.Type {
	case domain.CardMoved:
		var d domain.CardMovedData
		if err := sonic.Unmarshal(ev.Data, &d); err != nil {
			return domain.Activity{}, false
		}
		if d.FromStage == d.ToStage {
			summary = fmt.Sprintf("Client reordered within %s", d.ToStage)
		} else {
			summary = fmt.Sprintf("Client moved from %s to %s", d.FromStage, d.ToStage)
		}
	case domain.InteractionAdded:
		var in domain.Interaction
		if err := sonic.Unmarshal(ev.Data, &in); err != nil {
			return domain.Activity{}, false
		}
		summary = fmt.Sprintf("Logged %s: %s", in.Type, excerpt(in.Content, 80))
	case domain.EntityCreated, domain.EntityUpdated, domain.EntityDeleted:
		var d domain.EntityChangedData
		if len(ev.Data) > 0 {
			if err := sonic.Unmarshal(ev.Data, &d); err != nil {
				return domain.Activity{}, false
			}
		}
		label, ok := entityLabels[ev.EntityType]
		if !ok {
			label = ev.EntityType
		}
		summary = label
		if d.Name != "" {
			summary += fmt.Sprintf(" %q", d.Name)
		}
		summary += " " + changeVerbs[ev.Type]
		if d.Status != "" && ev.Type != domain.EntityDeleted {
			summary += " (" + d.Status + ")"
		}
	default:
		return domain.Activity{}, false
	}
	return domain.Activity{
		ID:         ev.ID,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Type:       ev.Type,
		Summary:    summary,
		At:         time.Unix(0, ev.Timestamp).UTC(),
	}, true
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
