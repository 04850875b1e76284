package derived

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bizdesk/domain"
)

func clientIDs(cs []domain.Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestFilterClients(t *testing.T) {
	clients := []domain.Client{
		{ID: "1", Name: "Maria Souza", Company: "Souza Tech LTDA", TaxID: "12.345.678/0001-90", Status: "active"},
		{ID: "2", Name: "João Pereira", Company: "Pereira Consultoria", TaxID: "98.765.432/0001-10", Status: "inactive"},
		{ID: "3", Name: "Ana Lima", Company: "Lima & Filhos", TaxID: "11.222.333/0001-44", Status: "active"},
	}
	tests := []struct {
		name   string
		query  string
		status string
		want   []string
	}{
		{"empty query keeps all", "", "", []string{"1", "2", "3"}},
		{"name substring", "maria", "", []string{"1"}},
		{"company substring", "consult", "", []string{"2"}},
		{"tax id punctuated", "345.678", "", []string{"1"}},
		{"tax id digits only", "98765432", "", []string{"2"}},
		{"status filter", "", "active", []string{"1", "3"}},
		{"all status", "lima", "all", []string{"3"}},
		{"typo in name", "perera", "", []string{"2"}},
		{"short query is never fuzzy", "lma", "", []string{}},
		{"status excludes match", "maria", "inactive", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clientIDs(FilterClients(clients, tt.query, tt.status))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}
