package derived

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"bizdesk/domain"
)

const (
	fuzzyMinQuery    = 4
	fuzzyMaxDistance = 2
)

// FilterClients keeps clients matching query and status. The query matches
// case-insensitively as a substring of the name, company or tax id; tax ids
// also match on digits alone so punctuation can be omitted. Queries of four
// or more characters fall back to a typo-tolerant match against the words of
// the name. An empty status or "all" keeps every status. Order is preserved.
func FilterClients(clients []domain.Client, query, status string) []domain.Client {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		if status != "" && status != "all" && !strings.EqualFold(c.Status, status) {
			continue
		}
		if q == "" || matchesClient(c, q) {
			out = append(out, c)
		}
	}
	return out
}

func matchesClient(c domain.Client, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Company), q) ||
		strings.Contains(strings.ToLower(c.TaxID), q) {
		return true
	}
	if digits := onlyDigits(q); digits != "" && digits == q {
		if strings.Contains(onlyDigits(c.TaxID), digits) {
			return true
		}
	}
	if len([]rune(q)) < fuzzyMinQuery {
		return false
	}
	for _, word := range strings.FieldsFunc(strings.ToLower(c.Name), isSeparator) {
		if levenshtein.ComputeDistance(word, q) <= fuzzyMaxDistance {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
