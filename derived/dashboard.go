package derived

import (
	"sort"
	"strings"
	"time"

	"bizdesk/domain"
)

// revenueHorizon bounds the projected revenue KPI.
const revenueHorizon = 90

// evolutionMonths is the length of the monthly evolution series.
const evolutionMonths = 6

// StageCount is the number of cards in one board stage.
type StageCount struct {
	Stage string `json:"stage"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// KPIs are the headline numbers of the dashboard.
type KPIs struct {
	TotalClients     int   `json:"totalClients"`
	ProposalsSent    int   `json:"proposalsSent"`
	ContractsClosed  int   `json:"contractsClosed"`
	ContractsActive  int   `json:"contractsActive"`
	ProjectedRevenue int64 `json:"projectedRevenue"`
}

// Alert flags an entity whose date needs attention.
type Alert struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Title      string    `json:"title"`
	Badge      Badge     `json:"badge"`
	Indicator  Indicator `json:"indicator"`
}

// MonthCount is one month of the evolution series. Month is YYYY-MM.
type MonthCount struct {
	Month     string `json:"month"`
	Proposals int    `json:"proposals"`
	Contracts int    `json:"contracts"`
}

// RegionCount is the number of clients in one state.
type RegionCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Dashboard is the aggregated overview of a user's data.
type Dashboard struct {
	KPIs    KPIs          `json:"kpis"`
	Funnel  []StageCount  `json:"funnel"`
	Finance Summary       `json:"finance"`
	Monthly []MonthCount  `json:"monthly"`
	Regions []RegionCount `json:"regions"`
	Alerts  []Alert       `json:"alerts"`
}

// DashboardInput is the snapshot a dashboard is computed from.
type DashboardInput struct {
	Clients      []domain.Client
	Proposals    []domain.Proposal
	Contracts    []domain.Contract
	Transactions []domain.Transaction
	Funnel       []StageCount
}

// BuildDashboard computes KPIs and alerts as of today.
//
// A proposal counts as sent once it left draft. A contract counts as closed
// once signed, whatever its later status. Projected revenue is pending income
// falling due within the next 90 days, plus anything already late.
func BuildDashboard(in DashboardInput, today time.Time) Dashboard {
	d := Dashboard{
		KPIs:    KPIs{TotalClients: len(in.Clients)},
		Funnel:  append([]StageCount(nil), in.Funnel...),
		Finance: FinancialSummary(in.Transactions),
		Monthly: MonthlyEvolution(in.Proposals, in.Contracts, today),
		Regions: Regions(in.Clients),
		Alerts:  Alerts(in.Proposals, in.Contracts, in.Transactions, today),
	}
	for _, p := range in.Proposals {
		if p.Status != domain.ProposalDraft {
			d.KPIs.ProposalsSent++
		}
	}
	for _, c := range in.Contracts {
		if c.SignedAt != "" || c.Status == domain.ContractActive || c.Status == domain.ContractCompleted {
			d.KPIs.ContractsClosed++
		}
		if c.Status == domain.ContractActive {
			d.KPIs.ContractsActive++
		}
	}
	for _, tx := range in.Transactions {
		if tx.Type != domain.Income || tx.Status == domain.TransactionPaid {
			continue
		}
		due := tx.DueDate
		if due == "" {
			due = tx.Date
		}
		days, err := DaysUntilISO(due, today)
		if err != nil || days > revenueHorizon {
			continue
		}
		d.KPIs.ProjectedRevenue += magnitude(tx.Amount)
	}
	return d
}

// MonthlyEvolution counts proposals by creation month and contracts by
// signing month (start month when unsigned) over the last six months ending
// with today's month, oldest first. Undated or malformed entries are skipped.
func MonthlyEvolution(proposals []domain.Proposal, contracts []domain.Contract, today time.Time) []MonthCount {
	y, m, _ := today.Date()
	first := time.Date(y, m-evolutionMonths+1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]MonthCount, evolutionMonths)
	for i := range out {
		out[i].Month = first.AddDate(0, i, 0).Format("2006-01")
	}
	bucket := func(date string) int {
		t, err := domain.ParseDate(date)
		if err != nil {
			return -1
		}
		i := (t.Year()-first.Year())*12 + int(t.Month()-first.Month())
		if i < 0 || i >= evolutionMonths {
			return -1
		}
		return i
	}
	for _, p := range proposals {
		if i := bucket(p.CreatedAt); i >= 0 {
			out[i].Proposals++
		}
	}
	for _, c := range contracts {
		date := c.SignedAt
		if date == "" {
			date = c.StartDate
		}
		if i := bucket(date); i >= 0 {
			out[i].Contracts++
		}
	}
	return out
}

// Regions groups clients by state, largest first and by name on ties.
// Clients without a state are left out.
func Regions(clients []domain.Client) []RegionCount {
	counts := make(map[string]int)
	for _, c := range clients {
		if st := strings.ToUpper(strings.TrimSpace(c.State)); st != "" {
			counts[st]++
		}
	}
	out := make([]RegionCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, RegionCount{State: st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].State < out[j].State
	})
	return out
}

// Alerts lists every open entity with an indicator, most urgent first.
func Alerts(proposals []domain.Proposal, contracts []domain.Contract, txs []domain.Transaction, today time.Time) []Alert {
	var out []Alert
	for _, p := range proposals {
		if ind, ok := ProposalExpiry(p, today); ok {
			out = append(out, Alert{domain.EntityTypeProposal, p.ID, p.Title, StatusBadge(p.Status), ind})
		}
	}
	for _, c := range contracts {
		if ind, ok := ContractDeadline(c, today); ok {
			out = append(out, Alert{domain.EntityTypeContract, c.ID, c.Title, StatusBadge(c.Status), ind})
		}
	}
	for _, tx := range txs {
		if ind, ok := TransactionDue(tx, today); ok {
			out = append(out, Alert{domain.EntityTypeTx, tx.ID, tx.Description, StatusBadge(tx.Status), ind})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Indicator.Severity.Rank(), out[j].Indicator.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Indicator.DaysLeft < out[j].Indicator.DaysLeft
	})
	return out
}
