package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"bizdesk/domain"
	"bizdesk/pipeline"
)

func TestDecodeClientPrefersPlacementColumns(t *testing.T) {
	r, err := clientRow("u1", domain.Client{ID: "c1", Name: "Acme", Stage: "proposal", Position: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload, err := sonic.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"Stage":"proposal"`) || !strings.Contains(string(payload), `"Position":1`) {
		t.Fatalf("expected placement columns, got %s", payload)
	}

	pos := 4
	r.Stage, r.Position = "closed", &pos
	c, err := decodeClient(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Name != "Acme" || c.Stage != "closed" || c.Position != 4 {
		t.Fatalf("unexpected client: %+v", c)
	}
}

func TestDecodeRowFromTableJSON(t *testing.T) {
	data := []byte(`{"PartitionKey":"u1","RowKey":"p1","Timestamp":"2024-01-01T00:00:00Z","Data":"{\"title\":\"Site\",\"status\":\"sent\"}"}`)
	r, err := decodeRow(data)
	if err != nil {
		t.Fatalf("decode row: %v", err)
	}
	p, err := decodeProposal(r)
	if err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if p.ID != "p1" || p.Title != "Site" || p.Status != domain.ProposalSent {
		t.Fatalf("unexpected proposal: %+v", p)
	}

	if _, err := decodeService(row{RowKey: "s1", Data: "{"}); err == nil {
		t.Fatal("expected error for corrupt data column")
	}
}

func TestPlacementActions(t *testing.T) {
	actions, err := placementActions("u1", []pipeline.Placement{
		{CardID: "c1", Stage: "proposal", Position: 0},
		{CardID: "c2", Stage: "proposal", Position: 1},
	})
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	for _, a := range actions {
		if a.ActionType != aztables.TransactionTypeUpdateMerge {
			t.Fatalf("expected merge action, got %v", a.ActionType)
		}
		if strings.Contains(string(a.Entity), `"Data"`) {
			t.Fatalf("merge payload must not rewrite data: %s", a.Entity)
		}
	}
	if !strings.Contains(string(actions[1].Entity), `"RowKey":"c2"`) {
		t.Fatalf("unexpected payload: %s", actions[1].Entity)
	}
}

func TestPartitionFilterEscapesQuotes(t *testing.T) {
	if got := partitionFilter("o'brien"); got != "PartitionKey eq 'o''brien'" {
		t.Fatalf("unexpected filter %q", got)
	}
}

func TestActivityRowKeySortsNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := activityRowKey(domain.Activity{ID: "a", At: base})
	newer := activityRowKey(domain.Activity{ID: "b", At: base.Add(time.Second)})
	if !(newer < older) {
		t.Fatalf("expected newer key %q to sort before %q", newer, older)
	}
}

func TestContinuationTokens(t *testing.T) {
	rk := activityRowKey(domain.Activity{ID: "evt", At: time.Unix(10, 0)})
	got, err := decodeToken(encodeToken(rk))
	if err != nil || got != rk {
		t.Fatalf("token did not survive encoding: %q %v", got, err)
	}

	for _, bad := range []string{"%%%", encodeToken("nounderscore")} {
		_, err := decodeToken(bad)
		var tokenErr *InvalidTokenError
		if !errors.As(err, &tokenErr) {
			t.Fatalf("expected invalid token error for %q, got %v", bad, err)
		}
	}
}
