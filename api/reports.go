package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"bizdesk/derived"
	"bizdesk/pipeline"
)

func (h *Handlers) getFinancialSummary(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	txs, err := h.store.ListTransactions(ctx, userID)
	if err != nil {
		return h.fail(c, "storage", err)
	}
	metrics.Set("transactions", len(txs))
	return c.JSON(http.StatusOK, derived.FinancialSummary(txs))
}

// getDashboard loads every list the dashboard needs in parallel.
func (h *Handlers) getDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	var in derived.DashboardInput
	err := metrics.Time("load", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			in.Clients, err = h.store.ListClients(gctx, userID)
			return err
		})
		g.Go(func() (err error) {
			in.Proposals, err = h.store.ListProposals(gctx, userID)
			return err
		})
		g.Go(func() (err error) {
			in.Contracts, err = h.store.ListContracts(gctx, userID)
			return err
		})
		g.Go(func() (err error) {
			in.Transactions, err = h.store.ListTransactions(gctx, userID)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}

	board, err := pipeline.New(h.template.SeedFromClients(in.Clients))
	if err != nil {
		return h.fail(c, "board", err)
	}
	for _, s := range board.Stages() {
		in.Funnel = append(in.Funnel, derived.StageCount{Stage: string(s.ID), Title: s.Title, Count: s.Count()})
	}

	d := derived.BuildDashboard(in, h.today())
	metrics.Set("alerts", len(d.Alerts))
	return c.JSON(http.StatusOK, d)
}
