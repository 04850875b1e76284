package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"bizdesk/domain"
	"bizdesk/pipeline"
)

const healthTimeout = 2 * time.Second

// Publisher hands domain events to the events queue.
type Publisher interface {
	Publish(ctx context.Context, userID string, events []domain.Event) error
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Store     Storage
	Auth      Authenticator
	Deduper   Deduper
	Publisher Publisher
	Notifier  Notifier
	Broker    *Broker
	Template  pipeline.Template
	Location  *time.Location
	Logger    *log.Logger
	Debug     bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers serves the HTTP API.
type Handlers struct {
	store     Storage
	deduper   Deduper
	publisher Publisher
	notifier  Notifier
	broker    *Broker
	template  pipeline.Template
	loc       *time.Location
	log       *log.Logger
	now       func() time.Time
	locks     *boardLocks
}

func newHandlers(d Deps) *Handlers {
	h := &Handlers{
		store:     d.Store,
		deduper:   d.Deduper,
		publisher: d.Publisher,
		notifier:  d.Notifier,
		broker:    d.Broker,
		template:  d.Template,
		loc:       d.Location,
		log:       d.Logger,
		now:       d.Now,
		locks:     newBoardLocks(),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if len(h.template.Stages) == 0 {
		h.template = pipeline.DefaultTemplate()
	}
	if h.broker == nil {
		h.broker = NewBroker()
	}
	if h.notifier == nil {
		h.notifier = h.broker
	}
	if h.log == nil {
		h.log = log.New()
	}
	return h
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) *Handlers {
	h := newHandlers(d)

	e.GET("/healthz", h.healthz)

	g := e.Group("/api", RequireAuth(d.Auth))
	g.GET("/board", h.getBoard)
	g.POST("/board/moves", h.postMove)
	g.POST("/board/cards/:id/interactions", h.postInteraction)
	g.GET("/board/stream", h.streamBoard)

	registerClients(g, h)
	registerResource(g, "/proposals", h.proposals())
	registerResource(g, "/contracts", h.contracts())
	registerResource(g, "/transactions", h.transactions())
	registerResource(g, "/services", h.services())

	g.GET("/financial/summary", h.getFinancialSummary)
	g.GET("/dashboard", h.getDashboard, RequirePermission(domain.ViewReports))
	g.GET("/activity", h.getActivity)

	if d.Debug {
		pprof.Register(e)
	}
	return h
}

func (h *Handlers) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		metricsFrom(c).SetErrorStage("storage")
		return c.String(http.StatusServiceUnavailable, "storage unavailable")
	}
	return c.NoContent(http.StatusOK)
}

// today is the current civil date in the configured timezone.
func (h *Handlers) today() time.Time {
	return h.now().In(h.loc)
}

// fail translates err into a response. Validation problems are the caller's
// fault; contract violations mean the request no longer matches the stored
// state.
func (h *Handlers) fail(c echo.Context, stage string, err error) error {
	metrics := metricsFrom(c)
	switch {
	case domain.IsValidation(err):
		metrics.SetErrorStage("validation")
		return c.String(http.StatusBadRequest, err.Error())
	case domain.IsViolation(err):
		metrics.SetErrorStage("conflict")
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		metrics.SetErrorStage("not_found")
		return c.String(http.StatusNotFound, "not found")
	}
	metrics.SetErrorStage(stage)
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

// decodeBody reads a size-limited JSON body into v. Unknown fields are
// rejected so typos do not pass silently.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("", "invalid body")
	}
	return nil
}

// emit publishes events and wakes stream subscribers. The write they describe
// already happened, so failures are logged rather than returned.
func (h *Handlers) emit(c echo.Context, userID string, kind UpdateKind, events ...domain.Event) {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	if err := metrics.Time("publish", func() error {
		return h.publisher.Publish(ctx, userID, events)
	}); err != nil {
		metrics.Set("publish_failed", true)
		h.log.WithError(err).WithField("user", userID).Error("publish events failed")
	}
	if err := h.notifier.Notify(ctx, userID, kind); err != nil {
		h.log.WithError(err).WithField("user", userID).Warn("board update notification failed")
	}
}

func (h *Handlers) getActivity(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	pageToken := c.QueryParam("pageToken")
	metrics.Set("page_token_provided", pageToken != "")

	pageSizeParam := strings.TrimSpace(c.QueryParam("pageSize"))
	pageSize := 0
	if pageSizeParam != "" {
		var parseErr error
		pageSize, parseErr = strconv.Atoi(pageSizeParam)
		if parseErr != nil || pageSize <= 0 {
			metrics.SetErrorStage("invalid_page_size")
			return c.String(http.StatusBadRequest, "invalid page size")
		}
	}

	var items []domain.Activity
	var nextToken string
	err := metrics.Time("fetch", func() (err error) {
		items, nextToken, err = h.store.FetchActivity(ctx, userID, pageToken, pageSize)
		return err
	})
	if err != nil {
		var invalidTokenErr InvalidContinuationTokenError
		if errors.As(err, &invalidTokenErr) {
			metrics.SetErrorStage("invalid_page_token")
			return c.String(http.StatusBadRequest, "invalid page token")
		}
		return h.fail(c, "storage", err)
	}
	metrics.Set("items_returned", len(items))
	metrics.Set("has_next_page", nextToken != "")
	return c.JSON(http.StatusOK, activityResponse{Activity: items, NextPageToken: nextToken})
}
