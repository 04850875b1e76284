package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"bizdesk/domain"
	"bizdesk/pipeline"
)

const idempotencyHeader = "Idempotency-Key"

// loadBoard rebuilds the user's board from the stored client placements.
func (h *Handlers) loadBoard(ctx context.Context, userID string) (*pipeline.Board, error) {
	clients, err := h.store.ListClients(ctx, userID)
	if err != nil {
		return nil, err
	}
	return pipeline.New(h.template.SeedFromClients(clients), pipeline.WithClock(h.now))
}

// settleStage rewrites the stored positions of a stage to match the board
// when they have gaps or the stage holds unplaced clients, so a card
// appended at the returned count lands last.
func (h *Handlers) settleStage(ctx context.Context, userID string, stage pipeline.StageID) (int, error) {
	clients, err := h.store.ListClients(ctx, userID)
	if err != nil {
		return 0, err
	}
	board, err := pipeline.New(h.template.SeedFromClients(clients), pipeline.WithClock(h.now))
	if err != nil {
		return 0, err
	}
	stored := make(map[string]domain.Client, len(clients))
	for _, c := range clients {
		stored[c.ID] = c
	}
	var stale []pipeline.Placement
	for _, p := range board.Placements(stage) {
		c := stored[string(p.CardID)]
		if c.Stage != string(p.Stage) || c.Position != p.Position {
			stale = append(stale, p)
		}
	}
	if len(stale) > 0 {
		if err := h.store.UpdatePlacements(ctx, userID, stale); err != nil {
			return 0, err
		}
	}
	return board.Count(stage), nil
}

func (h *Handlers) getBoard(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	var board *pipeline.Board
	err := metrics.Time("load", func() (err error) {
		board, err = h.loadBoard(ctx, userID)
		return err
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}
	view := board.View()
	metrics.Set("stages", len(view.Stages))
	return c.JSON(http.StatusOK, view)
}

func (h *Handlers) postMove(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID

	var req moveRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, "decode", err)
	}
	if err := req.validate(); err != nil {
		return h.fail(c, "decode", err)
	}

	key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
	metrics.Set("idempotency_key_provided", key != "")
	if key != "" {
		added, err := h.deduper.Add(ctx, userID, key)
		if err != nil {
			return h.fail(c, "dedupe", err)
		}
		if !added {
			return h.replayMove(c, userID, key)
		}
	}

	data, err := h.applyMove(c, userID, req)
	if err != nil {
		if key != "" {
			if rerr := h.deduper.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
				h.log.WithError(rerr).WithField("user", userID).Error("dedupe rollback failed")
			}
		}
		return h.fail(c, "move", err)
	}
	if key != "" {
		if err := h.deduper.Complete(ctx, userID, key, data); err != nil {
			h.log.WithError(err).WithField("user", userID).Warn("storing idempotent response failed")
		}
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (r moveRequest) validate() error {
	if r.CardID == "" {
		return domain.Invalid("cardId", "required")
	}
	if r.DestStageID == "" {
		return domain.Invalid("destStageId", "required")
	}
	if (r.SourceStageID == "") != (r.SourceIndex == nil) {
		return domain.Invalid("source", "sourceStageId and sourceIndex go together")
	}
	return nil
}

func (h *Handlers) replayMove(c echo.Context, userID, key string) error {
	metrics := metricsFrom(c)
	data, ok, err := h.deduper.Response(c.Request().Context(), userID, key)
	if err != nil {
		return h.fail(c, "dedupe", err)
	}
	if !ok {
		metrics.SetErrorStage("duplicate_in_flight")
		return c.String(http.StatusConflict, "a request with this idempotency key is in progress")
	}
	metrics.Set("replayed", true)
	c.Response().Header().Set("Idempotent-Replay", "true")
	return c.JSONBlob(http.StatusOK, data)
}

// applyMove runs the move under the user's board lock and returns the
// encoded response.
func (h *Handlers) applyMove(c echo.Context, userID string, req moveRequest) ([]byte, error) {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	unlock := h.locks.lock(userID)
	defer unlock()

	var board *pipeline.Board
	if err := metrics.Time("load", func() (err error) {
		board, err = h.loadBoard(ctx, userID)
		return err
	}); err != nil {
		return nil, err
	}

	card := pipeline.CardID(req.CardID)
	to := pipeline.StageID(req.DestStageID)
	var move pipeline.Relocation
	if req.SourceIndex != nil {
		from := pipeline.StageID(req.SourceStageID)
		if err := board.Move(card, from, *req.SourceIndex, to, req.DestIndex); err != nil {
			return nil, err
		}
		move = pipeline.Relocation{CardID: card, FromStage: from, FromIndex: *req.SourceIndex, ToStage: to, ToIndex: req.DestIndex}
		if !move.Noop() {
			move.ToStage, move.ToIndex, _ = board.Locate(card)
		}
	} else {
		var err error
		if move, err = board.MoveCard(card, to, req.DestIndex); err != nil {
			return nil, err
		}
	}
	metrics.Set("cross_stage", move.FromStage != move.ToStage)

	if !move.Noop() {
		placements := board.Placements(move.FromStage, move.ToStage)
		if err := metrics.Time("persist", func() error {
			return h.store.UpdatePlacements(ctx, userID, placements)
		}); err != nil {
			return nil, err
		}
		ev, err := newEvent(domain.EntityTypeClient, req.CardID, domain.CardMoved, domain.CardMovedData{
			FromStage: string(move.FromStage),
			FromIndex: move.FromIndex,
			ToStage:   string(move.ToStage),
			ToIndex:   move.ToIndex,
		})
		if err != nil {
			return nil, err
		}
		h.emit(c, userID, UpdateBoard, ev)
	}
	return sonic.Marshal(moveResponse{Move: move, Board: board.View()})
}

func (h *Handlers) postInteraction(c echo.Context) error {
	ctx := c.Request().Context()
	metrics := metricsFrom(c)
	userID := principalFrom(c).UserID
	id := c.Param("id")

	var req interactionRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, "decode", err)
	}
	in := domain.Interaction{Type: domain.InteractionType(req.Type), Content: req.Content}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return h.fail(c, "decode", domain.Invalid("timestamp", "expected RFC 3339"))
		}
		in.Timestamp = ts
	}

	unlock := h.locks.lock(userID)
	defer unlock()

	var board *pipeline.Board
	if err := metrics.Time("load", func() (err error) {
		board, err = h.loadBoard(ctx, userID)
		return err
	}); err != nil {
		return h.fail(c, "storage", err)
	}
	card, err := board.AppendInteraction(pipeline.CardID(id), in)
	if err != nil {
		return h.fail(c, "interaction", err)
	}

	err = metrics.Time("persist", func() error {
		client, err := h.store.GetClient(ctx, userID, id)
		if err != nil {
			return err
		}
		client.Interactions = card.Interactions
		client.UpdatedAt = h.now().UTC()
		return h.store.SaveClient(ctx, userID, client)
	})
	if err != nil {
		return h.fail(c, "storage", err)
	}

	added := card.Interactions[len(card.Interactions)-1]
	ev, err := newEvent(domain.EntityTypeClient, id, domain.InteractionAdded, added)
	if err != nil {
		return h.fail(c, "event", err)
	}
	h.emit(c, userID, UpdateBoard, ev)
	metrics.Set("interactions", len(card.Interactions))
	return c.JSON(http.StatusCreated, card)
}

// streamBoard sends the board as server-sent events: a snapshot on connect
// and after every board change, plus a bare activity event when the feed
// grows.
func (h *Handlers) streamBoard(c echo.Context) error {
	ctx := c.Request().Context()
	userID := principalFrom(c).UserID

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	sub := h.broker.subscribe(userID)
	defer h.broker.unsubscribe(userID, sub)

	kind := UpdateBoard
	for {
		var payload []byte
		if kind == UpdateBoard {
			board, err := h.loadBoard(ctx, userID)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if payload, err = sonic.Marshal(board.View()); err != nil {
				return err
			}
		} else {
			payload = []byte("{}")
		}
		if err := writeEvent(res, string(kind), payload); err != nil {
			return err
		}
		flusher.Flush()

		if kind, ok = sub.next(ctx); !ok {
			return nil
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
