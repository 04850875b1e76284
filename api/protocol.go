package api

import (
	"bizdesk/derived"
	"bizdesk/domain"
	"bizdesk/pipeline"
)

const maxBodySize = 64 * 1024 // 64 KiB

// POST /api/board/moves request body. The source location is optional;
// without it the board resolves the card's current position.
type moveRequest struct {
	CardID        string `json:"cardId"`
	SourceStageID string `json:"sourceStageId,omitempty"`
	SourceIndex   *int   `json:"sourceIndex,omitempty"`
	DestStageID   string `json:"destStageId"`
	DestIndex     int    `json:"destIndex"`
}

// POST /api/board/moves response body
type moveResponse struct {
	Move  pipeline.Relocation `json:"move"`
	Board pipeline.View       `json:"board"`
}

// POST /api/board/cards/:id/interactions request body
type interactionRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type activityResponse struct {
	Activity      []domain.Activity `json:"activity"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type proposalView struct {
	domain.Proposal
	Badge     derived.Badge      `json:"badge"`
	Indicator *derived.Indicator `json:"indicator,omitempty"`
}

type contractView struct {
	domain.Contract
	Badge     derived.Badge      `json:"badge"`
	Indicator *derived.Indicator `json:"indicator,omitempty"`
}

type transactionView struct {
	domain.Transaction
	Badge     derived.Badge      `json:"badge"`
	Indicator *derived.Indicator `json:"indicator,omitempty"`
}
