// Package remote talks to the remote inventory store: a spreadsheet-backed
// web app that serves the catalog and accepts single and batch count writes.
//
// The wire format is fixed by the deployed backend:
//
//	GET            -> [...items] or {"items": [...]} or {"ok": false, "error": "..."}
//	POST save      -> {"productTitle": "...", "casesQty": 6}
//	               <- {"ok": true, "newQty": 6}
//	POST batch     -> {"action": "batch", "payload": "[{...}]", "sessionId": "...", "createdAt": "..."}
//	               <- {"ok": true, "updated": 3}
//
// A save's newQty, when present, is the server's value and overrides what the
// client asked for.
package remote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
)

// Client is the contract the reconciliation engine needs from the store.
type Client interface {
	Catalog(ctx context.Context) ([]catalog.Product, error)
	Save(ctx context.Context, title string, cases int64) (SaveResult, error)
	Commit(ctx context.Context, batch Batch) (CommitResult, error)
}

// SaveResult is the store's answer to a single save.
type SaveResult struct {
	// NewQty is the server-confirmed quantity; nil when the server did not
	// report one.
	NewQty *decimal.Decimal
}

// Confirmed returns the quantity the caller should treat as server truth.
func (r SaveResult) Confirmed(requested int64) decimal.Decimal {
	if r.NewQty != nil {
		return *r.NewQty
	}
	return decimal.NewFromInt(requested)
}

// BatchItem is one entry of a batch commit payload.
type BatchItem struct {
	ProductTitle string `json:"productTitle"`
	CasesQty     int64  `json:"casesQty"`
}

// Batch is a whole session submitted as one unit. SessionID and CreatedAt
// let the server deduplicate a retried commit.
type Batch struct {
	SessionID string
	CreatedAt time.Time
	Items     []BatchItem
}

// CommitResult is the store's answer to a batch commit.
type CommitResult struct {
	Updated int
}
