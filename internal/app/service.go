package app

import (
	"context"

	"inventory-ledger/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from the posting pipeline. Every call carries the
// caller's Session; documents and stock of other companies are invisible to it.
type ApplicationService interface {
	// CreateDraftDocument stores a new DRAFT document, converting each line to base units.
	CreateDraftDocument(ctx context.Context, sess core.Session, req CreateDocumentRequest) (*DocumentResult, error)

	// GetDocument returns a document with its lines.
	GetDocument(ctx context.Context, sess core.Session, documentID int) (*DocumentResult, error)

	// ValidateDocument runs the pre-posting checks without writing anything.
	// Business rule failures are reported in the result, not as an error.
	ValidateDocument(ctx context.Context, sess core.Session, documentID int) (*ValidationResult, error)

	// PostDocument posts a document atomically. Rule failures come back as
	// *core.PostingError or *core.ValidationError.
	PostDocument(ctx context.Context, sess core.Session, req PostDocumentRequest) (*core.PostResult, error)

	// ListLedger returns the ledger entries written by one document.
	ListLedger(ctx context.Context, sess core.Session, documentID int) (*LedgerResult, error)

	// ListBalances returns stock balances of the session company, optionally filtered.
	ListBalances(ctx context.Context, sess core.Session, filter BalanceFilter) (*BalanceListResult, error)

	// AverageCost returns the live moving-average unit cost.
	AverageCost(ctx context.Context, sess core.Session, req AverageCostRequest) (*AverageCostResult, error)

	// TotalValue returns the on-hand value of the company or one warehouse.
	TotalValue(ctx context.Context, sess core.Session, warehouseID *int) (*TotalValueResult, error)

	// ResolvePolicy answers a named policy for a context.
	ResolvePolicy(ctx context.Context, sess core.Session, req ResolvePolicyRequest) (*PolicyResult, error)

	// SetPolicy creates or replaces the policy row for (scope, selector, name).
	SetPolicy(ctx context.Context, sess core.Session, req SetPolicyRequest) (*core.Policy, error)
}
