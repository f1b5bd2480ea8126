package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transactional persistence boundary. Every engine operation runs inside
// exactly one InTx call; fn's error rolls the whole transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the repository view of one open transaction. Implementations return ErrNotFound
// (possibly wrapped) for missing rows.
type Tx interface {
	// LockDocument loads a header with its lines ordered by line number and holds a
	// row lock on the header until the transaction ends.
	LockDocument(ctx context.Context, documentID int) (*Document, error)
	GetDocument(ctx context.Context, documentID int) (*Document, error)
	InsertDocument(ctx context.Context, doc *Document) error
	MarkPosted(ctx context.Context, documentID int, number string, postingDate time.Time, actorID int, at time.Time) error
	// NextDocumentNumber hands out the next gapless number for (company, type).
	NextDocumentNumber(ctx context.Context, companyID int, docType DocumentType) (string, error)

	GetItem(ctx context.Context, itemID int) (*Item, error)
	GetLocation(ctx context.Context, locationID int) (*Location, error)
	// UOMFactor returns how many base units one fromUOM of the item holds.
	UOMFactor(ctx context.Context, itemID, fromUOMID int) (decimal.Decimal, error)

	// LockBalance returns the oldest balance row matching key.Query(), locked for update.
	// When nothing matches, a row is created for exactly key with zero quantity and value
	// and created is true.
	LockBalance(ctx context.Context, key StockKey, now time.Time) (bal *StockBalance, created bool, err error)
	UpdateBalance(ctx context.Context, bal *StockBalance) error
	BalanceTotals(ctx context.Context, q StockQuery) (StockTotals, error)
	ListBalances(ctx context.Context, q StockQuery) ([]StockBalance, error)

	InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	LedgerTotals(ctx context.Context, q StockQuery) (StockTotals, error)
	LedgerByDocument(ctx context.Context, documentID int) ([]LedgerEntry, error)

	// FindPolicy returns the policy row for name at one scope matching sel.
	FindPolicy(ctx context.Context, name string, scope PolicyScope, sel PolicySelector) (*Policy, error)
	UpsertPolicy(ctx context.Context, p *Policy) error
}
