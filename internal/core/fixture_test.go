package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db/memdb"
)

const (
	companyID      = 1
	otherCompanyID = 2
	actorID        = 42

	whA = 10
	whB = 20

	locA1      = 101
	locA2      = 102
	locAClosed = 103 // inactive
	locB1      = 201

	uomEA = 1

	catHardware = 7
	catFood     = 8

	itemWidget   = 1000
	itemFlour    = 1001 // lot tracked
	itemScanner  = 1002 // serial tracked
	itemInstall  = 1003 // service
	itemObsolete = 1004 // inactive
)

var testNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

type fixture struct {
	store      *memdb.Store
	policies   core.PolicyResolver
	validation core.ValidationEngine
	costing    core.CostingEngine
	posting    core.PostingEngine
	sess       core.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memdb.New()

	cat := func(id int) *int { return &id }
	store.AddItem(core.Item{ID: itemWidget, CompanyID: companyID, Code: "WIDGET", Name: "Steel widget",
		CategoryID: cat(catHardware), Type: core.ItemTypeStock, Tracking: core.TrackingNone, BaseUOMID: uomEA, IsActive: true})
	store.AddItem(core.Item{ID: itemFlour, CompanyID: companyID, Code: "FLOUR", Name: "Wheat flour",
		CategoryID: cat(catFood), Type: core.ItemTypeStock, Tracking: core.TrackingLotExpiry, BaseUOMID: uomEA, IsActive: true})
	store.AddItem(core.Item{ID: itemScanner, CompanyID: companyID, Code: "SCANNER", Name: "Barcode scanner",
		CategoryID: cat(catHardware), Type: core.ItemTypeStock, Tracking: core.TrackingSerial, BaseUOMID: uomEA, IsActive: true})
	store.AddItem(core.Item{ID: itemInstall, CompanyID: companyID, Code: "INSTALL", Name: "Installation",
		Type: core.ItemTypeService, Tracking: core.TrackingNone, BaseUOMID: uomEA, IsActive: true})
	store.AddItem(core.Item{ID: itemObsolete, CompanyID: companyID, Code: "OLD", Name: "Discontinued part",
		CategoryID: cat(catHardware), Type: core.ItemTypeStock, Tracking: core.TrackingNone, BaseUOMID: uomEA, IsActive: false})

	store.AddLocation(core.Location{ID: locA1, WarehouseID: whA, Code: "A-01", IsActive: true})
	store.AddLocation(core.Location{ID: locA2, WarehouseID: whA, Code: "A-02", IsActive: true})
	store.AddLocation(core.Location{ID: locAClosed, WarehouseID: whA, Code: "A-99", IsActive: false})
	store.AddLocation(core.Location{ID: locB1, WarehouseID: whB, Code: "B-01", IsActive: true})

	policies := core.NewPolicyResolver(store)
	validation := core.NewValidationEngine(store, policies)
	costing := core.NewCostingEngine(store, core.DefaultCostPrecision, core.DefaultValuePrecision)
	posting := core.NewPostingEngine(store, validation, costing, zerolog.Nop(),
		core.WithClock(func() time.Time { return testNow }))

	return &fixture{
		store:      store,
		policies:   policies,
		validation: validation,
		costing:    costing,
		posting:    posting,
		sess:       core.Session{ActorID: actorID, CompanyID: companyID},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cost(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func line(item int, qty string) core.DocumentLine {
	return core.DocumentLine{ItemID: item, Qty: dec(qty), UOMID: uomEA, BaseQty: dec(qty)}
}

func (f *fixture) addDoc(docType core.DocumentType, from, to *int, lines ...core.DocumentLine) int {
	return f.store.AddDocument(core.Document{
		CompanyID:       companyID,
		Type:            docType,
		DocumentDate:    testNow,
		Status:          core.DocumentStatusDraft,
		FromWarehouseID: from,
		ToWarehouseID:   to,
		CreatedBy:       actorID,
		Lines:           lines,
	})
}

func (f *fixture) receipt(wh int, item int, qty, unitCost string) int {
	l := line(item, qty)
	l.UnitCost = cost(unitCost)
	return f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(wh), l)
}

func (f *fixture) issue(wh int, item int, qty string) int {
	return f.addDoc(core.DocTypeIssue, core.IntPtr(wh), nil, line(item, qty))
}

func (f *fixture) post(t *testing.T, docID int) *core.PostResult {
	t.Helper()
	res, err := f.posting.Post(context.Background(), f.sess, docID, time.Time{})
	require.NoError(t, err)
	return res
}

// balance returns the row for (warehouse, item) with no location, lot or serial.
func (f *fixture) balance(t *testing.T, wh, item int) core.StockBalance {
	t.Helper()
	key := core.StockKey{CompanyID: companyID, WarehouseID: wh, ItemID: item}
	for _, b := range f.store.Balances() {
		k := b.Key()
		if k.CompanyID == key.CompanyID && k.WarehouseID == wh && k.ItemID == item &&
			k.LocationID == nil && k.LotID == nil && k.SerialID == nil {
			return b
		}
	}
	t.Fatalf("no balance for warehouse %d item %d", wh, item)
	return core.StockBalance{}
}

func (f *fixture) setPolicy(t *testing.T, p core.Policy) {
	t.Helper()
	err := f.store.InTx(context.Background(), func(tx core.Tx) error {
		return tx.UpsertPolicy(context.Background(), &p)
	})
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, docID int) core.DocumentStatus {
	t.Helper()
	doc, ok := f.store.Document(docID)
	require.True(t, ok)
	return doc.Status
}
