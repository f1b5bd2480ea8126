package db_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"
	"inventory-ledger/migrations"
)

const (
	companyID = 1
	whMain    = 1
	whStore   = 2
	itemBolt  = 1
	lotFresh  = 1
	itemFlour = 2
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; the schema is truncated on every run.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Run(ctx, pool, zerolog.Nop()))

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE inventory_ledger, stock_balance, policies, doc_sequences,
			documents_lines, documents_header, lots, serials, item_uom_conversions,
			items, item_categories, uoms, locations, warehouses, companies
			RESTART IDENTITY CASCADE;

		INSERT INTO companies (id, code, name) VALUES (1, 'TEST', 'Test Company');
		INSERT INTO warehouses (id, company_id, code, name) VALUES
			(1, 1, 'MAIN', 'Main warehouse'),
			(2, 1, 'STORE', 'Retail store');
		INSERT INTO locations (id, warehouse_id, code, is_active) VALUES
			(1, 1, 'A-01', true),
			(2, 1, 'A-99', false);
		INSERT INTO uoms (id, code, name) VALUES (1, 'EA', 'Each'), (2, 'BOX', 'Box');
		INSERT INTO items (id, company_id, code, name, item_type, tracking_type, base_uom_id) VALUES
			(1, 1, 'BOLT', 'Bolt', 'STOCK', 'NONE', 1),
			(2, 1, 'FLOUR', 'Flour', 'STOCK', 'LOT_EXPIRY', 1);
		INSERT INTO item_uom_conversions (item_id, from_uom_id, factor) VALUES (1, 2, 12);
		INSERT INTO lots (id, item_id, lot_no, expiry_date) VALUES (1, 2, 'L-1', '2027-01-01');
	`)
	require.NoError(t, err, "failed to seed test database")
	return pool
}

func newService(pool *pgxpool.Pool) app.ApplicationService {
	return app.New(db.NewStore(pool), 4, 2, zerolog.Nop())
}

func ptr(v int) *int { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var sess = core.Session{ActorID: 1, CompanyID: companyID}

func create(t *testing.T, svc app.ApplicationService, req app.CreateDocumentRequest) int {
	t.Helper()
	res, err := svc.CreateDraftDocument(context.Background(), sess, req)
	require.NoError(t, err)
	return res.Document.ID
}

func receipt(qty, unitCost string) app.CreateDocumentRequest {
	return app.CreateDocumentRequest{
		Type:          core.DocTypeReceipt,
		ToWarehouseID: ptr(whMain),
		Lines: []app.DocumentLineInput{{
			ItemID:   itemBolt,
			Qty:      dec(qty),
			UnitCost: decimal.NewNullDecimal(dec(unitCost)),
		}},
	}
}

func TestPGStore_ReceiptAndTransfer(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()

	res, err := svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: create(t, svc, receipt("100", "10.50"))})
	require.NoError(t, err)
	assert.Equal(t, "GRN-000001", res.Number)

	transfer := create(t, svc, app.CreateDocumentRequest{
		Type:            core.DocTypeTransfer,
		FromWarehouseID: ptr(whMain),
		ToWarehouseID:   ptr(whStore),
		Lines:           []app.DocumentLineInput{{ItemID: itemBolt, Qty: dec("40")}},
	})
	res, err = svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: transfer, PostingDate: "2026-03-15"})
	require.NoError(t, err)
	assert.Equal(t, "TRF-000001", res.Number)
	assert.Equal(t, 2, res.Entries)

	main, err := svc.ListBalances(ctx, sess, app.BalanceFilter{WarehouseID: ptr(whMain), ItemID: ptr(itemBolt)})
	require.NoError(t, err)
	require.Len(t, main.Balances, 1)
	assert.True(t, dec("60").Equal(main.Balances[0].OnHandQty))
	assert.True(t, dec("630").Equal(main.Balances[0].OnHandValue))

	store, err := svc.ListBalances(ctx, sess, app.BalanceFilter{WarehouseID: ptr(whStore)})
	require.NoError(t, err)
	require.Len(t, store.Balances, 1)
	assert.True(t, dec("40").Equal(store.Balances[0].OnHandQty))
	assert.True(t, dec("420").Equal(store.Balances[0].OnHandValue))
	assert.True(t, dec("10.5").Equal(store.Balances[0].AvgCost))

	ledger, err := svc.ListLedger(ctx, sess, transfer)
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 2)
	assert.Equal(t, whMain, ledger.Entries[0].WarehouseID)
	assert.True(t, dec("40").Equal(ledger.Entries[0].QtyOut))
	assert.Equal(t, whStore, ledger.Entries[1].WarehouseID)
	assert.Equal(t, "2026-03-15", ledger.Entries[1].PostingDate.Format("2006-01-02"))

	total, err := svc.TotalValue(ctx, sess, nil)
	require.NoError(t, err)
	assert.True(t, dec("1050").Equal(total.Value))
}

func TestPGStore_UOMConversionAndLots(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()

	boxes := receipt("2", "0.50")
	boxes.Lines[0].UOMID = 2
	doc, err := svc.CreateDraftDocument(ctx, sess, boxes)
	require.NoError(t, err)
	assert.True(t, dec("24").Equal(doc.Document.Lines[0].BaseQty))

	flour := create(t, svc, app.CreateDocumentRequest{
		Type:          core.DocTypeReceipt,
		ToWarehouseID: ptr(whMain),
		Lines: []app.DocumentLineInput{{
			ItemID:    itemFlour,
			Qty:       dec("5"),
			LotID:     ptr(lotFresh),
			TotalCost: decimal.NewNullDecimal(dec("12.00")),
		}},
	})
	_, err = svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: flour})
	require.NoError(t, err)

	avg, err := svc.AverageCost(ctx, sess, app.AverageCostRequest{WarehouseID: whMain, ItemID: itemFlour, LotID: ptr(lotFresh)})
	require.NoError(t, err)
	assert.True(t, dec("2.4").Equal(avg.AvgCost), avg.AvgCost.String())
}

func TestPGStore_FailedPostRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()

	_, err := svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: create(t, svc, receipt("5", "1"))})
	require.NoError(t, err)

	issue := create(t, svc, app.CreateDocumentRequest{
		Type:            core.DocTypeIssue,
		FromWarehouseID: ptr(whMain),
		Lines:           []app.DocumentLineInput{{ItemID: itemBolt, Qty: dec("9")}},
	})
	_, err = svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: issue})
	require.True(t, errors.Is(err, core.ErrInsufficientStock), "got %v", err)

	var entries, seq int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM inventory_ledger").Scan(&entries))
	assert.Equal(t, 1, entries)
	err = pool.QueryRow(ctx, "SELECT count(*) FROM doc_sequences WHERE doc_type = 'ISSUE'").Scan(&seq)
	require.NoError(t, err)
	assert.Equal(t, 0, seq)

	got, err := svc.GetDocument(ctx, sess, issue)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusDraft, got.Document.Status)
}

func TestPGStore_ConcurrentPostingOfSameDocument(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()
	id := create(t, svc, receipt("10", "3"))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: id})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, core.ErrAlreadyPosted):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, already)

	bal, err := svc.ListBalances(ctx, sess, app.BalanceFilter{ItemID: ptr(itemBolt)})
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(bal.TotalQty))
}

func TestPGStore_ConcurrentNumberingIsGapless(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()

	const docs = 10
	ids := make([]int, docs)
	for i := range ids {
		ids[i] = create(t, svc, receipt("1", "1"))
	}

	var mu sync.Mutex
	numbers := make(map[string]bool)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(docID int) {
			defer wg.Done()
			res, err := svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: docID})
			if err != nil {
				t.Errorf("post %d: %v", docID, err)
				return
			}
			mu.Lock()
			numbers[res.Number] = true
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	require.Len(t, numbers, docs)
	for i := 1; i <= docs; i++ {
		assert.True(t, numbers[core.FormatDocumentNumber("GRN", int64(i), 6)], "missing GRN number %d", i)
	}

	bal, err := svc.ListBalances(ctx, sess, app.BalanceFilter{WarehouseID: ptr(whMain), ItemID: ptr(itemBolt)})
	require.NoError(t, err)
	require.Len(t, bal.Balances, 1)
	assert.True(t, dec("10").Equal(bal.Balances[0].OnHandQty))
}

func TestPGStore_PolicyUpsertAndResolve(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()
	issue := core.DocTypeIssue

	for _, v := range []bool{true, false} {
		_, err := svc.SetPolicy(ctx, sess, app.SetPolicyRequest{
			Scope:   core.ScopeDocType,
			DocType: &issue,
			Name:    core.PolicyBlockNegativeStock,
			Value:   v,
		})
		require.NoError(t, err)
	}

	var rows int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM policies").Scan(&rows))
	assert.Equal(t, 1, rows)

	res, err := svc.ResolvePolicy(ctx, sess, app.ResolvePolicyRequest{Name: core.PolicyBlockNegativeStock, DocType: &issue})
	require.NoError(t, err)
	assert.False(t, res.Value)

	res, err = svc.ResolvePolicy(ctx, sess, app.ResolvePolicyRequest{Name: core.PolicyBlockNegativeStock})
	require.NoError(t, err)
	assert.True(t, res.Value)
}

func TestPGStore_UnlocatedIssueDrawsFromLocatedBalance(t *testing.T) {
	pool := setupTestDB(t)
	svc := newService(pool)
	ctx := context.Background()

	in := receipt("100", "2")
	in.Lines[0].ToLocationID = ptr(1)
	_, err := svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: create(t, svc, in)})
	require.NoError(t, err)

	issue := create(t, svc, app.CreateDocumentRequest{
		Type:            core.DocTypeIssue,
		FromWarehouseID: ptr(whMain),
		Lines:           []app.DocumentLineInput{{ItemID: itemBolt, Qty: dec("30")}},
	})
	_, err = svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: issue})
	require.NoError(t, err)

	bals, err := svc.ListBalances(ctx, sess, app.BalanceFilter{})
	require.NoError(t, err)
	require.Len(t, bals.Balances, 1)
	require.NotNil(t, bals.Balances[0].LocationID)
	assert.Equal(t, 1, *bals.Balances[0].LocationID)
	assert.True(t, dec("70").Equal(bals.Balances[0].OnHandQty))

	closed := receipt("1", "1")
	closed.Lines[0].ToLocationID = ptr(2)
	_, err = svc.PostDocument(ctx, sess, app.PostDocumentRequest{DocumentID: create(t, svc, closed)})
	assert.ErrorIs(t, err, core.ErrLocationInactive)
}
