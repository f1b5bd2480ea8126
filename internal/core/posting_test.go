package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

func TestPostReceipt(t *testing.T) {
	f := newFixture(t)
	id := f.receipt(whA, itemWidget, "100", "10.50")

	res := f.post(t, id)

	assert.Equal(t, id, res.DocumentID)
	assert.Equal(t, "GRN-000001", res.Number)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), res.PostingDate)
	assert.Equal(t, testNow, res.PostedAt)

	doc, ok := f.store.Document(id)
	require.True(t, ok)
	assert.Equal(t, core.DocumentStatusPosted, doc.Status)
	assert.Equal(t, "GRN-000001", doc.Number)
	require.NotNil(t, doc.PostedBy)
	assert.Equal(t, actorID, *doc.PostedBy)

	ledger := f.store.Ledger()
	require.Len(t, ledger, 1)
	e := ledger[0]
	assert.Equal(t, whA, e.WarehouseID)
	assert.Equal(t, core.DocTypeReceipt, e.DocType)
	assert.Equal(t, "GRN-000001", e.DocNumber)
	requireDec(t, "100", e.QtyIn)
	requireDec(t, "0", e.QtyOut)
	requireDec(t, "1050.00", e.ValueIn)
	requireDec(t, "10.50", e.UnitCost)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "100", bal.OnHandQty)
	requireDec(t, "1050.00", bal.OnHandValue)
	requireDec(t, "10.5", bal.AvgCost)
}

func TestPostTransferCarriesSourceAverageCost(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "100", "10.50"))

	id := f.addDoc(core.DocTypeTransfer, core.IntPtr(whA), core.IntPtr(whB), line(itemWidget, "40"))
	res := f.post(t, id)
	assert.Equal(t, "TRF-000001", res.Number)
	assert.Equal(t, 2, res.Entries)

	a := f.balance(t, whA, itemWidget)
	requireDec(t, "60", a.OnHandQty)
	requireDec(t, "630.00", a.OnHandValue)
	requireDec(t, "10.5", a.AvgCost)

	b := f.balance(t, whB, itemWidget)
	requireDec(t, "40", b.OnHandQty)
	requireDec(t, "420.00", b.OnHandValue)
	requireDec(t, "10.50", b.AvgCost)

	ledger := f.store.Ledger()
	require.Len(t, ledger, 3)
	out, in := ledger[1], ledger[2]
	assert.Equal(t, whA, out.WarehouseID)
	requireDec(t, "40", out.QtyOut)
	requireDec(t, "420.00", out.ValueOut)
	assert.Equal(t, whB, in.WarehouseID)
	requireDec(t, "40", in.QtyIn)
	requireDec(t, "420.00", in.ValueIn)
	assert.True(t, out.UnitCost.Equal(in.UnitCost))
}

func TestPostIssueUsesMovingAverage(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "10", "5"))
	f.post(t, f.receipt(whA, itemWidget, "10", "7"))
	requireDec(t, "6", f.balance(t, whA, itemWidget).AvgCost)

	f.post(t, f.issue(whA, itemWidget, "5"))

	ledger := f.store.Ledger()
	last := ledger[len(ledger)-1]
	requireDec(t, "5", last.QtyOut)
	requireDec(t, "30.00", last.ValueOut)
	requireDec(t, "6", last.UnitCost)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "15", bal.OnHandQty)
	requireDec(t, "90.00", bal.OnHandValue)
	requireDec(t, "6", bal.AvgCost)
}

func TestPostReceiptWithTotalCost(t *testing.T) {
	f := newFixture(t)
	l := line(itemWidget, "3")
	l.TotalCost = cost("10.00")
	f.post(t, f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), l))

	e := f.store.Ledger()[0]
	requireDec(t, "10.00", e.ValueIn)
	requireDec(t, "3.3333", e.UnitCost)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "10.00", bal.OnHandValue)
	requireDec(t, "3.3333", bal.AvgCost)
}

func TestNegativeStockBlockedByDefault(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "20", "5"))
	id := f.issue(whA, itemWidget, "30")

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))

	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 1, ve.LineNo)
	assert.Equal(t, "WIDGET", ve.ItemCode)
	requireDec(t, "30", ve.Requested)
	requireDec(t, "20", ve.Available)

	assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))
	requireDec(t, "20", f.balance(t, whA, itemWidget).OnHandQty)
	assert.Len(t, f.store.Ledger(), 1)
}

func TestNegativeStockAllowedByItemPolicy(t *testing.T) {
	f := newFixture(t)
	f.setPolicy(t, core.Policy{
		Scope:          core.ScopeItem,
		PolicySelector: core.PolicySelector{ItemID: core.IntPtr(itemWidget)},
		Name:           core.PolicyBlockNegativeStock,
		Value:          false,
	})
	f.post(t, f.receipt(whA, itemWidget, "20", "5"))

	res := f.post(t, f.issue(whA, itemWidget, "30"))
	assert.Equal(t, "ISS-000001", res.Number)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "-10", bal.OnHandQty)
	requireDec(t, "-50.00", bal.OnHandValue)
	requireDec(t, "0", bal.AvgCost)

	last := f.store.Ledger()[1]
	requireDec(t, "150.00", last.ValueOut)

	// Refilling continues from the running value, which is what the ledger holds.
	f.post(t, f.receipt(whA, itemWidget, "20", "12"))
	bal = f.balance(t, whA, itemWidget)
	requireDec(t, "10", bal.OnHandQty)
	requireDec(t, "190.00", bal.OnHandValue)
	requireDec(t, "19", bal.AvgCost)

	ctx := context.Background()
	cached, err := f.costing.AverageCost(ctx, companyID, whA, itemWidget, nil)
	require.NoError(t, err)
	require.True(t, f.store.DeleteBalance(bal.Key()))
	rebuilt, err := f.costing.AverageCost(ctx, companyID, whA, itemWidget, nil)
	require.NoError(t, err)
	requireDec(t, "19", cached)
	requireDec(t, cached.String(), rebuilt)
}

func TestPostRejectsAlreadyPosted(t *testing.T) {
	f := newFixture(t)
	id := f.receipt(whA, itemWidget, "5", "1")
	f.post(t, id)

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAlreadyPosted))
	assert.Len(t, f.store.Ledger(), 1)
	requireDec(t, "5", f.balance(t, whA, itemWidget).OnHandQty)
}

func TestPostStatusGuards(t *testing.T) {
	cases := []struct {
		status core.DocumentStatus
		want   error
	}{
		{core.DocumentStatusCancelled, core.ErrCancelledDocument},
		{core.DocumentStatusReversed, core.ErrAlreadyPosted},
		{core.DocumentStatusPosted, core.ErrAlreadyPosted},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newFixture(t)
			l := line(itemWidget, "1")
			l.UnitCost = cost("1")
			id := f.store.AddDocument(core.Document{
				CompanyID:     companyID,
				Type:          core.DocTypeReceipt,
				Status:        tc.status,
				ToWarehouseID: core.IntPtr(whA),
				Lines:         []core.DocumentLine{l},
			})
			_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, f.store.Ledger())
		})
	}
}

func TestPostSubmittedAndApprovedDocuments(t *testing.T) {
	for _, status := range []core.DocumentStatus{core.DocumentStatusSubmitted, core.DocumentStatusApproved} {
		f := newFixture(t)
		l := line(itemWidget, "2")
		l.UnitCost = cost("3")
		id := f.store.AddDocument(core.Document{
			CompanyID:     companyID,
			Type:          core.DocTypeReceipt,
			Status:        status,
			ToWarehouseID: core.IntPtr(whA),
			Lines:         []core.DocumentLine{l},
		})
		f.post(t, id)
		assert.Equal(t, core.DocumentStatusPosted, f.status(t, id))
	}
}

func TestPostEmptyDocument(t *testing.T) {
	f := newFixture(t)
	id := f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA))

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	assert.True(t, errors.Is(err, core.ErrEmptyDocument))
	assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))
}

func TestPostUnknownOrForeignDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.posting.Post(context.Background(), f.sess, 999999, time.Time{})
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))

	id := f.receipt(whA, itemWidget, "1", "1")
	other := core.Session{ActorID: actorID, CompanyID: otherCompanyID}
	_, err = f.posting.Post(context.Background(), other, id, time.Time{})
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
	assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))
}

func TestPostUnsupportedDocumentTypes(t *testing.T) {
	types := []core.DocumentType{
		core.DocTypeStockCount,
		core.DocTypeProductionOrder,
		core.DocTypeProductionIssue,
		core.DocTypeProductionReceipt,
		core.DocTypeScrap,
	}
	for _, dt := range types {
		t.Run(string(dt), func(t *testing.T) {
			f := newFixture(t)
			id := f.addDoc(dt, core.IntPtr(whA), core.IntPtr(whA), line(itemWidget, "1"))

			_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
			assert.True(t, errors.Is(err, core.ErrUnsupportedDocType), "got %v", err)
			assert.Equal(t, core.CodeUnsupportedDocType, core.CodeOf(err))
			assert.Empty(t, f.store.Ledger())
			assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))
		})
	}
}

func TestPostFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "10", "2"))
	id := f.addDoc(core.DocTypeTransfer, core.IntPtr(whA), core.IntPtr(whB), line(itemWidget, "4"))

	boom := errors.New("disk full")
	f.store.SetFault(func(op string) error {
		if op == "mark_posted" {
			return boom
		}
		return nil
	})
	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	require.ErrorIs(t, err, boom)

	assert.Len(t, f.store.Ledger(), 1)
	assert.Len(t, f.store.Balances(), 1)
	requireDec(t, "10", f.balance(t, whA, itemWidget).OnHandQty)
	assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))

	// The number consumed inside the failed transaction is handed out again.
	f.store.SetFault(nil)
	res := f.post(t, id)
	assert.Equal(t, "TRF-000001", res.Number)
}

func TestPostNumbersAreGaplessPerType(t *testing.T) {
	f := newFixture(t)
	var numbers []string
	for i := 0; i < 3; i++ {
		numbers = append(numbers, f.post(t, f.receipt(whA, itemWidget, "1", "1")).Number)
	}
	assert.Equal(t, []string{"GRN-000001", "GRN-000002", "GRN-000003"}, numbers)

	assert.Equal(t, "ISS-000001", f.post(t, f.issue(whA, itemWidget, "1")).Number)

	l := line(itemWidget, "1")
	l.UnitCost = cost("1")
	id := f.store.AddDocument(core.Document{
		CompanyID:     companyID,
		Type:          core.DocTypeReceipt,
		Number:        "MANUAL-7",
		ToWarehouseID: core.IntPtr(whA),
		Lines:         []core.DocumentLine{l},
	})
	assert.Equal(t, "MANUAL-7", f.post(t, id).Number)
	assert.Equal(t, "GRN-000004", f.post(t, f.receipt(whA, itemWidget, "1", "1")).Number)
}

func TestPostExplicitPostingDate(t *testing.T) {
	f := newFixture(t)
	id := f.receipt(whA, itemWidget, "1", "1")
	date := time.Date(2026, 2, 14, 18, 45, 0, 0, time.UTC)

	res, err := f.posting.Post(context.Background(), f.sess, id, date)
	require.NoError(t, err)
	want := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, res.PostingDate)
	assert.Equal(t, want, f.store.Ledger()[0].PostingDate)
}

func TestPostAdjustments(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "10", "6"))

	up := line(itemWidget, "5")
	up.UnitCost = cost("8")
	res := f.post(t, f.addDoc(core.DocTypeAdjustment, nil, core.IntPtr(whA), up))
	assert.Equal(t, "ADJ-000001", res.Number)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "15", bal.OnHandQty)
	requireDec(t, "100.00", bal.OnHandValue)
	requireDec(t, "6.6667", bal.AvgCost)

	f.post(t, f.addDoc(core.DocTypeAdjustment, core.IntPtr(whA), nil, line(itemWidget, "-3")))

	ledger := f.store.Ledger()
	down := ledger[len(ledger)-1]
	requireDec(t, "3", down.QtyOut)
	requireDec(t, "20.00", down.ValueOut)
	requireDec(t, "6.6667", down.UnitCost)

	bal = f.balance(t, whA, itemWidget)
	requireDec(t, "12", bal.OnHandQty)
	requireDec(t, "80.00", bal.OnHandValue)
	requireDec(t, "6.6667", bal.AvgCost)
}

func TestPostNegativeAdjustmentBeyondStockIsBlocked(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "2", "1"))
	id := f.addDoc(core.DocTypeAdjustment, nil, core.IntPtr(whA), line(itemWidget, "-5"))

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))
}

func TestPostIssueWithoutOpeningBalance(t *testing.T) {
	f := newFixture(t)
	f.setPolicy(t, core.Policy{Scope: core.ScopeGlobal, Name: core.PolicyBlockNegativeStock, Value: false})
	id := f.issue(whB, itemWidget, "3")

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoOpeningBalance))

	var pe *core.PostingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.LineNo)

	assert.Empty(t, f.store.Ledger())
	assert.Empty(t, f.store.Balances())
	assert.Equal(t, core.DocumentStatusDraft, f.status(t, id))
}

func TestPostReturns(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "10", "4"))

	out := line(itemWidget, "2")
	out.UnitCost = cost("4")
	res := f.post(t, f.addDoc(core.DocTypeReturnOut, nil, core.IntPtr(whA), out))
	assert.Equal(t, "RTO-000001", res.Number)
	requireDec(t, "12", f.balance(t, whA, itemWidget).OnHandQty)

	res = f.post(t, f.addDoc(core.DocTypeReturnIn, core.IntPtr(whA), nil, line(itemWidget, "5")))
	assert.Equal(t, "RTI-000001", res.Number)

	ledger := f.store.Ledger()
	last := ledger[len(ledger)-1]
	requireDec(t, "5", last.QtyOut)
	requireDec(t, "20.00", last.ValueOut)

	bal := f.balance(t, whA, itemWidget)
	requireDec(t, "7", bal.OnHandQty)
	requireDec(t, "28.00", bal.OnHandValue)
}

func TestPostLotTrackedStockKeepsSeparateBalances(t *testing.T) {
	f := newFixture(t)
	lot1, lot2 := core.IntPtr(501), core.IntPtr(502)

	l1 := line(itemFlour, "10")
	l1.LotID, l1.UnitCost = lot1, cost("2")
	l2 := line(itemFlour, "10")
	l2.LotID, l2.UnitCost = lot2, cost("4")
	res := f.post(t, f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), l1, l2))
	assert.Equal(t, 2, res.Entries)

	var lots int
	for _, b := range f.store.Balances() {
		if b.ItemID == itemFlour {
			lots++
			require.NotNil(t, b.LotID)
		}
	}
	assert.Equal(t, 2, lots)

	avg, err := f.costing.AverageCost(context.Background(), companyID, whA, itemFlour, lot2)
	require.NoError(t, err)
	requireDec(t, "4", avg)

	avg, err = f.costing.AverageCost(context.Background(), companyID, whA, itemFlour, nil)
	require.NoError(t, err)
	requireDec(t, "3", avg)

	issue := line(itemFlour, "5")
	issue.LotID = lot1
	f.post(t, f.addDoc(core.DocTypeIssue, core.IntPtr(whA), nil, issue))
	last := f.store.Ledger()[2]
	requireDec(t, "10.00", last.ValueOut)
}

func TestPostLocationLevelAvailability(t *testing.T) {
	f := newFixture(t)
	in := line(itemWidget, "5")
	in.ToLocationID, in.UnitCost = core.IntPtr(locA1), cost("1")
	f.post(t, f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), in))

	out := line(itemWidget, "3")
	out.FromLocationID = core.IntPtr(locA2)
	_, err := f.posting.Post(context.Background(), f.sess, f.addDoc(core.DocTypeIssue, core.IntPtr(whA), nil, out), time.Time{})
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))

	out.FromLocationID = core.IntPtr(locA1)
	f.post(t, f.addDoc(core.DocTypeIssue, core.IntPtr(whA), nil, out))
}

func TestPostStopsAtFirstInvalidLine(t *testing.T) {
	f := newFixture(t)
	good := line(itemWidget, "1")
	good.UnitCost = cost("1")
	id := f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), good, line(itemObsolete, "1"), line(itemInstall, "1"))

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, core.CodeItemInactive, ve.Code)
	assert.Equal(t, 2, ve.LineNo)
	assert.Empty(t, f.store.Ledger())
}

func TestPostUnlocatedIssueDrawsFromLocatedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := line(itemWidget, "100")
	in.ToLocationID, in.UnitCost = core.IntPtr(locA1), cost("2")
	f.post(t, f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), in))

	id := f.issue(whA, itemWidget, "30")
	doc, ok := f.store.Document(id)
	require.True(t, ok)
	require.NoError(t, f.validation.Validate(ctx, doc))
	f.post(t, id)

	bals := f.store.Balances()
	require.Len(t, bals, 1)
	require.NotNil(t, bals[0].LocationID)
	assert.Equal(t, locA1, *bals[0].LocationID)
	requireDec(t, "70", bals[0].OnHandQty)
	requireDec(t, "140.00", bals[0].OnHandValue)

	out := f.store.Ledger()[1]
	require.NotNil(t, out.LocationID)
	assert.Equal(t, locA1, *out.LocationID)
	requireDec(t, "30", out.QtyOut)
}

func TestPostUnlocatedMovementUsesOldestMatchingRow(t *testing.T) {
	f := newFixture(t)
	a1 := line(itemWidget, "10")
	a1.ToLocationID, a1.UnitCost = core.IntPtr(locA1), cost("1")
	a2 := line(itemWidget, "10")
	a2.ToLocationID, a2.UnitCost = core.IntPtr(locA2), cost("1")
	f.post(t, f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), a1, a2))

	f.post(t, f.issue(whA, itemWidget, "4"))
	f.post(t, f.receipt(whA, itemWidget, "1", "1"))

	byLoc := map[int]string{}
	for _, b := range f.store.Balances() {
		require.NotNil(t, b.LocationID)
		byLoc[*b.LocationID] = b.OnHandQty.String()
	}
	assert.Equal(t, map[int]string{locA1: "7", locA2: "10"}, byLoc)
}

func TestPostRejectsUnknownOrInactiveLocation(t *testing.T) {
	f := newFixture(t)
	in := line(itemWidget, "5")
	in.ToLocationID, in.UnitCost = core.IntPtr(999), cost("1")
	id := f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), in)

	_, err := f.posting.Post(context.Background(), f.sess, id, time.Time{})
	assert.True(t, errors.Is(err, core.ErrLocationNotFound))

	in.ToLocationID = core.IntPtr(locAClosed)
	id = f.addDoc(core.DocTypeReceipt, nil, core.IntPtr(whA), in)
	_, err = f.posting.Post(context.Background(), f.sess, id, time.Time{})
	assert.True(t, errors.Is(err, core.ErrLocationInactive))

	assert.Empty(t, f.store.Ledger())
	assert.Empty(t, f.store.Balances())
}

func TestPostRoundsGivenUnitCost(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.receipt(whA, itemWidget, "10", "0.123456"))

	e := f.store.Ledger()[0]
	requireDec(t, "0.1235", e.UnitCost)
	requireDec(t, "1.24", e.ValueIn)
	requireDec(t, "0.124", f.balance(t, whA, itemWidget).AvgCost)
}
