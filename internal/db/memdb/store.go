// Package memdb is an in-memory implementation of core.Store with seeding helpers,
// used by the engine and adapter tests.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

type uomKey struct {
	itemID int
	uomID  int
}

type seqKey struct {
	companyID int
	docType   core.DocumentType
}

type sequence struct {
	prefix  string
	next    int64
	padding int
}

// state is everything one transaction can see. It is copied on begin and swapped
// in on commit.
type state struct {
	lastID    int
	items     map[int]core.Item
	locations map[int]core.Location
	uoms      map[uomKey]decimal.Decimal
	documents map[int]*core.Document
	balances  []core.StockBalance
	ledger    []core.LedgerEntry
	policies  []core.Policy
	sequences map[seqKey]*sequence
}

func newState() *state {
	return &state{
		items:     make(map[int]core.Item),
		locations: make(map[int]core.Location),
		uoms:      make(map[uomKey]decimal.Decimal),
		documents: make(map[int]*core.Document),
		sequences: make(map[seqKey]*sequence),
	}
}

func (s *state) clone() *state {
	c := &state{
		lastID:    s.lastID,
		items:     make(map[int]core.Item, len(s.items)),
		locations: make(map[int]core.Location, len(s.locations)),
		uoms:      make(map[uomKey]decimal.Decimal, len(s.uoms)),
		documents: make(map[int]*core.Document, len(s.documents)),
		balances:  append([]core.StockBalance(nil), s.balances...),
		ledger:    append([]core.LedgerEntry(nil), s.ledger...),
		policies:  append([]core.Policy(nil), s.policies...),
		sequences: make(map[seqKey]*sequence, len(s.sequences)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.locations {
		c.locations[k] = v
	}
	for k, v := range s.uoms {
		c.uoms[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = copyDocument(v)
	}
	for k, v := range s.sequences {
		seq := *v
		c.sequences[k] = &seq
	}
	return c
}

func (s *state) nextID() int {
	s.lastID++
	return s.lastID
}

func copyDocument(d *core.Document) *core.Document {
	c := *d
	c.Lines = append([]core.DocumentLine(nil), d.Lines...)
	return &c
}

// Store serialises transactions behind one mutex.
type Store struct {
	mu    sync.Mutex
	st    *state
	fault func(op string) error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

var _ core.Store = (*Store)(nil)

// InTx runs fn against a private copy of the store and publishes it only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.st.clone(), fault: s.fault}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// SetFault installs a hook called before every write with the operation name
// ("insert_ledger", "update_balance", "mark_posted", ...). A non-nil result aborts the write.
func (s *Store) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// AddItem registers or replaces master data for an item.
func (s *Store) AddItem(item core.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.st.nextID()
	} else if item.ID > s.st.lastID {
		s.st.lastID = item.ID
	}
	s.st.items[item.ID] = item
}

// AddLocation registers or replaces a warehouse location.
func (s *Store) AddLocation(loc core.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc.ID == 0 {
		loc.ID = s.st.nextID()
	} else if loc.ID > s.st.lastID {
		s.st.lastID = loc.ID
	}
	s.st.locations[loc.ID] = loc
}

// SetUOMFactor records that one uomID of itemID holds factor base units.
func (s *Store) SetUOMFactor(itemID, uomID int, factor decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.uoms[uomKey{itemID, uomID}] = factor
}

// AddDocument stores a document with its lines and returns the assigned id.
func (s *Store) AddDocument(doc core.Document) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	insertDocument(s.st, &doc)
	return doc.ID
}

// Document returns a copy of the stored document.
func (s *Store) Document(id int) (*core.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.st.documents[id]
	if !ok {
		return nil, false
	}
	return copyDocument(d), true
}

// Balances returns a snapshot of every balance row.
func (s *Store) Balances() []core.StockBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.StockBalance(nil), s.st.balances...)
}

// Ledger returns a snapshot of the ledger in insertion order.
func (s *Store) Ledger() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEntry(nil), s.st.ledger...)
}

// DeleteBalance drops the balance row for key, leaving its ledger history intact.
func (s *Store) DeleteBalance(key core.StockKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.balances {
		if sameKey(s.st.balances[i].Key(), key) {
			s.st.balances = append(s.st.balances[:i], s.st.balances[i+1:]...)
			return true
		}
	}
	return false
}

func insertDocument(st *state, doc *core.Document) {
	if doc.ID == 0 {
		doc.ID = st.nextID()
	} else if doc.ID > st.lastID {
		st.lastID = doc.ID
	}
	if doc.Status == "" {
		doc.Status = core.DocumentStatusDraft
	}
	for i := range doc.Lines {
		l := &doc.Lines[i]
		l.DocumentID = doc.ID
		if l.ID == 0 {
			l.ID = st.nextID()
		}
		if l.LineNo == 0 {
			l.LineNo = i + 1
		}
	}
	st.documents[doc.ID] = copyDocument(doc)
}

func sameKey(a, b core.StockKey) bool {
	return a.CompanyID == b.CompanyID &&
		a.WarehouseID == b.WarehouseID &&
		a.ItemID == b.ItemID &&
		core.SameRef(a.LocationID, b.LocationID) &&
		core.SameRef(a.LotID, b.LotID) &&
		core.SameRef(a.SerialID, b.SerialID)
}

func ledgerKey(e *core.LedgerEntry) core.StockKey {
	return core.StockKey{
		CompanyID:   e.CompanyID,
		WarehouseID: e.WarehouseID,
		ItemID:      e.ItemID,
		LocationID:  e.LocationID,
		LotID:       e.LotID,
		SerialID:    e.SerialID,
	}
}

type memTx struct {
	st    *state
	fault func(op string) error
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	if err := t.fault(op); err != nil {
		return fmt.Errorf("memdb %s: %w", op, err)
	}
	return nil
}

func (t *memTx) LockDocument(ctx context.Context, documentID int) (*core.Document, error) {
	return t.GetDocument(ctx, documentID)
}

func (t *memTx) GetDocument(_ context.Context, documentID int) (*core.Document, error) {
	d, ok := t.st.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", documentID, core.ErrNotFound)
	}
	c := copyDocument(d)
	sort.Slice(c.Lines, func(i, j int) bool { return c.Lines[i].LineNo < c.Lines[j].LineNo })
	return c, nil
}

func (t *memTx) InsertDocument(_ context.Context, doc *core.Document) error {
	if err := t.check("insert_document"); err != nil {
		return err
	}
	seen := make(map[int]bool, len(doc.Lines))
	for _, l := range doc.Lines {
		if l.LineNo != 0 && seen[l.LineNo] {
			return fmt.Errorf("duplicate line number %d", l.LineNo)
		}
		seen[l.LineNo] = true
	}
	insertDocument(t.st, doc)
	return nil
}

func (t *memTx) MarkPosted(_ context.Context, documentID int, number string, postingDate time.Time, actorID int, at time.Time) error {
	if err := t.check("mark_posted"); err != nil {
		return err
	}
	d, ok := t.st.documents[documentID]
	if !ok {
		return fmt.Errorf("document %d: %w", documentID, core.ErrNotFound)
	}
	d.Status = core.DocumentStatusPosted
	d.Number = number
	d.PostingDate = &postingDate
	d.PostedBy = &actorID
	d.PostedAt = &at
	return nil
}

func (t *memTx) NextDocumentNumber(_ context.Context, companyID int, docType core.DocumentType) (string, error) {
	if err := t.check("next_number"); err != nil {
		return "", err
	}
	k := seqKey{companyID, docType}
	seq, ok := t.st.sequences[k]
	if !ok {
		seq = &sequence{prefix: core.SequencePrefix(docType), next: 1, padding: core.DefaultSequencePadding}
		t.st.sequences[k] = seq
	}
	n := seq.next
	seq.next++
	return core.FormatDocumentNumber(seq.prefix, n, seq.padding), nil
}

func (t *memTx) GetItem(_ context.Context, itemID int) (*core.Item, error) {
	item, ok := t.st.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", itemID, core.ErrNotFound)
	}
	return &item, nil
}

func (t *memTx) GetLocation(_ context.Context, locationID int) (*core.Location, error) {
	loc, ok := t.st.locations[locationID]
	if !ok {
		return nil, fmt.Errorf("location %d: %w", locationID, core.ErrNotFound)
	}
	return &loc, nil
}

func (t *memTx) UOMFactor(_ context.Context, itemID, fromUOMID int) (decimal.Decimal, error) {
	item, ok := t.st.items[itemID]
	if !ok {
		return decimal.Zero, fmt.Errorf("item %d: %w", itemID, core.ErrNotFound)
	}
	if item.BaseUOMID == fromUOMID {
		return decimal.NewFromInt(1), nil
	}
	f, ok := t.st.uoms[uomKey{itemID, fromUOMID}]
	if !ok {
		return decimal.Zero, fmt.Errorf("uom %d for item %d: %w", fromUOMID, itemID, core.ErrNotFound)
	}
	return f, nil
}

// LockBalance takes the first matching row; balances are kept in id order.
func (t *memTx) LockBalance(_ context.Context, key core.StockKey, now time.Time) (*core.StockBalance, bool, error) {
	q := key.Query()
	for i := range t.st.balances {
		if q.Matches(t.st.balances[i].Key()) {
			b := t.st.balances[i]
			return &b, false, nil
		}
	}
	if err := t.check("insert_balance"); err != nil {
		return nil, false, err
	}
	b := core.StockBalance{
		ID:          t.st.nextID(),
		CompanyID:   key.CompanyID,
		WarehouseID: key.WarehouseID,
		ItemID:      key.ItemID,
		LocationID:  key.LocationID,
		LotID:       key.LotID,
		SerialID:    key.SerialID,
		OnHandQty:   decimal.Zero,
		OnHandValue: decimal.Zero,
		AvgCost:     decimal.Zero,
		LastUpdated: now,
	}
	t.st.balances = append(t.st.balances, b)
	return &b, true, nil
}

func (t *memTx) UpdateBalance(_ context.Context, bal *core.StockBalance) error {
	if err := t.check("update_balance"); err != nil {
		return err
	}
	for i := range t.st.balances {
		if t.st.balances[i].ID == bal.ID {
			t.st.balances[i] = *bal
			return nil
		}
	}
	return fmt.Errorf("stock balance %d: %w", bal.ID, core.ErrNotFound)
}

func (t *memTx) BalanceTotals(_ context.Context, q core.StockQuery) (core.StockTotals, error) {
	totals := core.StockTotals{Qty: decimal.Zero, Value: decimal.Zero}
	for i := range t.st.balances {
		b := &t.st.balances[i]
		if !q.Matches(b.Key()) {
			continue
		}
		totals.Qty = totals.Qty.Add(b.OnHandQty)
		totals.Value = totals.Value.Add(b.OnHandValue)
		totals.Rows++
	}
	return totals, nil
}

func (t *memTx) ListBalances(_ context.Context, q core.StockQuery) ([]core.StockBalance, error) {
	var out []core.StockBalance
	for i := range t.st.balances {
		if q.Matches(t.st.balances[i].Key()) {
			out = append(out, t.st.balances[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, entry *core.LedgerEntry) error {
	if err := t.check("insert_ledger"); err != nil {
		return err
	}
	entry.ID = t.st.nextID()
	t.st.ledger = append(t.st.ledger, *entry)
	return nil
}

func (t *memTx) LedgerTotals(_ context.Context, q core.StockQuery) (core.StockTotals, error) {
	totals := core.StockTotals{Qty: decimal.Zero, Value: decimal.Zero}
	for i := range t.st.ledger {
		e := &t.st.ledger[i]
		if !q.Matches(ledgerKey(e)) {
			continue
		}
		totals.Qty = totals.Qty.Add(e.QtyIn).Sub(e.QtyOut)
		totals.Value = totals.Value.Add(e.ValueIn).Sub(e.ValueOut)
		totals.Rows++
	}
	return totals, nil
}

func (t *memTx) LedgerByDocument(_ context.Context, documentID int) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	for _, e := range t.st.ledger {
		if e.DocID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) FindPolicy(_ context.Context, name string, scope core.PolicyScope, sel core.PolicySelector) (*core.Policy, error) {
	want := sel.ForScope(scope)
	for i := range t.st.policies {
		p := &t.st.policies[i]
		if p.Name == name && p.Scope == scope && sameSelector(p.PolicySelector.ForScope(scope), want) {
			found := *p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("policy %s at %s: %w", name, scope, core.ErrNotFound)
}

func (t *memTx) UpsertPolicy(_ context.Context, p *core.Policy) error {
	if err := t.check("upsert_policy"); err != nil {
		return err
	}
	p.PolicySelector = p.PolicySelector.ForScope(p.Scope)
	for i := range t.st.policies {
		cur := &t.st.policies[i]
		if cur.Name == p.Name && cur.Scope == p.Scope && sameSelector(cur.PolicySelector, p.PolicySelector) {
			p.ID = cur.ID
			*cur = *p
			return nil
		}
	}
	p.ID = t.st.nextID()
	t.st.policies = append(t.st.policies, *p)
	return nil
}

func sameSelector(a, b core.PolicySelector) bool {
	if (a.DocType == nil) != (b.DocType == nil) {
		return false
	}
	if a.DocType != nil && *a.DocType != *b.DocType {
		return false
	}
	return core.SameRef(a.CompanyID, b.CompanyID) &&
		core.SameRef(a.WarehouseID, b.WarehouseID) &&
		core.SameRef(a.CategoryID, b.CategoryID) &&
		core.SameRef(a.ItemID, b.ItemID)
}
