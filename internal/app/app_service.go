package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

// ErrInvalidRequest marks input rejected before it reaches the posting pipeline.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type appService struct {
	store      core.Store
	policies   core.PolicyResolver
	validation core.ValidationEngine
	costing    core.CostingEngine
	posting    core.PostingEngine
	log        zerolog.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	store core.Store,
	policies core.PolicyResolver,
	validation core.ValidationEngine,
	costing core.CostingEngine,
	posting core.PostingEngine,
	log zerolog.Logger,
) ApplicationService {
	return &appService{
		store:      store,
		policies:   policies,
		validation: validation,
		costing:    costing,
		posting:    posting,
		log:        log,
	}
}

// New wires the engines over store with the given precisions.
func New(store core.Store, costPrecision, valuePrecision int32, log zerolog.Logger, opts ...core.PostingOption) ApplicationService {
	policies := core.NewPolicyResolver(store)
	validation := core.NewValidationEngine(store, policies)
	costing := core.NewCostingEngine(store, costPrecision, valuePrecision)
	posting := core.NewPostingEngine(store, validation, costing, log, opts...)
	return NewAppService(store, policies, validation, costing, posting, log)
}

func roundNull(d decimal.NullDecimal, round func(decimal.Decimal) decimal.Decimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(round(d.Decimal))
}

func parseDate(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, invalid("%s must be YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

// loadDocument fetches a document visible to sess. Other companies' documents read as not found.
func loadDocument(ctx context.Context, tx core.Tx, sess core.Session, documentID int) (*core.Document, error) {
	doc, err := tx.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.PostingError{Code: core.CodeDocumentNotFound, DocumentID: documentID}
		}
		return nil, err
	}
	if doc.CompanyID != sess.CompanyID {
		return nil, &core.PostingError{Code: core.CodeDocumentNotFound, DocumentID: documentID}
	}
	return doc, nil
}

func (s *appService) CreateDraftDocument(ctx context.Context, sess core.Session, req CreateDocumentRequest) (*DocumentResult, error) {
	if !req.Type.Valid() {
		return nil, invalid("unknown document type %q", req.Type)
	}
	if len(req.Lines) == 0 {
		return nil, invalid("document needs at least one line")
	}
	docDate, err := parseDate("doc_date", req.DocumentDate)
	if err != nil {
		return nil, err
	}
	if docDate.IsZero() {
		now := time.Now().UTC()
		docDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	doc := &core.Document{
		CompanyID:       sess.CompanyID,
		Type:            req.Type,
		Number:          strings.TrimSpace(req.Number),
		DocumentDate:    docDate,
		Status:          core.DocumentStatusDraft,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		SupplierID:      req.SupplierID,
		CustomerID:      req.CustomerID,
		ReasonCodeID:    req.ReasonCodeID,
		ReferenceNo:     req.ReferenceNo,
		Notes:           req.Notes,
		CreatedBy:       sess.ActorID,
	}

	err = s.store.InTx(ctx, func(tx core.Tx) error {
		for i, in := range req.Lines {
			item, err := tx.GetItem(ctx, in.ItemID)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return invalid("line %d: item %d not found", i+1, in.ItemID)
				}
				return err
			}
			uom := in.UOMID
			if uom == 0 {
				uom = item.BaseUOMID
			}
			factor, err := tx.UOMFactor(ctx, item.ID, uom)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return invalid("line %d: no conversion from uom %d for item %s", i+1, uom, item.Code)
				}
				return err
			}
			doc.Lines = append(doc.Lines, core.DocumentLine{
				LineNo:         i + 1,
				ItemID:         item.ID,
				Qty:            in.Qty.Round(core.QtyPrecision),
				UOMID:          uom,
				BaseQty:        in.Qty.Mul(factor).Round(core.QtyPrecision),
				FromLocationID: in.FromLocationID,
				ToLocationID:   in.ToLocationID,
				LotID:          in.LotID,
				SerialID:       in.SerialID,
				UnitCost:       roundNull(in.UnitCost, s.costing.RoundCost),
				TotalCost:      roundNull(in.TotalCost, s.costing.RoundValue),
				Notes:          in.Notes,
			})
		}
		return tx.InsertDocument(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("document_id", doc.ID).Str("doc_type", string(doc.Type)).Int("lines", len(doc.Lines)).Msg("draft document created")
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) GetDocument(ctx context.Context, sess core.Session, documentID int) (*DocumentResult, error) {
	var doc *core.Document
	err := s.store.InTx(ctx, func(tx core.Tx) error {
		d, err := loadDocument(ctx, tx, sess, documentID)
		doc = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *appService) ValidateDocument(ctx context.Context, sess core.Session, documentID int) (*ValidationResult, error) {
	result := &ValidationResult{DocumentID: documentID}
	err := s.store.InTx(ctx, func(tx core.Tx) error {
		doc, err := loadDocument(ctx, tx, sess, documentID)
		if err != nil {
			return err
		}
		err = s.validation.ValidateTx(ctx, tx, doc)
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			result.Error = ve
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Valid = result.Error == nil
	return result, nil
}

func (s *appService) PostDocument(ctx context.Context, sess core.Session, req PostDocumentRequest) (*core.PostResult, error) {
	postingDate, err := parseDate("posting_date", req.PostingDate)
	if err != nil {
		return nil, err
	}
	return s.posting.Post(ctx, sess, req.DocumentID, postingDate)
}

func (s *appService) ListLedger(ctx context.Context, sess core.Session, documentID int) (*LedgerResult, error) {
	result := &LedgerResult{DocumentID: documentID}
	err := s.store.InTx(ctx, func(tx core.Tx) error {
		if _, err := loadDocument(ctx, tx, sess, documentID); err != nil {
			return err
		}
		entries, err := tx.LedgerByDocument(ctx, documentID)
		result.Entries = entries
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *appService) ListBalances(ctx context.Context, sess core.Session, filter BalanceFilter) (*BalanceListResult, error) {
	q := core.StockQuery{
		CompanyID:   sess.CompanyID,
		WarehouseID: filter.WarehouseID,
		ItemID:      filter.ItemID,
		LotID:       filter.LotID,
	}
	result := &BalanceListResult{CompanyID: sess.CompanyID}
	err := s.store.InTx(ctx, func(tx core.Tx) error {
		balances, err := tx.ListBalances(ctx, q)
		if err != nil {
			return err
		}
		result.Balances = balances
		for _, b := range balances {
			result.TotalQty = result.TotalQty.Add(b.OnHandQty)
			result.Total = result.Total.Add(b.OnHandValue)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *appService) AverageCost(ctx context.Context, sess core.Session, req AverageCostRequest) (*AverageCostResult, error) {
	if req.WarehouseID <= 0 || req.ItemID <= 0 {
		return nil, invalid("warehouse and item are required")
	}
	avg, err := s.costing.AverageCost(ctx, sess.CompanyID, req.WarehouseID, req.ItemID, req.LotID)
	if err != nil {
		return nil, err
	}
	return &AverageCostResult{
		CompanyID:   sess.CompanyID,
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		LotID:       req.LotID,
		AvgCost:     avg,
	}, nil
}

func (s *appService) TotalValue(ctx context.Context, sess core.Session, warehouseID *int) (*TotalValueResult, error) {
	v, err := s.costing.TotalValue(ctx, sess.CompanyID, warehouseID)
	if err != nil {
		return nil, err
	}
	return &TotalValueResult{CompanyID: sess.CompanyID, WarehouseID: warehouseID, Value: v}, nil
}

func (s *appService) ResolvePolicy(ctx context.Context, sess core.Session, req ResolvePolicyRequest) (*PolicyResult, error) {
	if req.Name == "" {
		return nil, invalid("policy name is required")
	}
	v, err := s.policies.Resolve(ctx, req.Name, core.PolicyContext{
		CompanyID:   sess.CompanyID,
		WarehouseID: req.WarehouseID,
		DocType:     req.DocType,
		CategoryID:  req.CategoryID,
		ItemID:      req.ItemID,
	})
	if err != nil {
		return nil, err
	}
	return &PolicyResult{Name: req.Name, Value: v}, nil
}

func (s *appService) SetPolicy(ctx context.Context, sess core.Session, req SetPolicyRequest) (*core.Policy, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, invalid("policy name is required")
	}

	companyID := sess.CompanyID
	sel := core.PolicySelector{
		CompanyID:   &companyID,
		WarehouseID: req.WarehouseID,
		DocType:     req.DocType,
		CategoryID:  req.CategoryID,
		ItemID:      req.ItemID,
	}
	switch req.Scope {
	case core.ScopeGlobal, core.ScopeCompany:
	case core.ScopeWarehouse:
		if sel.WarehouseID == nil {
			return nil, invalid("warehouse scope needs warehouse_id")
		}
	case core.ScopeDocType:
		if sel.DocType == nil || !sel.DocType.Valid() {
			return nil, invalid("doc type scope needs a valid doc_type")
		}
	case core.ScopeCategory:
		if sel.CategoryID == nil {
			return nil, invalid("category scope needs category_id")
		}
	case core.ScopeItem:
		if sel.ItemID == nil {
			return nil, invalid("item scope needs item_id")
		}
	default:
		return nil, invalid("unknown policy scope %q", req.Scope)
	}

	p := &core.Policy{
		Scope:                    req.Scope,
		PolicySelector:           sel.ForScope(req.Scope),
		Name:                     name,
		Value:                    req.Value,
		OverrideAllowed:          req.OverrideAllowed,
		OverrideRequiresApproval: req.OverrideRequiresApproval,
		ApprovalRoleID:           req.ApprovalRoleID,
		ReasonRequired:           req.ReasonRequired,
	}
	if err := s.store.InTx(ctx, func(tx core.Tx) error {
		return tx.UpsertPolicy(ctx, p)
	}); err != nil {
		return nil, err
	}

	s.log.Info().Str("policy", p.Name).Str("scope", string(p.Scope)).Bool("value", p.Value).Int("actor_id", sess.ActorID).Msg("policy set")
	return p, nil
}
