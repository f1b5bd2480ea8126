package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type PolicyScope string

const (
	ScopeGlobal    PolicyScope = "GLOBAL"
	ScopeCompany   PolicyScope = "COMPANY"
	ScopeWarehouse PolicyScope = "WAREHOUSE"
	ScopeDocType   PolicyScope = "DOCTYPE"
	ScopeCategory  PolicyScope = "CATEGORY"
	ScopeItem      PolicyScope = "ITEM"
)

// Well-known policy names.
const (
	PolicyBlockNegativeStock              = "BLOCK_NEGATIVE_STOCK"
	PolicyAllowNegativeWithApproval       = "ALLOW_NEGATIVE_WITH_APPROVAL"
	PolicyBlockIssueFromEmptyLocation     = "BLOCK_ISSUE_FROM_EMPTY_LOCATION"
	PolicyEnforceSerialTracking           = "ENFORCE_SERIAL_TRACKING"
	PolicyEnforceLotTracking              = "ENFORCE_LOT_TRACKING"
	PolicyEnforceExpiryTracking           = "ENFORCE_EXPIRY_TRACKING"
	PolicyFEFOPicking                     = "FEFO_PICKING"
	PolicyLockPostedDocuments             = "LOCK_POSTED_DOCUMENTS"
	PolicyEnableWorkflowSeparation        = "ENABLE_WORKFLOW_SEPARATION"
	PolicyRequireReasonCodeForAdjustments = "REQUIRE_REASON_CODE_FOR_ADJUSTMENTS"
)

// policyDefaults applies when no row matches at any scope. Names not listed resolve to false.
var policyDefaults = map[string]bool{
	PolicyBlockNegativeStock:              true,
	PolicyAllowNegativeWithApproval:       false,
	PolicyBlockIssueFromEmptyLocation:     false,
	PolicyEnforceSerialTracking:           true,
	PolicyEnforceLotTracking:              true,
	PolicyEnforceExpiryTracking:           true,
	PolicyFEFOPicking:                     false,
	PolicyLockPostedDocuments:             true,
	PolicyEnableWorkflowSeparation:        false,
	PolicyRequireReasonCodeForAdjustments: true,
}

// DefaultPolicyValue returns the built-in value for name.
func DefaultPolicyValue(name string) bool {
	return policyDefaults[name]
}

// DefaultPolicyNames lists the built-in policies in name order.
func DefaultPolicyNames() []string {
	names := make([]string, 0, len(policyDefaults))
	for name := range policyDefaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PolicySelector carries the selector columns of a policy row. Which fields are
// significant depends on the scope, see PolicySelector.ForScope.
type PolicySelector struct {
	CompanyID   *int          `json:"company_id,omitempty"`
	WarehouseID *int          `json:"warehouse_id,omitempty"`
	DocType     *DocumentType `json:"doc_type,omitempty"`
	CategoryID  *int          `json:"category_id,omitempty"`
	ItemID      *int          `json:"item_id,omitempty"`
}

// ForScope keeps only the selector fields a row of the given scope is matched on:
// Item by item, Category by category, DocType by company and doc type, Warehouse by
// warehouse, Company by company, Global by nothing.
func (s PolicySelector) ForScope(scope PolicyScope) PolicySelector {
	switch scope {
	case ScopeItem:
		return PolicySelector{ItemID: s.ItemID}
	case ScopeCategory:
		return PolicySelector{CategoryID: s.CategoryID}
	case ScopeDocType:
		return PolicySelector{CompanyID: s.CompanyID, DocType: s.DocType}
	case ScopeWarehouse:
		return PolicySelector{WarehouseID: s.WarehouseID}
	case ScopeCompany:
		return PolicySelector{CompanyID: s.CompanyID}
	}
	return PolicySelector{}
}

type Policy struct {
	ID    int         `json:"id"`
	Scope PolicyScope `json:"scope_type"`
	PolicySelector
	Name                     string `json:"policy_name"`
	Value                    bool   `json:"policy_value"`
	OverrideAllowed          bool   `json:"override_allowed"`
	OverrideRequiresApproval bool   `json:"override_requires_approval"`
	ApprovalRoleID           *int   `json:"approval_role_id,omitempty"`
	ReasonRequired           bool   `json:"reason_required"`
}

// PolicyContext is the lookup context for one resolution. Company is mandatory;
// every other field narrows the search to a more specific scope when present.
type PolicyContext struct {
	CompanyID   int
	WarehouseID *int
	DocType     *DocumentType
	CategoryID  *int
	ItemID      *int
}

// PolicyResolver answers named boolean business rules, most specific scope first.
type PolicyResolver interface {
	Resolve(ctx context.Context, name string, pc PolicyContext) (bool, error)
	// ResolveTx resolves within the caller's transaction.
	ResolveTx(ctx context.Context, tx Tx, name string, pc PolicyContext) (bool, error)
}

type policyResolver struct {
	store Store
}

// NewPolicyResolver constructs a PolicyResolver backed by the policies table of store.
func NewPolicyResolver(store Store) PolicyResolver {
	return &policyResolver{store: store}
}

func (r *policyResolver) Resolve(ctx context.Context, name string, pc PolicyContext) (bool, error) {
	var value bool
	err := r.store.InTx(ctx, func(tx Tx) error {
		v, err := r.ResolveTx(ctx, tx, name, pc)
		value = v
		return err
	})
	return value, err
}

type scopeCandidate struct {
	scope   PolicyScope
	present bool
}

func (r *policyResolver) ResolveTx(ctx context.Context, tx Tx, name string, pc PolicyContext) (bool, error) {
	companyID := pc.CompanyID
	sel := PolicySelector{
		CompanyID:   &companyID,
		WarehouseID: pc.WarehouseID,
		DocType:     pc.DocType,
		CategoryID:  pc.CategoryID,
		ItemID:      pc.ItemID,
	}

	candidates := []scopeCandidate{
		{ScopeItem, pc.ItemID != nil},
		{ScopeCategory, pc.CategoryID != nil},
		{ScopeDocType, pc.DocType != nil},
		{ScopeWarehouse, pc.WarehouseID != nil},
		{ScopeCompany, true},
		{ScopeGlobal, true},
	}
	for _, p := range candidates {
		if !p.present {
			continue
		}
		policy, err := tx.FindPolicy(ctx, name, p.scope, sel.ForScope(p.scope))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return false, fmt.Errorf("failed to resolve policy %s at scope %s: %w", name, p.scope, err)
		}
		return policy.Value, nil
	}
	return DefaultPolicyValue(name), nil
}
