package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type ErrorCode string

// Posting failures.
const (
	CodeDocumentNotFound   ErrorCode = "DOCUMENT_NOT_FOUND"
	CodeAlreadyPosted      ErrorCode = "ALREADY_POSTED"
	CodeCancelledDocument  ErrorCode = "CANCELLED_DOCUMENT"
	CodeEmptyDocument      ErrorCode = "EMPTY_DOCUMENT"
	CodeUnsupportedDocType ErrorCode = "UNSUPPORTED_DOC_TYPE"
	CodeNoOpeningBalance   ErrorCode = "NO_OPENING_BALANCE"
)

// Validation failures.
const (
	CodeItemNotFound        ErrorCode = "ITEM_NOT_FOUND"
	CodeItemInactive        ErrorCode = "ITEM_INACTIVE"
	CodeWrongItemType       ErrorCode = "WRONG_ITEM_TYPE"
	CodeNonPositiveQuantity ErrorCode = "NON_POSITIVE_QUANTITY"
	CodeMissingLotOrSerial  ErrorCode = "MISSING_LOT_OR_SERIAL"
	CodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	CodeMissingWarehouse    ErrorCode = "MISSING_WAREHOUSE"
	CodeLocationNotFound    ErrorCode = "LOCATION_NOT_FOUND"
	CodeLocationInactive    ErrorCode = "LOCATION_INACTIVE"
)

// PostingError reports why a document could not be posted. Nothing was written when it is returned.
type PostingError struct {
	Code       ErrorCode `json:"code"`
	DocumentID int       `json:"document_id"`
	LineNo     int       `json:"line_no,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

func (e *PostingError) Error() string {
	msg := fmt.Sprintf("posting document %d: %s", e.DocumentID, e.Code)
	if e.LineNo > 0 {
		msg += fmt.Sprintf(" (line %d)", e.LineNo)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches on Code so the sentinels below work with errors.Is.
func (e *PostingError) Is(target error) bool {
	var t *PostingError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ValidationError reports the first line that failed pre-posting checks.
type ValidationError struct {
	Code      ErrorCode       `json:"code"`
	LineNo    int             `json:"line_no,omitempty"`
	ItemID    int             `json:"item_id,omitempty"`
	ItemCode  string          `json:"item_code,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Requested decimal.Decimal `json:"requested"` // InsufficientStock only
	Available decimal.Decimal `json:"available"` // InsufficientStock only
}

func (e *ValidationError) Error() string {
	msg := string(e.Code)
	if e.LineNo > 0 {
		msg = fmt.Sprintf("line %d: %s", e.LineNo, msg)
	}
	if e.ItemCode != "" {
		msg += fmt.Sprintf(" [item %s]", e.ItemCode)
	} else if e.ItemID > 0 {
		msg += fmt.Sprintf(" [item %d]", e.ItemID)
	}
	if e.Code == CodeInsufficientStock {
		msg += fmt.Sprintf(": available %s, requested %s", e.Available.StringFixed(4), e.Requested.StringFixed(4))
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return "validation failed: " + msg
}

func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrDocumentNotFound   = &PostingError{Code: CodeDocumentNotFound}
	ErrAlreadyPosted      = &PostingError{Code: CodeAlreadyPosted}
	ErrCancelledDocument  = &PostingError{Code: CodeCancelledDocument}
	ErrEmptyDocument      = &PostingError{Code: CodeEmptyDocument}
	ErrUnsupportedDocType = &PostingError{Code: CodeUnsupportedDocType}
	ErrNoOpeningBalance   = &PostingError{Code: CodeNoOpeningBalance}

	ErrItemNotFound        = &ValidationError{Code: CodeItemNotFound}
	ErrItemInactive        = &ValidationError{Code: CodeItemInactive}
	ErrWrongItemType       = &ValidationError{Code: CodeWrongItemType}
	ErrNonPositiveQuantity = &ValidationError{Code: CodeNonPositiveQuantity}
	ErrMissingLotOrSerial  = &ValidationError{Code: CodeMissingLotOrSerial}
	ErrInsufficientStock   = &ValidationError{Code: CodeInsufficientStock}
	ErrMissingWarehouse    = &ValidationError{Code: CodeMissingWarehouse}
	ErrLocationNotFound    = &ValidationError{Code: CodeLocationNotFound}
	ErrLocationInactive    = &ValidationError{Code: CodeLocationInactive}
)

// CodeOf extracts the ErrorCode from a posting or validation error, or "" for anything else.
func CodeOf(err error) ErrorCode {
	var pe *PostingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
