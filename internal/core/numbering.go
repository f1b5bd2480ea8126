package core

import "fmt"

// DefaultSequencePadding is the zero padding applied to new document sequences.
const DefaultSequencePadding = 6

var sequencePrefixes = map[DocumentType]string{
	DocTypeReceipt:           "GRN",
	DocTypeIssue:             "ISS",
	DocTypeTransfer:          "TRF",
	DocTypeAdjustment:        "ADJ",
	DocTypeReturnIn:          "RTI",
	DocTypeReturnOut:         "RTO",
	DocTypeStockCount:        "CNT",
	DocTypeProductionOrder:   "PRO",
	DocTypeProductionIssue:   "PRI",
	DocTypeProductionReceipt: "PRR",
	DocTypeScrap:             "SCR",
}

// SequencePrefix is the prefix a new (company, type) sequence starts with.
func SequencePrefix(t DocumentType) string {
	if p, ok := sequencePrefixes[t]; ok {
		return p
	}
	return string(t)
}

// FormatDocumentNumber renders e.g. GRN-000042.
func FormatDocumentNumber(prefix string, n int64, padding int) string {
	if padding <= 0 {
		padding = DefaultSequencePadding
	}
	return fmt.Sprintf("%s-%0*d", prefix, padding, n)
}
