package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inventory-ledger/internal/core"
)

func TestFormatDocumentNumber(t *testing.T) {
	assert.Equal(t, "GRN-000042", core.FormatDocumentNumber("GRN", 42, 6))
	assert.Equal(t, "ISS-0007", core.FormatDocumentNumber("ISS", 7, 4))
	assert.Equal(t, "TRF-000001", core.FormatDocumentNumber("TRF", 1, 0))
	assert.Equal(t, "ADJ-1234567", core.FormatDocumentNumber("ADJ", 1234567, 6))
}

func TestEveryDocumentTypeHasPrefix(t *testing.T) {
	seen := make(map[string]core.DocumentType)
	for _, dt := range core.AllDocumentTypes {
		p := core.SequencePrefix(dt)
		assert.Len(t, p, 3, dt)
		if prev, dup := seen[p]; dup {
			t.Errorf("prefix %s shared by %s and %s", p, prev, dt)
		}
		seen[p] = dt
	}
}
