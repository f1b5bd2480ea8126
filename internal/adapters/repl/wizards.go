package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

// newDocument collects a draft document line by line and optionally posts it.
func (s *shell) newDocument(ctx context.Context, typeArg string) error {
	docType := core.DocumentType(strings.ToUpper(typeArg))
	if !docType.Valid() {
		return fmt.Errorf("unknown document type %q", typeArg)
	}

	req := app.CreateDocumentRequest{Type: docType}
	var err error
	if needsSource(docType) {
		if req.FromWarehouseID, err = s.askWarehouse("From warehouse"); err != nil {
			return err
		}
	}
	if needsDestination(docType) {
		if req.ToWarehouseID, err = s.askWarehouse("To warehouse"); err != nil {
			return err
		}
	}

	fmt.Fprintln(s.out, "Enter lines as: <item-id> <qty> [unit-cost]")
	fmt.Fprintln(s.out, "Type 'done' when finished, 'cancel' to abort.")
	for {
		input, err := s.ask(fmt.Sprintf("Line %d", len(req.Lines)+1))
		if err != nil {
			return err
		}
		switch strings.ToLower(input) {
		case "cancel":
			fmt.Fprintln(s.out, "Cancelled.")
			return nil
		case "done":
			if len(req.Lines) == 0 {
				fmt.Fprintln(s.out, "No lines entered. Cancelled.")
				return nil
			}
		case "":
			continue
		default:
			l, perr := parseLine(input)
			if perr != nil {
				fmt.Fprintf(s.out, "  %v\n", perr)
				continue
			}
			req.Lines = append(req.Lines, l)
			continue
		}
		break
	}

	if req.DocumentDate, err = s.ask("Document date (YYYY-MM-DD, blank for today)"); err != nil {
		return err
	}

	res, err := s.svc.CreateDraftDocument(ctx, s.sess, req)
	if err != nil {
		return err
	}
	printDocument(s.out, res.Document)

	answer, err := s.ask("Post now? (y/n)")
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintf(s.out, "Draft %d saved.\n", res.Document.ID)
		return nil
	}
	posted, err := s.svc.PostDocument(ctx, s.sess, app.PostDocumentRequest{
		DocumentID:  res.Document.ID,
		PostingDate: req.DocumentDate,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Posted %s %s on %s: %d ledger entries.\n",
		posted.DocType, posted.Number, posted.PostingDate.Format("2006-01-02"), posted.Entries)
	return nil
}

func (s *shell) ask(label string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", label)
	line, err := s.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("input closed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// askWarehouse defaults to the session warehouse on a blank answer.
func (s *shell) askWarehouse(label string) (*int, error) {
	if s.sess.WarehouseID != nil {
		label = fmt.Sprintf("%s [%d]", label, *s.sess.WarehouseID)
	}
	for {
		input, err := s.ask(label)
		if err != nil {
			return nil, err
		}
		if input == "" && s.sess.WarehouseID != nil {
			id := *s.sess.WarehouseID
			return &id, nil
		}
		id, err := parsePositive(input)
		if err != nil {
			fmt.Fprintf(s.out, "  warehouse id: %v\n", err)
			continue
		}
		return &id, nil
	}
}

func parseLine(input string) (app.DocumentLineInput, error) {
	parts := strings.Fields(input)
	if len(parts) < 2 || len(parts) > 3 {
		return app.DocumentLineInput{}, fmt.Errorf("expected <item-id> <qty> [unit-cost]")
	}
	itemID, err := parsePositive(parts[0])
	if err != nil {
		return app.DocumentLineInput{}, fmt.Errorf("item id: %w", err)
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil {
		return app.DocumentLineInput{}, fmt.Errorf("invalid quantity %q", parts[1])
	}
	l := app.DocumentLineInput{ItemID: itemID, Qty: qty}
	if len(parts) == 3 {
		c, err := decimal.NewFromString(parts[2])
		if err != nil || c.IsNegative() {
			return app.DocumentLineInput{}, fmt.Errorf("invalid unit cost %q", parts[2])
		}
		l.UnitCost = decimal.NewNullDecimal(c)
	}
	return l, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer, got %q", s)
	}
	return n, nil
}

func needsSource(t core.DocumentType) bool {
	return t.IsOutgoing()
}

// Adjustments post against one warehouse, kept on the destination side.
func needsDestination(t core.DocumentType) bool {
	switch t {
	case core.DocTypeIssue, core.DocTypeReturnIn:
		return false
	}
	return true
}
