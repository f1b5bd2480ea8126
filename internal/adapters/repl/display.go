package repl

import (
	"fmt"
	"io"
	"strings"

	"inventory-ledger/internal/core"
)

func printDocument(w io.Writer, d *core.Document) {
	number := d.Number
	if number == "" {
		number = "(unnumbered)"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %s %s  id %d  %s\n", d.Type, number, d.ID, d.Status)
	fmt.Fprintf(w, "  Date     : %s\n", d.DocumentDate.Format("2006-01-02"))
	fmt.Fprintf(w, "  From / To: %s / %s\n", optID(d.FromWarehouseID), optID(d.ToWarehouseID))
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %-4s %-8s %14s %6s %14s %14s\n", "LINE", "ITEM", "QTY", "UOM", "BASE QTY", "UNIT COST")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, l := range d.Lines {
		cost := "-"
		if l.UnitCost.Valid {
			cost = l.UnitCost.Decimal.StringFixed(4)
		}
		fmt.Fprintf(w, "  %-4d %-8d %14s %6d %14s %14s\n",
			l.LineNo, l.ItemID, l.Qty.StringFixed(4), l.UOMID, l.BaseQty.StringFixed(4), cost)
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func optID(id *int) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "INVENTORY LEDGER  COMMANDS")
	fmt.Fprintln(w, strings.Repeat("=", 66))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  DOCUMENTS")
	fmt.Fprintln(w, "  /new-doc <doc-type>              Create a draft (interactive)")
	fmt.Fprintln(w, "  /show <id>                       Show a document with its lines")
	fmt.Fprintln(w, "  /validate <id>                   Run pre-posting checks")
	fmt.Fprintln(w, "  /post <id> [--date YYYY-MM-DD]   Post to the ledger")
	fmt.Fprintln(w, "  /ledger <id>                     Ledger entries written by a document")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  STOCK")
	fmt.Fprintln(w, "  /balances [--warehouse N] [--item N]")
	fmt.Fprintln(w, "  /avg-cost --item N [--warehouse N]")
	fmt.Fprintln(w, "  /total-value [--warehouse N]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  POLICIES")
	fmt.Fprintln(w, "  /policy get <name> [flags]")
	fmt.Fprintln(w, "  /policy set <name> <true|false> --scope <scope> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  SESSION")
	fmt.Fprintln(w, "  /help                            Show this help")
	fmt.Fprintln(w, "  /exit                            Exit")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Document types: %s\n", strings.Join(docTypeNames(), ", "))
	fmt.Fprintln(w, strings.Repeat("=", 66))
}

func docTypeNames() []string {
	names := make([]string, len(core.AllDocumentTypes))
	for i, t := range core.AllDocumentTypes {
		names[i] = string(t)
	}
	return names
}
