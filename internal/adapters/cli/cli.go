package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

// Run executes a one-shot CLI command. args is os.Args[1:].
func Run(ctx context.Context, svc app.ApplicationService, sess core.Session, args []string) error {
	root := NewRootCommand(svc, sess)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type commands struct {
	svc     app.ApplicationService
	sess    core.Session
	jsonOut bool
}

// NewRootCommand builds the command tree bound to svc, acting as sess.
func NewRootCommand(svc app.ApplicationService, sess core.Session) *cobra.Command {
	c := &commands{svc: svc, sess: sess}

	root := &cobra.Command{
		Use:           "app",
		Short:         "Inventory ledger: post movement documents and query stock valuation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		c.createCmd(),
		c.postCmd(),
		c.validateCmd(),
		c.ledgerCmd(),
		c.balancesCmd(),
		c.avgCostCmd(),
		c.totalValueCmd(),
		c.policyCmd(),
	)
	return root
}

func docIDArg(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("document id must be a positive integer, got %q", s)
	}
	return id, nil
}

// optInt returns nil for the zero value so unset flags mean "any".
func optInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func (c *commands) emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *commands) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a draft document from JSON on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req app.CreateDocumentRequest
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}
			result, err := c.svc.CreateDraftDocument(cmd.Context(), c.sess, req)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result.Document)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Draft %s document %d created with %d line(s).\n",
				result.Document.Type, result.Document.ID, len(result.Document.Lines))
			return nil
		},
	}
}

func (c *commands) postCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "post <document-id>",
		Short: "Post a document to the inventory ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := docIDArg(args[0])
			if err != nil {
				return err
			}
			result, err := c.svc.PostDocument(cmd.Context(), c.sess, app.PostDocumentRequest{DocumentID: id, PostingDate: date})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %s %s on %s: %d ledger entries.\n",
				result.DocType, result.Number, result.PostingDate.Format("2006-01-02"), result.Entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "posting date YYYY-MM-DD (default today)")
	return cmd
}

func (c *commands) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document-id>",
		Short: "Run pre-posting checks without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := docIDArg(args[0])
			if err != nil {
				return err
			}
			result, err := c.svc.ValidateDocument(cmd.Context(), c.sess, id)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			if !result.Valid {
				return result.Error
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document %d is valid.\n", id)
			return nil
		},
	}
}

func (c *commands) ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <document-id>",
		Short: "List ledger entries written by a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := docIDArg(args[0])
			if err != nil {
				return err
			}
			result, err := c.svc.ListLedger(cmd.Context(), c.sess, id)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			printLedger(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func (c *commands) balancesCmd() *cobra.Command {
	var warehouse, item, lot int
	cmd := &cobra.Command{
		Use:     "balances",
		Aliases: []string{"bal"},
		Short:   "List stock balances",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wh := optInt(warehouse)
			if wh == nil {
				wh = c.sess.WarehouseID
			}
			result, err := c.svc.ListBalances(cmd.Context(), c.sess, app.BalanceFilter{
				WarehouseID: wh,
				ItemID:      optInt(item),
				LotID:       optInt(lot),
			})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			printBalances(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVar(&warehouse, "warehouse", 0, "warehouse id (default session warehouse)")
	cmd.Flags().IntVar(&item, "item", 0, "item id")
	cmd.Flags().IntVar(&lot, "lot", 0, "lot id")
	return cmd
}

func (c *commands) avgCostCmd() *cobra.Command {
	var warehouse, item, lot int
	cmd := &cobra.Command{
		Use:   "avg-cost",
		Short: "Show the moving-average unit cost of an item in a warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if warehouse == 0 && c.sess.WarehouseID != nil {
				warehouse = *c.sess.WarehouseID
			}
			result, err := c.svc.AverageCost(cmd.Context(), c.sess, app.AverageCostRequest{
				WarehouseID: warehouse,
				ItemID:      item,
				LotID:       optInt(lot),
			})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %d in warehouse %d: average cost %s\n",
				result.ItemID, result.WarehouseID, result.AvgCost.StringFixed(4))
			return nil
		},
	}
	cmd.Flags().IntVar(&warehouse, "warehouse", 0, "warehouse id (default session warehouse)")
	cmd.Flags().IntVar(&item, "item", 0, "item id")
	cmd.Flags().IntVar(&lot, "lot", 0, "lot id")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func (c *commands) totalValueCmd() *cobra.Command {
	var warehouse int
	cmd := &cobra.Command{
		Use:   "total-value",
		Short: "Show on-hand inventory value for the company or one warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.svc.TotalValue(cmd.Context(), c.sess, optInt(warehouse))
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			scope := "all warehouses"
			if result.WarehouseID != nil {
				scope = fmt.Sprintf("warehouse %d", *result.WarehouseID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total value (%s): %s\n", scope, result.Value.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().IntVar(&warehouse, "warehouse", 0, "warehouse id (default all)")
	return cmd
}

func (c *commands) policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Resolve or configure business policies",
	}

	var warehouse, category, item int
	var docType string
	selector := func(f interface {
		IntVar(*int, string, int, string)
		StringVar(*string, string, string, string)
	}) {
		f.IntVar(&warehouse, "warehouse", 0, "warehouse id")
		f.IntVar(&category, "category", 0, "item category id")
		f.IntVar(&item, "item", 0, "item id")
		f.StringVar(&docType, "doc-type", "", "document type, e.g. ISSUE")
	}
	parseDocType := func() (*core.DocumentType, error) {
		if docType == "" {
			return nil, nil
		}
		dt := core.DocumentType(strings.ToUpper(docType))
		if !dt.Valid() {
			return nil, fmt.Errorf("unknown document type %q", docType)
		}
		return &dt, nil
	}

	get := &cobra.Command{
		Use:   "get <name>",
		Short: "Resolve a policy, most specific scope first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDocType()
			if err != nil {
				return err
			}
			wh := optInt(warehouse)
			if wh == nil {
				wh = c.sess.WarehouseID
			}
			result, err := c.svc.ResolvePolicy(cmd.Context(), c.sess, app.ResolvePolicyRequest{
				Name:        strings.ToUpper(args[0]),
				WarehouseID: wh,
				DocType:     dt,
				CategoryID:  optInt(category),
				ItemID:      optInt(item),
			})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %t\n", result.Name, result.Value)
			return nil
		},
	}
	selector(get.Flags())

	var scope string
	set := &cobra.Command{
		Use:   "set <name> <true|false>",
		Short: "Create or replace a policy at one scope",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("policy value must be true or false, got %q", args[1])
			}
			dt, err := parseDocType()
			if err != nil {
				return err
			}
			p, err := c.svc.SetPolicy(cmd.Context(), c.sess, app.SetPolicyRequest{
				Scope:       core.PolicyScope(strings.ToUpper(scope)),
				WarehouseID: optInt(warehouse),
				DocType:     dt,
				CategoryID:  optInt(category),
				ItemID:      optInt(item),
				Name:        args[0],
				Value:       value,
			})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.emitJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %t at %s scope.\n", p.Name, p.Value, p.Scope)
			return nil
		},
	}
	set.Flags().StringVar(&scope, "scope", string(core.ScopeCompany), "GLOBAL, COMPANY, WAREHOUSE, DOCTYPE, CATEGORY or ITEM")
	selector(set.Flags())

	cmd.AddCommand(get, set)
	return cmd
}

func printLedger(w io.Writer, result *app.LedgerResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  LEDGER  document %d\n", result.DocumentID)
	fmt.Fprintln(w, strings.Repeat("=", 86))
	fmt.Fprintf(w, "  %-4s %-4s %-6s %12s %12s %12s %14s %14s\n", "LINE", "WH", "ITEM", "QTY IN", "QTY OUT", "UNIT COST", "VALUE IN", "VALUE OUT")
	fmt.Fprintln(w, strings.Repeat("-", 86))
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  %-4d %-4d %-6d %12s %12s %12s %14s %14s\n",
			e.LineNo, e.WarehouseID, e.ItemID,
			e.QtyIn.StringFixed(4), e.QtyOut.StringFixed(4), e.UnitCost.StringFixed(4),
			e.ValueIn.StringFixed(2), e.ValueOut.StringFixed(2))
	}
	fmt.Fprintln(w, strings.Repeat("=", 86))
}

func printBalances(w io.Writer, result *app.BalanceListResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  STOCK BALANCES  company %d\n", result.CompanyID)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %-4s %-6s %-6s %-6s %14s %12s %14s\n", "WH", "ITEM", "LOC", "LOT", "ON HAND", "AVG COST", "VALUE")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, b := range result.Balances {
		fmt.Fprintf(w, "  %-4d %-6d %-6s %-6s %14s %12s %14s\n",
			b.WarehouseID, b.ItemID, ref(b.LocationID), ref(b.LotID),
			b.OnHandQty.StringFixed(4), b.AvgCost.StringFixed(4), b.OnHandValue.StringFixed(2))
	}
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintf(w, "  %-30s %14s %12s %14s\n", "TOTAL", result.TotalQty.StringFixed(4), "", result.Total.StringFixed(2))
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func ref(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
