package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/codec"
)

var flagKind string

var decodeCmd = &cobra.Command{
	Use:   "decode <account>",
	Short: "Fetch and decode one account",
	Long: "Fetch a budget, expense or token-metadata account and print its fields.\n" +
		"Without --kind the record kind is identified from its discriminator.",
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&flagKind, "kind", "k", "", "Record kind: budget, expense, metadata")
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(_ *cobra.Command, args []string) error {
	acct, err := parseAddressArg("account", args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	raw, err := s.client.GetRawAccount(ctx, acct)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", acct, err)
	}

	if flagKind == "metadata" {
		md, err := codec.DecodeTokenMetadata(raw)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(md)
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title: "token metadata",
			Rows: [][]string{
				{"Mint", md.Mint.String()},
				{"Update authority", md.UpdateAuthority.String()},
				{"Name", md.Name},
				{"Symbol", md.Symbol},
				{"URI", md.URI},
			},
		}))
		return nil
	}

	c := recordCodec()
	var (
		rec  codec.Record
		tier codec.Tier
	)
	if flagKind == "" {
		rec, tier, err = c.DecodeAny(raw)
	} else {
		k, kerr := codec.ParseKind(flagKind)
		if kerr != nil {
			return kerr
		}
		rec, tier, err = c.Decode(k, raw)
	}
	if err != nil {
		return err
	}

	if flagJSON {
		out := map[string]any{"kind": rec.Kind.String(), "tier": tier.String(), "size": len(raw)}
		if d, ok := codec.DefaultRegistry.Primary(rec.Kind); ok {
			out["discriminator"] = hex.EncodeToString(d[:])
		}
		if rec.Kind == codec.KindBudget {
			out["record"] = rec.Budget
		} else {
			out["record"] = rec.Expense
		}
		return printJSON(out)
	}

	rows := [][]string{
		{"Kind", rec.Kind.String()},
		{"Decoded by", tier.String()},
		{"Size", strconv.Itoa(len(raw)) + " bytes"},
	}
	if d, ok := codec.DefaultRegistry.Primary(rec.Kind); ok {
		rows = append(rows, []string{"Discriminator", hex.EncodeToString(d[:])})
	}
	rows = append(rows, []string{"---"})
	switch rec.Kind {
	case codec.KindBudget:
		b := rec.Budget
		rows = append(rows,
			[]string{"Authority", b.Authority.String()},
			[]string{"Collection", b.Collection.String()},
			[]string{"Year", strconv.Itoa(int(b.Year))},
			[]string{"Expense count", strconv.FormatUint(uint64(b.ExpenseCount), 10)},
			[]string{"Bump", strconv.Itoa(int(b.Bump))},
		)
	case codec.KindExpense:
		e := rec.Expense
		rows = append(rows,
			[]string{"Budget", e.Budget.String()},
			[]string{"Mint", e.Mint.String()},
			[]string{"Type", e.ExpenseType},
			[]string{"Approved", cli.FormatAmount(e.ApprovedAmount)},
			[]string{"Spent (record)", cli.FormatAmount(e.SpentOnRecord)},
			[]string{"Variance", strconv.Itoa(int(e.VariancePct)) + "%"},
			[]string{"Bump", strconv.Itoa(int(e.Bump))},
		)
		if ata, _, err := address.AssociatedTokenAddress(acct, e.Mint); err == nil {
			rows = append(rows, []string{"Balance account", ata.String()})
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{Title: acct.String(), Rows: rows}))
	return nil
}
