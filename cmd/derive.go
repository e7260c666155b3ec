package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/config"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print derived account addresses",
}

var deriveBudgetCmd = &cobra.Command{
	Use:   "budget <collection>",
	Short: "Budget address of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		collection, err := parseAddressArg("collection", args[0])
		if err != nil {
			return err
		}
		d, err := programDeriver()
		if err != nil {
			return err
		}
		addr, bump, err := d.Budget(collection)
		if err != nil {
			return err
		}
		return printDerived("budget", addr, bump)
	},
}

var deriveExpenseCmd = &cobra.Command{
	Use:   "expense <collection> <index>",
	Short: "Expense address at an index of a collection's budget",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		collection, err := parseAddressArg("collection", args[0])
		if err != nil {
			return err
		}
		index, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		d, err := programDeriver()
		if err != nil {
			return err
		}
		addr, bump, err := d.Expense(collection, uint32(index))
		if err != nil {
			return err
		}
		return printDerived("expense", addr, bump)
	},
}

var deriveATACmd = &cobra.Command{
	Use:   "ata <owner> <mint>",
	Short: "Associated token account of owner for mint",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		owner, err := parseAddressArg("owner", args[0])
		if err != nil {
			return err
		}
		mint, err := parseAddressArg("mint", args[1])
		if err != nil {
			return err
		}
		addr, bump, err := address.AssociatedTokenAddress(owner, mint)
		if err != nil {
			return err
		}
		return printDerived("ata", addr, bump)
	},
}

var deriveMetadataCmd = &cobra.Command{
	Use:   "metadata <mint>",
	Short: "Token metadata and master edition accounts of a mint",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		mint, err := parseAddressArg("mint", args[0])
		if err != nil {
			return err
		}
		md, err := address.MetadataAddress(mint)
		if err != nil {
			return err
		}
		ed, err := address.MasterEditionAddress(mint)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]address.Address{"metadata": md, "edition": ed})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Headers: []string{"Account", "Address"},
			Rows:    [][]string{{"metadata", md.String()}, {"edition", ed.String()}},
		}))
		return nil
	},
}

func init() {
	deriveCmd.AddCommand(deriveBudgetCmd, deriveExpenseCmd, deriveATACmd, deriveMetadataCmd)
	rootCmd.AddCommand(deriveCmd)
}

func programDeriver() (*address.Deriver, error) {
	id, err := config.ProgramID(appCfg)
	if err != nil {
		return nil, err
	}
	return address.NewDeriver(id), nil
}

func printDerived(kind string, addr address.Address, bump uint8) error {
	if flagJSON {
		return printJSON(struct {
			Kind    string          `json:"kind"`
			Address address.Address `json:"address"`
			Bump    uint8           `json:"bump"`
		}{kind, addr, bump})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title: kind,
		Rows:  [][]string{{"Address", addr.String()}, {"Bump", strconv.Itoa(int(bump))}},
	}))
	return nil
}
