package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tani/internal/core"
)

var numStrict bool

var numCmd = &cobra.Command{
	Use:   "num VALUE...",
	Short: "Parse amounts like the API does",
	Long: `num shows how typed amounts are read: "1.500.000" is one and a half
million, "2,5" is two and a half and "(1.500,25)" is negative. Unreadable
input becomes 0 unless --strict is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, a := range args {
			v := core.ToNum(a)
			if numStrict {
				var err error
				if v, err = core.ParseNum(a); err != nil {
					return fmt.Errorf("%q: %w", a, err)
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a, core.FormatDecimal(v, 4), core.FormatRupiah(v))
		}
		return tw.Flush()
	},
}

func init() {
	numCmd.Flags().BoolVar(&numStrict, "strict", false, "Fail on unreadable input instead of using 0")
}
