package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memsync/layout"
)

var writeCmd = &cobra.Command{
	Use:   "write <path> <value>",
	Short: "Write one field of a record.",
	Long: `Writes a value to the field at a dotted path and polls it once to ` +
		`confirm. Integers accept 0x prefixes, enums accept their names and ` +
		`vectors are given as comma separated numbers.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, b, err := attach(cmd)
		if err != nil {
			return err
		}
		defer proc.Close()
		defer b.Dispose()

		c, err := b.Field(args[0])
		if err != nil {
			return err
		}

		v, err := layout.Parse(c.Field(), args[1])
		if err != nil {
			return err
		}

		old := c.Value()
		if err := c.Write(v); err != nil {
			return err
		}

		changed, err := c.Poll()
		if err != nil {
			return err
		}

		if changed {
			logger.Warnw("target overwrote the value", "field", args[0], "value", c.Value())
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v -> %v\t%s\n", args[0], old, c.Value(), c.State())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
