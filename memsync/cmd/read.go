package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/remote"
)

var readCmd = &cobra.Command{
	Use:   "read [path...]",
	Short: "Print the fields of a record once.",
	Long: `Binds the layout at the base address and prints every field, or ` +
		`only the given dotted paths.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, b, err := attach(cmd)
		if err != nil {
			return err
		}
		defer proc.Close()
		defer b.Dispose()

		paths := args
		if len(paths) == 0 {
			paths = b.Paths()
		}

		return printFields(cmd.OutOrStdout(), b, paths)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}

// attach opens the target and binds the selected layout on it.
func attach(cmd *cobra.Command) (*remote.Process, *binder.Binder, error) {
	l, err := selectedLayout(cmd)
	if err != nil {
		return nil, nil, err
	}

	base, err := selectedBase(cmd)
	if err != nil {
		return nil, nil, err
	}

	proc, err := openTarget()
	if err != nil {
		return nil, nil, err
	}

	b, err := binder.Bind(proc, l, base)
	if err != nil {
		proc.Close()
		return nil, nil, err
	}

	return proc, b, nil
}

func printFields(w io.Writer, b *binder.Binder, paths []string) error {
	for _, p := range paths {
		c, err := b.Field(p)
		if err != nil {
			return err
		}

		if err := c.Err(); err != nil {
			fmt.Fprintf(w, "%s\t%s\t<%v>\n", p, c.State(), err)
			continue
		}

		fmt.Fprintf(w, "%s\t%s\t%v\n", p, c.State(), c.Value())
	}

	return nil
}
