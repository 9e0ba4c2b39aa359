package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memsync/recording"
)

var journalCmd = &cobra.Command{
	Use:   "journal [file]",
	Short: "Print what a recorded journal holds.",
	Long: `Reads a journal written by watch or demo with --record and prints ` +
		`its field changes, access faults or tick summaries. The file ` +
		`defaults to the configured journal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := journalFile(args)
		if err != nil {
			return err
		}

		r, err := recording.OpenJournal(file)
		if err != nil {
			return err
		}
		defer r.Close()

		flags := cmd.Flags()
		out := cmd.OutOrStdout()

		if list, _ := flags.GetBool("sessions"); list {
			sessions, err := r.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			for _, s := range sessions {
				fmt.Fprintln(out, s)
			}

			return nil
		}

		f := journalFilter(cmd)

		switch {
		case flagSet(cmd, "faults"):
			faults, total, err := r.Faults(cmd.Context(), f)
			if err != nil {
				return err
			}

			return printFaults(out, faults, total)
		case flagSet(cmd, "summary"):
			ticks, total, err := r.Ticks(cmd.Context(), f)
			if err != nil {
				return err
			}

			return printTicks(out, ticks, total)
		default:
			changes, total, err := r.Changes(cmd.Context(), f)
			if err != nil {
				return err
			}

			return printChanges(out, changes, total)
		}
	},
}

func init() {
	f := journalCmd.Flags()
	f.String("session", "", "only show this session")
	f.String("binder", "", "only show this record")
	f.String("path", "", "only show this field and the fields below it")
	f.Uint64("from", 0, "the first tick to show")
	f.Uint64("to", 0, "the last tick to show, 0 for no limit")
	f.Int("limit", 0, "show at most that many entries, 0 for no limit")
	f.Int("offset", 0, "skip that many entries")
	f.Bool("faults", false, "show access faults instead of changes")
	f.Bool("summary", false, "show tick summaries instead of changes")
	f.Bool("sessions", false, "list the recorded sessions")

	rootCmd.AddCommand(journalCmd)
}

// journalFile names the journal to read. Recorders append ".sqlite3" to the
// configured path.
func journalFile(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if cfg.Record == "" {
		return "", errors.New("no journal, give a file or set --record")
	}

	return cfg.Record + ".sqlite3", nil
}

func flagSet(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func journalFilter(cmd *cobra.Command) recording.Filter {
	flags := cmd.Flags()

	var f recording.Filter
	f.Session, _ = flags.GetString("session")
	f.Binder, _ = flags.GetString("binder")
	f.Path, _ = flags.GetString("path")
	f.FromTick, _ = flags.GetUint64("from")
	f.ToTick, _ = flags.GetUint64("to")
	f.Limit, _ = flags.GetInt("limit")
	f.Offset, _ = flags.GetInt("offset")

	return f
}

func printChanges(w io.Writer, changes []recording.ChangeEntry, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTICK\tRECORD\tPATH\tOLD\tNEW\tSOURCE")

	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Session, c.Tick, c.Binder, c.Path, c.Old, c.New, c.Source)
	}

	fmt.Fprintf(tw, "%d of %d changes\n", len(changes), total)

	return tw.Flush()
}

func printFaults(w io.Writer, faults []recording.FaultEntry, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTICK\tRECORD\tPATH\tERROR")

	for _, f := range faults {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			f.Session, f.Tick, f.Binder, f.Path, f.Error)
	}

	fmt.Fprintf(tw, "%d of %d faults\n", len(faults), total)

	return tw.Flush()
}

func printTicks(w io.Writer, ticks []recording.TickEntry, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTICK\tCHANGED\tFAULTS\tDROPPED\tDISPOSED")

	for _, t := range ticks {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			t.Session, t.Tick, t.Changed, t.Faults, t.Dropped, t.Disposed)
	}

	fmt.Fprintf(tw, "%d of %d ticks\n", len(ticks), total)

	return tw.Flush()
}
