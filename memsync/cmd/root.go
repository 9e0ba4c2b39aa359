// Package cmd provides the command-line interface of memsync.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/memsync/config"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/logging"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

var (
	cfg    = config.Default()
	logger = logging.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "memsync",
	Short: "memsync mirrors records of another process's memory.",
	Long: `memsync binds record layouts to the memory of a running process, ` +
		`polls them at a fixed frequency and reports every change. Values ` +
		`can be written back and are confirmed on the next poll.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringSlice("env", nil, "the .env files to load, defaults to ./.env")
	f.Int("pid", 0, "the target process")
	f.String("schema", "", "a YAML layout schema; built-in layouts are used if empty")
	f.String("layout", offsets.Actor.Name(), "the layout to bind")
	f.String("base", "", "the record address, as an address followed by "+
		"a comma separated pointer chain, e.g. 0x1400000,0x10,0x8")
	f.String("freq", "", "the tick frequency, e.g. 30Hz")
	f.String("record", "", "the SQLite journal to record changes to")
	f.Int("monitor-port", 0, "the port of the HTTP monitor")
	f.String("log-level", "", "debug, info, warn or error")
	f.Duration("timeout", 0, "the time limit of one access to the target")
	f.Int("fault-limit", 0, "dispose a record after that many faulted ticks")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadSettings reads the configuration and applies the flags given on the
// command line on top of it.
func loadSettings(cmd *cobra.Command, _ []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	c, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("pid") {
		c.PID, _ = flags.GetInt("pid")
	}

	if flags.Changed("schema") {
		c.Schema, _ = flags.GetString("schema")
	}

	if flags.Changed("freq") {
		s, _ := flags.GetString("freq")

		c.Freq, err = timing.ParseFreq(s)
		if err != nil {
			return fmt.Errorf("%w: --freq: %v", config.ErrInvalid, err)
		}
	}

	if flags.Changed("record") {
		c.Record, _ = flags.GetString("record")
	}

	if flags.Changed("monitor-port") {
		c.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}

	if flags.Changed("timeout") {
		c.Timeout, _ = flags.GetDuration("timeout")
	}

	if flags.Changed("fault-limit") {
		c.FaultLimit, _ = flags.GetInt("fault-limit")
	}

	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	cfg, logger = c, l
	atexit.Register(func() { _ = logger.Sync() })

	return nil
}

// selectedLayout returns the layout named by --layout, from the schema if
// one is configured.
func selectedLayout(cmd *cobra.Command) (*layout.Layout, error) {
	name, _ := cmd.Flags().GetString("layout")

	if cfg.Schema == "" {
		l, ok := offsets.Layouts()[name]
		if !ok {
			return nil, fmt.Errorf("no built-in layout %q", name)
		}

		return l, nil
	}

	schema, err := layout.LoadSchemaFile(cfg.Schema)
	if err != nil {
		return nil, err
	}

	l, ok := schema.Layout(name)
	if !ok {
		return nil, fmt.Errorf("schema %s has no layout %q, it has %s",
			cfg.Schema, name, strings.Join(schema.Names(), ", "))
	}

	return l, nil
}

// selectedBase parses --base.
func selectedBase(cmd *cobra.Command) (remote.Resolver, error) {
	s, _ := cmd.Flags().GetString("base")
	if s == "" {
		return nil, errors.New("--base is required")
	}

	return parseBase(s)
}

func parseBase(s string) (remote.Resolver, error) {
	parts := strings.Split(s, ",")
	numbers := make([]uint64, len(parts))

	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("--base: %q is not a number", p)
		}

		numbers[i] = n
	}

	if len(numbers) == 1 {
		return remote.Fixed(numbers[0]), nil
	}

	return remote.Chain(remote.Address(numbers[0]), numbers[1:]...), nil
}

// openTarget opens the configured process.
func openTarget() (*remote.Process, error) {
	if cfg.PID == 0 {
		return nil, fmt.Errorf("no target, set --pid or %s", config.EnvPID)
	}

	return remote.OpenProcess(cfg.PID, remote.WithTimeout(cfg.Timeout))
}
