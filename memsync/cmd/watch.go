package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/home"
	"github.com/sarchlab/memsync/idgen"
	"github.com/sarchlab/memsync/logging"
	"github.com/sarchlab/memsync/monitoring"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/recording"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a record and report every change.",
	Long: `Binds the layout at the base address and polls it at the ` +
		`configured frequency until interrupted. Changes and faults are ` +
		`logged and, with --record, written to a journal.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		proc, b, err := attach(cmd)
		if err != nil {
			return err
		}
		defer proc.Close()

		return watch(cmd, proc, b, proc.PID())
	},
}

func init() {
	addWatchFlags(watchCmd)
	watchCmd.Flags().Bool("home", false, "also drive the scene described by --world")
	watchCmd.Flags().String("world", "", "the YAML world table used by --home")
	watchCmd.Flags().String("territories", "", "the YAML territory table used by --home")
	watchCmd.Flags().Bool("observe", false, "enter observation mode with --home")
	watchCmd.Flags().Bool("lock-camera", false, "hold the camera angle with --home")
	rootCmd.AddCommand(watchCmd)
}

func addWatchFlags(c *cobra.Command) {
	c.Flags().Uint64("ticks", 0, "stop after that many ticks, 0 runs until interrupted")
	c.Flags().Bool("open-monitor", false, "start the monitor and open it in a browser")
}

// watch ticks b until the command is interrupted, the tick limit is reached
// or nothing is left to tick.
func watch(cmd *cobra.Command, acc remote.Accessor, b *binder.Binder, pid int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group := timing.NewGroup(timing.WithFaultLimit(cfg.FaultLimit))
	defer group.Dispose()

	hook := logging.NewChangeLogger(logger)
	b.AcceptHook(hook)
	group.AcceptHook(hook)
	group.Add(b.Name(), b)

	if cfg.Record != "" {
		rec := recording.New(cfg.Record)
		defer rec.Close()

		journal := recording.NewJournal(rec, idgen.SessionID())
		b.AcceptHook(journal)
		group.AcceptHook(journal)
	}

	if err := addHome(cmd, acc, group); err != nil {
		return err
	}

	driver := timing.NewDriver(group, cfg.Freq)
	ticks, _ := cmd.Flags().GetUint64("ticks")

	var bar *monitoring.ProgressBar

	openMonitor, _ := cmd.Flags().GetBool("open-monitor")
	if cfg.MonitorPort != 0 || openMonitor {
		m := monitoring.NewMonitor().WithPortNumber(cfg.MonitorPort)
		m.RegisterDriver(driver)
		m.RegisterBinder(b)

		if pid > 0 {
			m.RegisterTarget(pid)
		}

		if ticks > 0 {
			bar = m.CreateProgressBar("watch "+b.Name(), ticks)
			defer m.CompleteProgressBar(bar)
		}

		url := m.StartServer()
		if openMonitor {
			if err := browser.OpenURL(url); err != nil {
				logger.Warnw("cannot open the monitor", "url", url, "error", err)
			}
		}
	}

	driver.OnReport(func(rep timing.Report) {
		if bar != nil {
			bar.IncrementFinished(1)
		}

		if group.Len() == 0 {
			logger.Warnw("nothing left to watch", "tick", rep.Tick)
			cancel()
		}

		if ticks > 0 && rep.Tick >= ticks {
			cancel()
		}
	})

	logger.Infow("watching", "binder", b.Name(), "freq", cfg.Freq, "fields", len(b.Paths()))

	err := driver.Run(ctx)
	logger.Infow("stopped", "ticks", group.Now())

	return err
}

// addHome adds a home controller to group when --home is set.
func addHome(cmd *cobra.Command, acc remote.Accessor, group *timing.Group) error {
	flags := cmd.Flags()
	if on, _ := flags.GetBool("home"); !on {
		return nil
	}

	worldFile, _ := flags.GetString("world")
	if worldFile == "" {
		return errors.New("--home needs --world")
	}

	world, err := offsets.LoadWorldFile(worldFile)
	if err != nil {
		return err
	}

	territories := home.TerritoryTable{}
	if f, _ := flags.GetString("territories"); f != "" {
		territories, err = home.LoadTerritoriesFile(f)
		if err != nil {
			return err
		}
	}

	c, err := home.New(acc, world, territories)
	if err != nil {
		return err
	}

	if t, ok := c.Territory(); ok {
		logger.Infow("scene", "territory", t.Title())
	}

	lock, _ := flags.GetBool("lock-camera")
	c.LockCameraAngle(lock)

	if observe, _ := flags.GetBool("observe"); observe {
		if err := c.SetObserving(true); err != nil {
			c.Dispose()
			return err
		}
	}

	group.Add("home", c)

	return nil
}
