package cmd

import (
	"context"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
)

// Addresses of the simulated actor.
const (
	demoActor     = 0x1000
	demoTransform = 0x4000
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Watch a simulated actor.",
	Long: `Runs watch against an actor living in a simulated address space. ` +
		`The actor walks in a circle and its model is unloaded from time to ` +
		`time, so both changes and faults show up. No process is needed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		storage := remote.NewStorage(1 << 20)
		defer storage.Close()

		sim := &demoTarget{storage: storage}
		sim.init()

		b, err := binder.Bind(storage, offsets.Actor, remote.Fixed(demoActor),
			binder.WithName("demo"))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go sim.run(ctx, 50*time.Millisecond)

		return watch(cmd, storage, b, 0)
	},
}

func init() {
	addWatchFlags(demoCmd)
	rootCmd.AddCommand(demoCmd)
}

// demoTarget plays the target process: it writes its own memory without
// going through cells.
type demoTarget struct {
	storage *remote.Storage
	step    int
}

func (t *demoTarget) init() {
	t.set(offsets.Actor, demoActor, "Name", "Demo Actor")
	t.set(offsets.Actor, demoActor, "ActorId", 0x10203)
	t.set(offsets.Actor, demoActor, "ObjectKind", 1)
	t.set(offsets.Actor, demoActor, "IsFriendly", true)
	t.set(offsets.Actor, demoActor, "MainHand.Set", 201)
	t.set(offsets.Actor, demoActor, "Customize.Height", 50)
	t.set(offsets.Actor, demoActor, "Transform", demoTransform-offsets.TransformDeref)
	t.set(offsets.Transform, demoTransform, "Scale", layout.Vector3{X: 1, Y: 1, Z: 1})
	t.set(offsets.Transform, demoTransform, "Rotation", layout.Quaternion{W: 1})
}

func (t *demoTarget) run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.advance()
		}
	}
}

func (t *demoTarget) advance() {
	t.step++

	angle := float64(t.step) / 20
	pos := layout.Vector3{
		X: float32(5 * math.Cos(angle)),
		Z: float32(5 * math.Sin(angle)),
	}

	t.set(offsets.Actor, demoActor, "Position", pos)
	t.set(offsets.Actor, demoActor, "Rotation", float32(math.Mod(angle, 2*math.Pi)))

	switch t.step % 200 {
	case 100:
		t.set(offsets.Actor, demoActor, "RenderMode", 2)
		t.storage.Unmap(demoTransform, int(offsets.Transform.Span()))
	case 0:
		t.storage.Remap()
		t.set(offsets.Actor, demoActor, "RenderMode", 0)
	}

	t.set(offsets.Transform, demoTransform, "Position", pos)
}

func (t *demoTarget) set(l *layout.Layout, base remote.Address, path string, v any) {
	f, off, err := l.Lookup(path)
	if err != nil {
		panic(err)
	}

	raw, err := layout.Encode(f, v, l.Order())
	if err != nil {
		panic(err)
	}

	if err := t.storage.Write(base.Add(off), raw); err != nil {
		logger.Debugw("demo target write failed", "field", path, "error", err)
	}
}
