package offsets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/remote"
)

// ErrInvalidWorld is wrapped by every error of LoadWorld.
var ErrInvalidWorld = errors.New("offsets: invalid world table")

// A Location is a pointer chain relative to the main module of the target.
// Every offset but the last selects a pointer to follow.
type Location []uint64

// At returns the resolver of the location in a module loaded at module.
func (l Location) At(module remote.Address) remote.Resolver {
	return remote.Chain(module, l...)
}

func (l Location) String() string {
	s := ""
	for i, off := range l {
		if i > 0 {
			s += " "
		}

		s += fmt.Sprintf("0x%x", off)
	}

	return "[" + s + "]"
}

// World locates the scene values that live outside actor records.
type World struct {
	Module remote.Address

	Time      Location
	Territory Location
	Weather   Location

	CameraAngle    Location
	CameraPan      Location
	CameraRotation Location
	CameraZoom     Location
	CameraMinZoom  Location
	CameraMaxZoom  Location
	CameraYMin     Location
	CameraYMax     Location
	CameraFov      Location
	CameraPosition Location
}

func (w *World) entries() map[string]*Location {
	return map[string]*Location{
		"time":            &w.Time,
		"territory":       &w.Territory,
		"weather":         &w.Weather,
		"camera_angle":    &w.CameraAngle,
		"camera_pan":      &w.CameraPan,
		"camera_rotation": &w.CameraRotation,
		"camera_zoom":     &w.CameraZoom,
		"camera_min_zoom": &w.CameraMinZoom,
		"camera_max_zoom": &w.CameraMaxZoom,
		"camera_y_min":    &w.CameraYMin,
		"camera_y_max":    &w.CameraYMax,
		"camera_fov":      &w.CameraFov,
		"camera_position": &w.CameraPosition,
	}
}

// Resolve returns the resolver of a location of the world table.
func (w *World) Resolve(l Location) remote.Resolver {
	return l.At(w.Module)
}

type worldDoc struct {
	Module    layout.Hex              `yaml:"module"`
	Locations map[string][]layout.Hex `yaml:"locations"`
}

// LoadWorldFile reads a world table from a YAML file.
func LoadWorldFile(path string) (*World, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadWorld(f)
}

// LoadWorld reads a world table:
//
//	module: 0x140000000
//	locations:
//	  time: [0x1D8A6E8, 0x1608]
//	  camera_zoom: [0x1D6C3A0, 0x114]
//
// Every location must be given and must have at least one offset.
func LoadWorld(r io.Reader) (*World, error) {
	doc := worldDoc{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorld, err)
	}

	w := &World{Module: remote.Address(doc.Module)}
	entries := w.entries()

	for name := range doc.Locations {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidWorld, name)
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		offs, ok := doc.Locations[name]
		if !ok || len(offs) == 0 {
			return nil, fmt.Errorf("%w: location %q is missing", ErrInvalidWorld, name)
		}

		loc := make(Location, len(offs))
		for i, off := range offs {
			loc[i] = uint64(off)
		}

		*entries[name] = loc
	}

	return w, nil
}
