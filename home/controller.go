// Package home drives the scene of the target while it is observed: the time
// of day, the weather and the camera.
package home

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/sarchlab/memsync/bus"
	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

// ErrNotObserving is returned by operations that need the observation mode.
var ErrNotObserving = errors.New("home: scene is not observed")

// Seconds per unit of the time cell.
const (
	secondsPerMoon   = 86400
	secondsPerMinute = 60
)

// Camera limits written by UnlockCamera.
const (
	unlockedMaxZoom = 1000
	lockedMaxZoom   = 20
	unlockedMinZoom = 0
	lockedMinZoom   = 1.75
	unlockedYMin    = 1.5
	lockedYMin      = 1.25
	unlockedYMax    = -1.5
	lockedYMax      = -1.4
)

func field(name string, kind layout.Kind, width int) layout.Field {
	return layout.Field{Name: name, Kind: kind, Width: width}
}

var (
	timeField      = field("Time", layout.KindInt, 4)
	territoryField = field("Territory", layout.KindInt, 4)
	weatherField   = field("Weather", layout.KindUint, 2)
	vector2Field   = field("Vector2", layout.KindVector2, 8)
	vector3Field   = field("Vector3", layout.KindVector3, 12)
	floatField     = field("Float", layout.KindFloat, 4)
)

func open[T any](
	acc remote.Accessor,
	w *offsets.World,
	loc offsets.Location,
	f layout.Field,
	name string,
) (*cell.Memory[T], error) {
	f.Name = name

	c, err := cell.New[T](acc, cell.Resolved(acc, w.Resolve(loc), 0), f)
	if err != nil {
		return nil, fmt.Errorf("home: open %s at %s: %w", name, loc, err)
	}

	return c, nil
}

type closer interface {
	Close()
}

// scene holds the cells that only live while the scene is observed.
type scene struct {
	cells *cell.Set
	links []closer
	time  *cell.Memory[int32]
	angle *cell.Memory[layout.Vector2]
}

// A Controller is the live state of the scene. It is a timing.Tickable.
type Controller struct {
	acc         remote.Accessor
	world       *offsets.World
	territories Territories

	always    *cell.Set
	territory *cell.Memory[int32]
	weather   *cell.Memory[uint16]

	mu             sync.Mutex
	scene          *scene
	time           int
	moon           int
	lockAngle      bool
	currentPlace   Territory
	hasPlace       bool
	currentWeather Weather
	hasWeather     bool
	lastErr        error

	cameraAngle    *bus.Value[layout.Vector2]
	cameraPan      *bus.Value[layout.Vector2]
	cameraRotation *bus.Value[float32]
	cameraZoom     *bus.Value[float32]
	cameraFov      *bus.Value[float32]
	cameraPosition *bus.Value[layout.Vector3]

	disposed atomic.Bool
}

// New opens the territory and weather of the scene and looks the current
// territory up.
func New(acc remote.Accessor, w *offsets.World, territories Territories) (*Controller, error) {
	c := &Controller{
		acc:            acc,
		world:          w,
		territories:    territories,
		always:         cell.NewSet(),
		cameraAngle:    bus.NewValue(layout.Vector2{}),
		cameraPan:      bus.NewValue(layout.Vector2{}),
		cameraRotation: bus.NewValue(float32(0)),
		cameraZoom:     bus.NewValue(float32(0)),
		cameraFov:      bus.NewValue(float32(0)),
		cameraPosition: bus.NewValue(layout.Vector3{}),
	}

	var err error

	c.territory, err = open[int32](acc, w, w.Territory, territoryField, "Territory")
	if err != nil {
		return nil, err
	}

	c.always.Add(c.territory)

	c.weather, err = open[uint16](acc, w, w.Weather, weatherField, "Weather")
	if err != nil {
		c.always.Dispose()
		return nil, err
	}

	c.always.Add(c.weather)

	c.territory.OnChange(func(cell.ChangeEvent[int32]) { c.refreshTerritory() })
	c.weather.OnChange(func(cell.ChangeEvent[uint16]) { c.refreshTerritory() })
	c.refreshTerritory()

	return c, nil
}

func (c *Controller) refreshTerritory() {
	t, ok := c.territories.Territory(c.territory.Value())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentPlace, c.hasPlace = t, ok
	c.currentWeather, c.hasWeather = Weather{}, false

	if ok {
		c.currentWeather, c.hasWeather = t.weather(c.weather.Value())
	}
}

// Territory returns the current territory, if it is known.
func (c *Controller) Territory() (Territory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.currentPlace, c.hasPlace
}

// Weather returns the forced weather, if it is one of the weathers of the
// current territory.
func (c *Controller) Weather() (Weather, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.currentWeather, c.hasWeather
}

// SetWeather forces w.
func (c *Controller) SetWeather(w Weather) error {
	if err := c.weather.Write(w.Value()); err != nil {
		return err
	}

	c.refreshTerritory()

	return nil
}

// Observing reports whether the scene is observed.
func (c *Controller) Observing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.scene != nil
}

// SetObserving enters or leaves the observation mode. Entering opens the
// time and camera cells and links the camera properties to them. Leaving
// resets the time override and disposes them.
func (c *Controller) SetObserving(on bool) error {
	if c.disposed.Load() {
		return cell.ErrDisposed
	}

	c.mu.Lock()
	current := c.scene
	c.mu.Unlock()

	switch {
	case on && current == nil:
		s, err := c.enter()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.scene = s
		c.mu.Unlock()
	case !on && current != nil:
		c.mu.Lock()
		c.scene = nil
		c.mu.Unlock()

		return c.leave(current)
	}

	return nil
}

func (c *Controller) enter() (_ *scene, err error) {
	w := c.world
	s := &scene{cells: cell.NewSet()}

	defer func() {
		if err != nil {
			closeLinks(s.links)
			s.cells.Dispose()
		}
	}()

	if s.time, err = open[int32](c.acc, w, w.Time, timeField, "Time"); err != nil {
		return nil, err
	}

	s.cells.Add(s.time)

	if s.angle, err = open[layout.Vector2](c.acc, w, w.CameraAngle, vector2Field, "CameraAngle"); err != nil {
		return nil, err
	}

	s.cells.Add(s.angle)
	c.cameraAngle.Set(s.angle.Value())
	s.angle.OnChange(c.onCameraAngle)

	pan, err := open[layout.Vector2](c.acc, w, w.CameraPan, vector2Field, "CameraPan")
	if err != nil {
		return nil, err
	}

	s.cells.Add(pan)
	s.links = append(s.links, bus.Link[layout.Vector2](pan, c.cameraPan, bus.TwoWay))

	floats := []struct {
		name string
		loc  offsets.Location
		prop *bus.Value[float32]
	}{
		{"CameraRotation", w.CameraRotation, c.cameraRotation},
		{"CameraZoom", w.CameraZoom, c.cameraZoom},
		{"CameraFov", w.CameraFov, c.cameraFov},
	}

	for _, f := range floats {
		m, err := open[float32](c.acc, w, f.loc, floatField, f.name)
		if err != nil {
			return nil, err
		}

		s.cells.Add(m)
		s.links = append(s.links, bus.Link[float32](m, f.prop, bus.TwoWay))
	}

	pos, err := open[layout.Vector3](c.acc, w, w.CameraPosition, vector3Field, "CameraPosition")
	if err != nil {
		return nil, err
	}

	s.cells.Add(pos)
	s.links = append(s.links, bus.Link[layout.Vector3](pos, c.cameraPosition, bus.TwoWay))

	return s, nil
}

func (c *Controller) leave(s *scene) error {
	err := s.time.Write(0)

	closeLinks(s.links)
	s.cells.Dispose()

	return err
}

func closeLinks(links []closer) {
	for _, l := range links {
		l.Close()
	}
}

// onCameraAngle applies the lock policy to a camera angle moved by the
// target: a locked angle is written back, an unlocked one is adopted.
func (c *Controller) onCameraAngle(e cell.ChangeEvent[layout.Vector2]) {
	if e.Source != cell.SourceRemote {
		return
	}

	c.mu.Lock()
	locked := c.lockAngle
	s := c.scene
	c.mu.Unlock()

	if !locked {
		c.cameraAngle.Set(e.New)
		return
	}

	if s == nil {
		return
	}

	if err := s.angle.Write(c.cameraAngle.Get()); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
	}
}

// Err returns the last failed write-back of a locked camera angle.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// LockCameraAngle makes the controller hold the camera angle against the
// target.
func (c *Controller) LockCameraAngle(lock bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lockAngle = lock
}

// CameraAngleLocked reports whether the camera angle is held.
func (c *Controller) CameraAngleLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lockAngle
}

// SetCameraAngle moves the camera.
func (c *Controller) SetCameraAngle(angle layout.Vector2) error {
	c.mu.Lock()
	s := c.scene
	c.mu.Unlock()

	if s == nil {
		return ErrNotObserving
	}

	c.cameraAngle.Set(angle)

	return s.angle.Write(angle)
}

// SetCameraAngleX moves the camera horizontally.
func (c *Controller) SetCameraAngleX(x float32) error {
	angle := c.cameraAngle.Get()
	angle.X = x

	return c.SetCameraAngle(angle)
}

// SetCameraAngleY moves the camera vertically.
func (c *Controller) SetCameraAngleY(y float32) error {
	angle := c.cameraAngle.Get()
	angle.Y = y

	return c.SetCameraAngle(angle)
}

// CameraAngle is the angle of the camera. Set it through SetCameraAngle so
// that the lock policy can see it.
func (c *Controller) CameraAngle() *bus.Value[layout.Vector2] { return c.cameraAngle }

// CameraPan is linked two-way to the camera pan while observing.
func (c *Controller) CameraPan() *bus.Value[layout.Vector2] { return c.cameraPan }

// CameraRotation is linked two-way to the camera rotation while observing.
func (c *Controller) CameraRotation() *bus.Value[float32] { return c.cameraRotation }

// CameraZoom is linked two-way to the current zoom while observing.
func (c *Controller) CameraZoom() *bus.Value[float32] { return c.cameraZoom }

// CameraFov is linked two-way to the field of view while observing.
func (c *Controller) CameraFov() *bus.Value[float32] { return c.cameraFov }

// CameraPosition is linked two-way to the camera position while observing.
func (c *Controller) CameraPosition() *bus.Value[layout.Vector3] { return c.cameraPosition }

// Time returns the overridden time of day in minutes.
func (c *Controller) Time() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.time
}

// Moon returns the overridden moon phase in days.
func (c *Controller) Moon() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.moon
}

// SetTime overrides the time of day, in minutes.
func (c *Controller) SetTime(minutes int) error {
	c.mu.Lock()
	c.time = minutes
	c.mu.Unlock()

	return c.writeTime()
}

// SetMoon overrides the moon phase, in days.
func (c *Controller) SetMoon(days int) error {
	c.mu.Lock()
	c.moon = days
	c.mu.Unlock()

	return c.writeTime()
}

func (c *Controller) writeTime() error {
	c.mu.Lock()
	s := c.scene
	v := c.moon*secondsPerMoon + c.time*secondsPerMinute
	c.mu.Unlock()

	if s == nil {
		return ErrNotObserving
	}

	return s.time.Write(int32(v))
}

// UnlockCamera widens or restores the zoom and pitch limits of the camera.
// The limits are written through cells that are disposed right away.
func (c *Controller) UnlockCamera(unlock bool) error {
	w := c.world
	limits := []struct {
		name             string
		loc              offsets.Location
		unlocked, locked float32
	}{
		{"CameraMaxZoom", w.CameraMaxZoom, unlockedMaxZoom, lockedMaxZoom},
		{"CameraMinZoom", w.CameraMinZoom, unlockedMinZoom, lockedMinZoom},
		{"CameraYMin", w.CameraYMin, unlockedYMin, lockedYMin},
		{"CameraYMax", w.CameraYMax, unlockedYMax, lockedYMax},
	}

	var err error

	for _, l := range limits {
		v := l.locked
		if unlock {
			v = l.unlocked
		}

		err = multierr.Append(err, c.writeOnce(l.name, l.loc, v))
	}

	return err
}

func (c *Controller) writeOnce(name string, loc offsets.Location, v float32) error {
	m, err := open[float32](c.acc, c.world, loc, floatField, name)
	if err != nil {
		return err
	}
	defer m.Dispose()

	return m.Write(v)
}

// Tick polls the territory and weather and, while observing, the time and
// the camera.
func (c *Controller) Tick() cell.TickResult {
	res := c.always.Tick()

	c.mu.Lock()
	s := c.scene
	c.mu.Unlock()

	if s != nil {
		res.Merge(s.cells.Tick())
	}

	return res
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	return c.disposed.Load()
}

// Dispose leaves the observation mode and closes every cell.
func (c *Controller) Dispose() {
	if c.disposed.Swap(true) {
		return
	}

	c.mu.Lock()
	s := c.scene
	c.scene = nil
	c.mu.Unlock()

	if s != nil {
		_ = c.leave(s)
	}

	c.always.Dispose()
}

var _ timing.Tickable = (*Controller)(nil)
