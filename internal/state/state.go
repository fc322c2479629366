// Package state holds the latest known value of every signal. One writer
// (the poller) merges updates in, any number of readers take snapshots.
// Critical sections only copy memory; no I/O ever happens under the lock.
package state

import (
	"fmt"
	"sync"

	"github.com/plantops/pumpwatch/internal/model"
)

// Placeholder shown for every value before the first successful read.
const Placeholder = "--"

// ReadErrorMarker replaces the home timestamp when a poll cycle dies on a
// session-level fault.
const ReadErrorMarker = "PLC read error"

type HomeState struct {
	KWH   string `json:"kwh"`
	Level string `json:"level"`
	Temp  string `json:"temp"`
	Alarm bool   `json:"alarm"`
	TS    string `json:"ts"`
}

type DeviceState struct {
	ID       string           `json:"id"`
	Kind     model.DeviceKind `json:"kind"`
	Label    string           `json:"label"`
	Ready    bool             `json:"ready"`
	Running  bool             `json:"running"`
	Trip     bool             `json:"trip"`
	Pressure float64          `json:"pressure"`
	Speed    float64          `json:"speed"`
	TS       string           `json:"ts"`
}

type Snapshot struct {
	Home     HomeState     `json:"home"`
	Pumps    []DeviceState `json:"pumps"`
	Chillers []DeviceState `json:"chillers"`
}

type Store struct {
	mu           sync.RWMutex
	home         HomeState
	devices      map[string]*DeviceState
	pumpOrder    []string
	chillerOrder []string
}

// New seeds the store with placeholder state for every configured device.
// Devices are never added or removed after this.
func New(pumps, chillers []model.DeviceTags) *Store {
	s := &Store{
		home:    HomeState{KWH: Placeholder, Level: Placeholder, Temp: Placeholder, TS: Placeholder},
		devices: make(map[string]*DeviceState, len(pumps)+len(chillers)),
	}
	for _, d := range pumps {
		s.devices[d.ID] = &DeviceState{ID: d.ID, Kind: d.Kind, Label: d.Label, TS: Placeholder}
		s.pumpOrder = append(s.pumpOrder, d.ID)
	}
	for _, d := range chillers {
		s.devices[d.ID] = &DeviceState{ID: d.ID, Kind: d.Kind, Label: d.Label, TS: Placeholder}
		s.chillerOrder = append(s.chillerOrder, d.ID)
	}
	return s
}

// ApplyHome merges one home read pass into the store. Nil update fields are
// no-ops. Formatting to display precision happens here, at the store
// boundary: 2 decimals for energy and level, 1 for temperature.
func (s *Store) ApplyHome(u model.HomeUpdate, ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.KWH != nil {
		s.home.KWH = fmt.Sprintf("%.2f", *u.KWH)
	}
	if u.Level != nil {
		s.home.Level = fmt.Sprintf("%.2f", *u.Level)
	}
	if u.Temp != nil {
		s.home.Temp = fmt.Sprintf("%.1f", *u.Temp)
	}
	if u.Alarm != nil {
		s.home.Alarm = *u.Alarm
	}
	s.home.TS = ts
}

// SetHomeReadError stamps the read-error marker without disturbing the last
// known values.
func (s *Store) SetHomeReadError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home.TS = ReadErrorMarker
}

// ApplyDevice merges one device read pass and returns the resulting state.
// Nil update fields leave the prior value untouched, so a failed read never
// overwrites a good one. The returned copy is what the caller should
// persist for this cycle.
func (s *Store) ApplyDevice(id string, u model.DeviceUpdate, ts string) (DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return DeviceState{}, false
	}
	if u.Ready != nil {
		d.Ready = *u.Ready
	}
	if u.Running != nil {
		d.Running = *u.Running
	}
	if u.Trip != nil {
		d.Trip = *u.Trip
	}
	if u.Pressure != nil {
		d.Pressure = *u.Pressure
	}
	if u.Speed != nil {
		d.Speed = *u.Speed
	}
	d.TS = ts
	return *d, true
}

func (s *Store) Home() HomeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home
}

func (s *Store) Device(id string) (DeviceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return DeviceState{}, false
	}
	return *d, true
}

// DeviceIDs returns ids in stable configuration order.
func (s *Store) DeviceIDs(kind model.DeviceKind) []string {
	var order []string
	switch kind {
	case model.KindPump:
		order = s.pumpOrder
	case model.KindChiller:
		order = s.chillerOrder
	}
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Snapshot returns a consistent copy of the full state. Updates applied
// after Snapshot returns are not visible in the copy.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Home:     s.home,
		Pumps:    make([]DeviceState, 0, len(s.pumpOrder)),
		Chillers: make([]DeviceState, 0, len(s.chillerOrder)),
	}
	for _, id := range s.pumpOrder {
		snap.Pumps = append(snap.Pumps, *s.devices[id])
	}
	for _, id := range s.chillerOrder {
		snap.Chillers = append(snap.Chillers, *s.devices[id])
	}
	return snap
}
