// Package tagmap resolves the configured signal addresses into an immutable
// map the poller walks every cycle. Resolution happens exactly once at
// startup; a tag whose address is missing or malformed resolves to nil and
// is never read.
package tagmap

import (
	"github.com/rs/zerolog/log"

	"github.com/plantops/pumpwatch/internal/config"
	"github.com/plantops/pumpwatch/internal/model"
)

type Map struct {
	// Home is nil when the home group is absent from configuration.
	Home     *model.HomeTags
	Pumps    []model.DeviceTags
	Chillers []model.DeviceTags
}

// New builds the tag map from validated configuration. Device order follows
// configuration order; duplicate ids collapse to the first occurrence.
func New(cfg *config.Config) *Map {
	m := &Map{}

	if cfg.Home != nil {
		m.Home = &model.HomeTags{
			KWH:   resolveReal(cfg.Home.KWH, nil),
			Level: resolveReal(cfg.Home.Level, nil),
			Temp:  resolveReal(cfg.Home.Temp, nil),
			Alarm: resolveBool(cfg.Home.Alarm, nil),
		}
	}

	m.Pumps = resolveDevices(cfg.Pumps, model.KindPump)
	m.Chillers = resolveDevices(cfg.Chillers, model.KindChiller)
	return m
}

// Devices returns pumps followed by chillers, in configuration order.
func (m *Map) Devices() []model.DeviceTags {
	out := make([]model.DeviceTags, 0, len(m.Pumps)+len(m.Chillers))
	out = append(out, m.Pumps...)
	out = append(out, m.Chillers...)
	return out
}

func (m *Map) DeviceIDs(kind model.DeviceKind) []string {
	var src []model.DeviceTags
	switch kind {
	case model.KindPump:
		src = m.Pumps
	case model.KindChiller:
		src = m.Chillers
	}
	ids := make([]string, 0, len(src))
	for _, d := range src {
		ids = append(ids, d.ID)
	}
	return ids
}

func resolveDevices(entries []config.DeviceConfig, kind model.DeviceKind) []model.DeviceTags {
	seen := make(map[string]bool, len(entries))
	out := make([]model.DeviceTags, 0, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			log.Warn().Str("device", e.ID).Msg("Duplicate device id in config, keeping first entry")
			continue
		}
		seen[e.ID] = true

		label := e.Label
		if label == "" {
			label = e.ID
		}
		d := model.DeviceTags{
			ID:      e.ID,
			Kind:    kind,
			Label:   label,
			Ready:   resolveBool(e.Ready, e.DB),
			Running: resolveBool(e.Running, e.DB),
			Trip:    resolveBool(e.Trip, e.DB),
		}
		if kind == model.KindPump {
			d.Pressure = resolveReal(e.Pressure, e.DB)
			d.Speed = resolveReal(e.Speed, e.DB)
		}
		out = append(out, d)
	}
	return out
}

// resolveReal returns nil unless the address is fully formed: a usable
// block (own or inherited) and a non-negative offset.
func resolveReal(a *config.RealAddr, inheritDB *int) *model.RealTag {
	if a == nil || a.Offset == nil || *a.Offset < 0 {
		return nil
	}
	block := pickBlock(a.DB, inheritDB)
	if block < 0 {
		return nil
	}
	return &model.RealTag{Block: block, Offset: *a.Offset}
}

func resolveBool(a *config.BoolAddr, inheritDB *int) *model.BoolTag {
	if a == nil || a.Byte == nil || a.Bit == nil || *a.Byte < 0 || *a.Bit < 0 || *a.Bit > 7 {
		return nil
	}
	block := pickBlock(a.DB, inheritDB)
	if block < 0 {
		return nil
	}
	return &model.BoolTag{Block: block, Offset: *a.Byte, Bit: *a.Bit}
}

func pickBlock(own, inherited *int) int {
	if own != nil {
		return *own
	}
	if inherited != nil {
		return *inherited
	}
	return -1
}
