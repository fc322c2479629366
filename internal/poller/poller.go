// Package poller drives the acquisition loop: a two-state machine
// (disconnected, connected) that reads every configured tag group each
// cycle, merges the results into the live state store, appends history
// rows, and detects trip rising edges. The poller is the fault-containment
// boundary for the whole acquisition side: nothing below it is allowed to
// take the process down.
package poller

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plantops/pumpwatch/internal/datadog"
	"github.com/plantops/pumpwatch/internal/model"
	"github.com/plantops/pumpwatch/internal/notifications"
	"github.com/plantops/pumpwatch/internal/plc"
	"github.com/plantops/pumpwatch/internal/state"
	"github.com/plantops/pumpwatch/internal/tagmap"
)

// Layout for the human-facing state timestamps.
const stateTSLayout = "02/01/2006 15:04:05"

// Recorder is the append surface of the history store. Append failures are
// logged and counted but never interrupt the loop.
type Recorder interface {
	AppendSample(model.Sample) error
	AppendEvent(model.Event) error
}

type Poller struct {
	reader   plc.Reader
	tags     *tagmap.Map
	state    *state.Store
	recorder Recorder
	interval time.Duration
	edges    *edgeDetector
	now      func() time.Time
}

func New(reader plc.Reader, tags *tagmap.Map, st *state.Store, recorder Recorder, interval time.Duration) *Poller {
	var ids []string
	for _, d := range tags.Devices() {
		ids = append(ids, d.ID)
	}
	return &Poller{
		reader:   reader,
		tags:     tags,
		state:    st,
		recorder: recorder,
		interval: interval,
		edges:    newEdgeDetector(ids),
		now:      time.Now,
	}
}

// Run executes the polling state machine until ctx is cancelled.
// Disconnected: retry connect every interval, forever. Connected: run one
// full cycle, then sleep the interval; a session-level fault drops the
// connection, stamps the read-error marker, and goes back to retrying.
// A successful connect rolls straight into a cycle without waiting.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Starting poller")
	connected := false

	defer func() {
		if connected {
			p.reader.Disconnect()
		}
		log.Info().Msg("Poller stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if !connected {
			if err := p.reader.Connect(); err != nil {
				log.Warn().Err(err).Msg("PLC connect failed, will retry")
				datadog.Count("plc.connect_failures", 1)
				if !p.sleep(ctx) {
					return
				}
				continue
			}
			connected = true
			datadog.Count("plc.connects", 1)
		}

		if err := p.cycle(); err != nil {
			log.Warn().Err(err).Msg("Poll cycle failed, dropping PLC session")
			p.reader.Disconnect()
			connected = false
			p.state.SetHomeReadError()
			datadog.Count("plc.disconnects", 1)
		}

		if !p.sleep(ctx) {
			return
		}
	}
}

// sleep waits one poll interval, returning false if ctx was cancelled.
func (p *Poller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cycle performs one full pass: home tags, then each pump, then each
// chiller, in configuration order. The returned error is non-nil only for
// session-level faults; per-tag failures are absorbed as "no value".
func (p *Poller) cycle() error {
	start := time.Now()
	defer func() {
		datadog.Gauge("poller.cycle_duration_ms", float64(time.Since(start).Milliseconds()))
	}()

	if err := p.pollHome(); err != nil {
		return fmt.Errorf("home tags: %w", err)
	}
	for _, d := range p.tags.Devices() {
		if err := p.pollDevice(d); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
	}
	return nil
}

func (p *Poller) pollHome() error {
	h := p.tags.Home
	if h == nil {
		return nil
	}

	var u model.HomeUpdate
	var err error
	if u.KWH, err = p.readReal(h.KWH); err != nil {
		return err
	}
	if u.Level, err = p.readReal(h.Level); err != nil {
		return err
	}
	if u.Temp, err = p.readReal(h.Temp); err != nil {
		return err
	}
	if u.Alarm, err = p.readBool(h.Alarm); err != nil {
		return err
	}
	p.state.ApplyHome(u, p.now().Format(stateTSLayout))
	return nil
}

func (p *Poller) pollDevice(d model.DeviceTags) error {
	var u model.DeviceUpdate
	var err error
	if u.Ready, err = p.readBool(d.Ready); err != nil {
		return err
	}
	if u.Running, err = p.readBool(d.Running); err != nil {
		return err
	}
	if u.Trip, err = p.readBool(d.Trip); err != nil {
		return err
	}
	if u.Pressure, err = p.readReal(d.Pressure); err != nil {
		return err
	}
	if u.Speed, err = p.readReal(d.Speed); err != nil {
		return err
	}
	u.Pressure = round2(u.Pressure)
	u.Speed = round2(u.Speed)

	now := p.now()
	st, ok := p.state.ApplyDevice(d.ID, u, now.Format(stateTSLayout))
	if !ok {
		return nil
	}

	// The sample records whatever the merged state now holds, carried-over
	// values included.
	sample := model.Sample{
		TS:       now,
		DeviceID: d.ID,
		Ready:    st.Ready,
		Running:  st.Running,
		Trip:     st.Trip,
	}
	if d.Pressure != nil {
		v := st.Pressure
		sample.Pressure = &v
	}
	if d.Speed != nil {
		v := st.Speed
		sample.Speed = &v
	}
	if err := p.recorder.AppendSample(sample); err != nil {
		log.Warn().Err(err).Str("device", d.ID).Msg("Failed to append sample")
		datadog.Count("db.append_errors", 1, "table:samples")
	}

	if p.edges.Observe(d.ID, u.Trip) {
		p.recordTrip(d, sample)
	}
	return nil
}

func (p *Poller) recordTrip(d model.DeviceTags, sample model.Sample) {
	log.Warn().
		Str("device", d.ID).
		Str("label", d.Label).
		Msg("Trip engaged")
	datadog.Count("events.trip", 1, "device:"+d.ID)

	event := model.Event{
		TS:       sample.TS,
		DeviceID: d.ID,
		Kind:     model.EventTrip,
		Pressure: sample.Pressure,
		Speed:    sample.Speed,
	}
	if err := p.recorder.AppendEvent(event); err != nil {
		log.Warn().Err(err).Str("device", d.ID).Msg("Failed to append trip event")
		datadog.Count("db.append_errors", 1, "table:events")
	}

	if err := notifications.Send("Trip: "+d.Label, fmt.Sprintf("%s tripped at %s", d.Label, sample.TS.UTC().Format("2006-01-02 15:04:05"))); err != nil {
		log.Debug().Err(err).Str("device", d.ID).Msg("Trip notification not sent")
	}
}

// readReal reads one optional real tag. A nil tag (unconfigured or
// malformed address) and a tag-level failure both come back as nil with no
// error; only session faults propagate.
func (p *Poller) readReal(tag *model.RealTag) (*float64, error) {
	if tag == nil {
		return nil, nil
	}
	v, err := p.reader.ReadReal(*tag)
	if err != nil {
		if plc.IsTagError(err) {
			log.Debug().Err(err).Msg("Tag read yielded no value")
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (p *Poller) readBool(tag *model.BoolTag) (*bool, error) {
	if tag == nil {
		return nil, nil
	}
	v, err := p.reader.ReadBool(*tag)
	if err != nil {
		if plc.IsTagError(err) {
			log.Debug().Err(err).Msg("Tag read yielded no value")
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}
