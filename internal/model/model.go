package model

import "time"

type DeviceKind string

const (
	KindPump    DeviceKind = "pump"
	KindChiller DeviceKind = "chiller"
)

// Endpoint identifies one field controller. The acquisition path currently
// wires a single endpoint shared by every tag, but nothing below the config
// layer assumes that.
type Endpoint struct {
	Host string `json:"host"`
	Rack int    `json:"rack"`
	Slot int    `json:"slot"`
}

// RealTag addresses a 4-byte floating value inside a register block.
type RealTag struct {
	Block  int
	Offset int
}

// BoolTag addresses a single bit inside a register block.
type BoolTag struct {
	Block  int
	Offset int
	Bit    int
}

// DeviceTags is the resolved address set for one pump or chiller. Pressure
// and Speed are pump-only; a nil tag means the signal is not configured and
// is skipped during polling.
type DeviceTags struct {
	ID       string
	Kind     DeviceKind
	Label    string
	Ready    *BoolTag
	Running  *BoolTag
	Trip     *BoolTag
	Pressure *RealTag
	Speed    *RealTag
}

// HomeTags is the resolved address set for the plant aggregate signals.
type HomeTags struct {
	KWH   *RealTag
	Level *RealTag
	Temp  *RealTag
	Alarm *BoolTag
}

// HomeUpdate carries the results of one home read pass. Nil fields mean the
// read produced no value and the stored field must be left untouched.
type HomeUpdate struct {
	KWH   *float64
	Level *float64
	Temp  *float64
	Alarm *bool
}

// DeviceUpdate carries the results of one device read pass, with the same
// nil-means-no-value convention as HomeUpdate.
type DeviceUpdate struct {
	Ready    *bool
	Running  *bool
	Trip     *bool
	Pressure *float64
	Speed    *float64
}

// Sample is one persisted per-device row, written every poll cycle.
// Pressure and Speed are nil for chillers and for pumps that have never had
// a successful real read.
type Sample struct {
	TS       time.Time `json:"ts"`
	DeviceID string    `json:"device_id"`
	Pressure *float64  `json:"pressure"`
	Speed    *float64  `json:"speed"`
	Ready    bool      `json:"ready"`
	Running  bool      `json:"running"`
	Trip     bool      `json:"trip"`
}

// Event is one persisted state-transition row. Kind is free-form text;
// currently only EventTrip is emitted.
type Event struct {
	TS       time.Time `json:"ts"`
	DeviceID string    `json:"device_id"`
	Kind     string    `json:"event"`
	Pressure *float64  `json:"pressure"`
	Speed    *float64  `json:"speed"`
}

const EventTrip = "TRIP"
