// Package report turns (device, calendar date range) requests into history
// queries. End dates are inclusive as entered: the underlying query runs
// with an exclusive upper bound of end + 1 day, so a same-day range covers
// the whole day.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/plantops/pumpwatch/internal/model"
)

const DateLayout = "2006-01-02"

// ErrBadRange distinguishes malformed date input from an empty (but valid)
// result set.
var ErrBadRange = errors.New("report: invalid date range")

// Querier is the read surface of the history store.
type Querier interface {
	QuerySamples(device string, from, to time.Time) ([]model.Sample, error)
	QueryEvents(device string, from, to time.Time) ([]model.Event, error)
}

type Result struct {
	Device  string         `json:"device"`
	Start   string         `json:"start"`
	End     string         `json:"end"`
	Samples []model.Sample `json:"samples"`
	Events  []model.Event  `json:"events"`
}

type Service struct {
	store Querier
}

func NewService(store Querier) *Service {
	return &Service{store: store}
}

// Run queries samples and events for the device (or "all") across the
// inclusive calendar-date range.
func (s *Service) Run(device, startDate, endDate string) (*Result, error) {
	from, to, err := ParseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	samples, err := s.store.QuerySamples(device, from, to)
	if err != nil {
		return nil, fmt.Errorf("report samples: %w", err)
	}
	events, err := s.store.QueryEvents(device, from, to)
	if err != nil {
		return nil, fmt.Errorf("report events: %w", err)
	}

	return &Result{
		Device:  device,
		Start:   startDate,
		End:     endDate,
		Samples: samples,
		Events:  events,
	}, nil
}

// ParseRange converts calendar dates into the half-open UTC window
// [start 00:00:00, end+1day 00:00:00).
func ParseRange(startDate, endDate string) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrBadRange, startDate)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrBadRange, endDate)
	}
	return from, end.AddDate(0, 0, 1), nil
}

// Yesterday returns the single-day range covering the day before now.
func Yesterday(now time.Time) (string, string) {
	d := now.UTC().AddDate(0, 0, -1).Format(DateLayout)
	return d, d
}

// LastDays returns the range covering the n days up to and including today.
func LastDays(now time.Time, n int) (string, string) {
	end := now.UTC()
	start := end.AddDate(0, 0, -n)
	return start.Format(DateLayout), end.Format(DateLayout)
}
