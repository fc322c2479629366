package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/plantops/pumpwatch/db"
	"github.com/plantops/pumpwatch/internal/model"
)

// CSVFilename names an export after the device and date range it covers.
func CSVFilename(device, startDate, endDate string) string {
	return fmt.Sprintf("samples_%s_%s_to_%s.csv", device, startDate, endDate)
}

// WriteCSV serializes sample rows. Carried pressure/speed print with two
// decimals; unconfigured signals print empty.
func WriteCSV(w io.Writer, samples []model.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "device_id", "pressure", "speed", "ready", "running", "trip"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			s.TS.UTC().Format(db.TSLayout),
			s.DeviceID,
			formatReal(s.Pressure),
			formatReal(s.Speed),
			formatBit(s.Ready),
			formatBit(s.Running),
			formatBit(s.Trip),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatReal(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatBit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
