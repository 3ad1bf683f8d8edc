package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/solcast/internal/domain/model"
)

// TimeLayout is how forecast timestamps are written.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column order of every forecast file.
var Header = []string{"owner_id", "plant_id", "datetime", "revision", "forecast"}

// File writes forecasts/<IND|VSTF|DA>/<horizon>_forecast_<plant_id>.csv under
// a data directory, replacing the previous file of the same plant and horizon.
type File struct {
	root string
	loc  *time.Location
}

// NewFile returns a File sink rooted at dir writing timestamps in loc.
func NewFile(dir string, loc *time.Location) *File {
	if loc == nil {
		loc = time.UTC
	}
	return &File{root: dir, loc: loc}
}

// Path returns the output file for a plant and horizon.
func (f *File) Path(h model.Horizon, plantID string) string {
	return filepath.Join(f.root, "forecasts", h.ForecastDir(), string(h)+"_forecast_"+plantID+".csv")
}

// Write implements Sink.
func (f *File) Write(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.Path(b.Horizon, b.PlantID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("forecast sink: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("forecast sink: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	w := csv.NewWriter(tmp)
	_ = w.Write(Header)
	for _, r := range b.Records {
		_ = w.Write(Row(r, f.loc))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("forecast sink %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("forecast sink %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Row formats a record in Header order. A null forecast is an empty cell.
func Row(r model.ForecastRecord, loc *time.Location) []string {
	forecast := ""
	if r.Valid {
		forecast = strconv.FormatFloat(r.Forecast, 'f', -1, 64)
	}
	return []string{
		r.OwnerID,
		r.PlantID,
		r.Timestamp.In(loc).Format(TimeLayout),
		strconv.Itoa(r.Revision),
		forecast,
	}
}
