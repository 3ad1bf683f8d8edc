package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/timeblock"
	"github.com/okian/solcast/pkg/logger"
	"github.com/okian/solcast/pkg/metrics"
)

const (
	fileStoreName = "file"

	// SeriesTimeLayout is how processed series timestamps are written. The
	// offset keeps repeated DST wall times apart on reload.
	SeriesTimeLayout = "2006-01-02 15:04:05-07:00"
	// legacySeriesLayout is read for files written without an offset.
	legacySeriesLayout = "2006-01-02 15:04:05"

	rawDir       = "raw"
	processedDir = "processed"
	modelsDir    = "models/ewma_models"
	dirPerm      = 0o755
)

// Column names of the files the store reads and writes.
const (
	colUTCDatetime = "utc_datetime"
	colGeneration  = "generation"
	colDatetime    = "datetime"
	colPower       = "power"
	colBlock       = "tb"
)

var rawTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// FileStore keeps every artifact as CSV under a data directory:
//
//	raw/solar_plant_<id>.csv                          utc_datetime,generation
//	processed/processed_solar_plant_<id>.csv          datetime,power,tb
//	models/ewma_models/<h>/<h>_model_<id>.csv         tb,power
type FileStore struct {
	root string
	opts options
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string, opts ...Option) *FileStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FileStore{root: dir, opts: o}
}

// Root returns the data directory.
func (s *FileStore) Root() string { return s.root }

// RawPath returns the raw readings file of a plant.
func (s *FileStore) RawPath(plantID string) string {
	return filepath.Join(s.root, rawDir, "solar_plant_"+plantID+".csv")
}

// SeriesPath returns the processed series file of a plant.
func (s *FileStore) SeriesPath(plantID string) string {
	return filepath.Join(s.root, processedDir, "processed_solar_plant_"+plantID+".csv")
}

// ModelPath returns the model file for key.
func (s *FileStore) ModelPath(key model.ModelKey) string {
	h := string(key.Horizon)
	return filepath.Join(s.root, modelsDir, h, h+"_model_"+key.PlantID+".csv")
}

// Readings implements RawSource. Rows whose timestamp cannot be parsed are
// skipped; an empty generation cell is read as a missing value.
func (s *FileStore) Readings(ctx context.Context, plantID string) ([]model.Reading, error) {
	defer s.observe("readings", time.Now())
	rows, header, err := s.readCSV(ctx, s.RawPath(plantID))
	if err != nil {
		return nil, s.fail("readings", fmt.Errorf("readings for plant %s: %w", plantID, err))
	}
	tsCol, ok := column(header, colUTCDatetime, "timestamp")
	if !ok {
		return nil, s.fail("readings", fmt.Errorf("readings for plant %s: missing %s column: %w", plantID, colUTCDatetime, ErrBadRecord))
	}
	pCol, ok := column(header, colGeneration, colPower)
	if !ok {
		return nil, s.fail("readings", fmt.Errorf("readings for plant %s: missing %s column: %w", plantID, colGeneration, ErrBadRecord))
	}

	out := make([]model.Reading, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		ts, err := parseRawTime(row[tsCol])
		if err != nil {
			skipped++
			continue
		}
		p, ok := parsePower(row[pCol])
		if !ok {
			p = math.NaN()
		}
		out = append(out, model.Reading{Timestamp: ts.In(s.opts.loc), Power: p})
	}
	if skipped > 0 {
		s.opts.log.Debug(ctx, "skipped unparseable raw rows",
			logger.String("plant_id", plantID), logger.Int("rows", skipped))
	}
	return out, nil
}

// WriteReadings stores raw readings of a plant with UTC timestamps.
func (s *FileStore) WriteReadings(ctx context.Context, plantID string, readings []model.Reading) error {
	defer s.observe("write_readings", time.Now())
	rows := make([][]string, 0, len(readings)+1)
	rows = append(rows, []string{colUTCDatetime, colGeneration})
	for _, r := range readings {
		rows = append(rows, []string{r.Timestamp.UTC().Format(time.RFC3339), formatPower(r.Power, !math.IsNaN(r.Power))})
	}
	return s.fail("write_readings", s.writeCSV(ctx, s.RawPath(plantID), rows))
}

// SaveSeries implements SeriesStore.
func (s *FileStore) SaveSeries(ctx context.Context, series *model.Series) error {
	defer s.observe("save_series", time.Now())
	rows := make([][]string, 0, series.Len()+1)
	rows = append(rows, []string{colDatetime, colPower, colBlock})
	for _, smp := range series.Samples {
		rows = append(rows, []string{
			smp.Timestamp.In(s.opts.loc).Format(SeriesTimeLayout),
			formatPower(smp.Power, smp.Valid),
			strconv.Itoa(smp.Block),
		})
	}
	return s.fail("save_series", s.writeCSV(ctx, s.SeriesPath(series.PlantID), rows))
}

// LoadSeries implements SeriesStore. Blocks are recomputed from timestamps.
func (s *FileStore) LoadSeries(ctx context.Context, plantID string) (*model.Series, error) {
	defer s.observe("load_series", time.Now())
	rows, header, err := s.readCSV(ctx, s.SeriesPath(plantID))
	if err != nil {
		return nil, s.fail("load_series", fmt.Errorf("series for plant %s: %w", plantID, err))
	}
	tsCol, okT := column(header, colDatetime)
	pCol, okP := column(header, colPower)
	if !okT || !okP {
		return nil, s.fail("load_series", fmt.Errorf("series for plant %s: %w", plantID, ErrBadRecord))
	}

	series := &model.Series{PlantID: plantID, Samples: make([]model.Sample, 0, len(rows))}
	for i, row := range rows {
		ts, err := s.parseSeriesTime(row[tsCol])
		if err != nil {
			return nil, s.fail("load_series", fmt.Errorf("series for plant %s row %d: %w", plantID, i+2, ErrBadRecord))
		}
		p, ok := parsePower(row[pCol])
		series.Samples = append(series.Samples, model.Sample{Timestamp: ts, Block: timeblock.Of(ts), Power: p, Valid: ok})
	}
	return series, nil
}

func (s *FileStore) parseSeriesTime(v string) (time.Time, error) {
	if ts, err := time.Parse(SeriesTimeLayout, v); err == nil {
		return ts.In(s.opts.loc), nil
	}
	return time.ParseInLocation(legacySeriesLayout, v, s.opts.loc)
}

// SaveModel implements ModelStore. Rows are written in block order.
func (s *FileStore) SaveModel(ctx context.Context, m *model.EWMAModel) error {
	defer s.observe("save_model", time.Now())
	blocks := make([]int, 0, len(m.Values))
	for b := range m.Values {
		blocks = append(blocks, b)
	}
	sort.Ints(blocks)

	rows := make([][]string, 0, len(blocks)+1)
	rows = append(rows, []string{colBlock, colPower})
	for _, b := range blocks {
		rows = append(rows, []string{strconv.Itoa(b), formatPower(m.Values[b], true)})
	}
	return s.fail("save_model", s.writeCSV(ctx, s.ModelPath(m.Key), rows))
}

// LoadModel implements ModelStore. TrainedAt is taken from the file's
// modification time.
func (s *FileStore) LoadModel(ctx context.Context, key model.ModelKey) (*model.EWMAModel, error) {
	defer s.observe("load_model", time.Now())
	path := s.ModelPath(key)
	rows, header, err := s.readCSV(ctx, path)
	if err != nil {
		return nil, s.fail("load_model", fmt.Errorf("model %s: %w", key, err))
	}
	bCol, okB := column(header, colBlock)
	pCol, okP := column(header, colPower)
	if !okB || !okP {
		return nil, s.fail("load_model", fmt.Errorf("model %s: %w", key, ErrBadRecord))
	}

	m := &model.EWMAModel{Key: key, Values: make(map[int]float64, len(rows))}
	for _, row := range rows {
		b, err := strconv.Atoi(strings.TrimSpace(row[bCol]))
		if err != nil || !timeblock.Valid(b) {
			return nil, s.fail("load_model", fmt.Errorf("model %s block %q: %w", key, row[bCol], ErrBadRecord))
		}
		if v, ok := parsePower(row[pCol]); ok {
			m.Values[b] = v
		}
	}
	if st, err := os.Stat(path); err == nil {
		m.TrainedAt = st.ModTime()
	}
	return m, nil
}

func (s *FileStore) readCSV(ctx context.Context, path string) (rows [][]string, header []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err = r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(row) < len(header) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// writeCSV replaces path atomically.
func (s *FileStore) writeCSV(ctx context.Context, path string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(fileStoreName, op, float64(time.Since(start).Microseconds())/1000)
}

// fail counts err unless it is nil or a plain miss.
func (s *FileStore) fail(op string, err error) error {
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStoreError(fileStoreName, op)
	}
	return err
}

func column(header []string, names ...string) (int, bool) {
	for _, name := range names {
		for i, h := range header {
			if h == name {
				return i, true
			}
		}
	}
	return 0, false
}

func parseRawTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range rawTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: %w", v, ErrBadRecord)
}

// parsePower reads a power cell; ok is false for empty or non-numeric cells.
func parsePower(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

func formatPower(v float64, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
