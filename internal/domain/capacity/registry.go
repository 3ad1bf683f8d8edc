// Package capacity holds the read-only plant capacity registry (plant id -> AVC).
package capacity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/solcast/internal/domain/model"
)

// Sentinel kinds for registry lookups.
var (
	ErrUnknownPlant = errors.New("plant not in capacity registry")
	ErrBadPlantInfo = errors.New("invalid plant info")
)

const solarPlantType = "solar"

// Profile describes one plant's rating.
type Profile struct {
	PlantID string
	AVC     float64
}

// Registry is an immutable plant id -> capacity map. It is safe for concurrent
// reads once built.
type Registry struct {
	profiles map[string]Profile
	ids      []string
}

// NewRegistry builds a registry. The aggregated pseudo-plant is ignored.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		id := strings.TrimSpace(p.PlantID)
		if id == "" {
			return nil, fmt.Errorf("%w: empty plant id", ErrBadPlantInfo)
		}
		if model.IsAggregated(id) {
			continue
		}
		if p.AVC <= 0 {
			return nil, fmt.Errorf("%w: plant %s has non-positive avc %v", ErrBadPlantInfo, id, p.AVC)
		}
		if _, dup := r.profiles[id]; !dup {
			r.ids = append(r.ids, id)
		}
		r.profiles[id] = Profile{PlantID: id, AVC: p.AVC}
	}
	sortPlantIDs(r.ids)
	return r, nil
}

// Lookup returns the plant's AVC.
func (r *Registry) Lookup(plantID string) (float64, error) {
	p, ok := r.profiles[plantID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPlant, plantID)
	}
	return p.AVC, nil
}

// Ceiling returns the clipping bound for plantID. ok is false for the
// aggregated pseudo-plant, which is never clipped.
func (r *Registry) Ceiling(plantID string) (ceiling float64, ok bool, err error) {
	if model.IsAggregated(plantID) {
		return 0, false, nil
	}
	avc, err := r.Lookup(plantID)
	if err != nil {
		return 0, false, err
	}
	return avc, true, nil
}

// PlantIDs returns registered plant ids sorted numerically where possible.
func (r *Registry) PlantIDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of registered plants.
func (r *Registry) Len() int { return len(r.ids) }

// LoadCSV reads plant info with columns plant_id, plant_type, avc. Only solar
// plants are registered.
func LoadCSV(rd io.Reader) (*Registry, error) {
	cr := csv.NewReader(rd)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading plant info header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"plant_id", "plant_type", "avc"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadPlantInfo, name)
		}
	}

	var profiles []Profile
	line := 1
	for {
		line++
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading plant info line %d: %w", line, err)
		}
		if !strings.EqualFold(strings.TrimSpace(rec[col["plant_type"]]), solarPlantType) {
			continue
		}
		avc, err := strconv.ParseFloat(strings.TrimSpace(rec[col["avc"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d avc %q", ErrBadPlantInfo, line, rec[col["avc"]])
		}
		profiles = append(profiles, Profile{PlantID: normalizeID(rec[col["plant_id"]]), AVC: avc})
	}
	return NewRegistry(profiles...)
}

// normalizeID turns "42.0" style ids from spreadsheet exports into "42".
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func sortPlantIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return LessPlantID(ids[i], ids[j]) })
}

// LessPlantID orders plant ids numerically, with non-numeric ids after the
// numeric ones in string order.
func LessPlantID(x, y string) bool {
	a, errA := strconv.Atoi(x)
	b, errB := strconv.Atoi(y)
	switch {
	case errA == nil && errB == nil:
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return x < y
}

// WriteCSV writes profiles in the layout LoadCSV reads, all typed Solar.
func WriteCSV(w io.Writer, profiles []Profile) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"plant_id", "plant_type", "avc"})
	for _, p := range profiles {
		_ = cw.Write([]string{p.PlantID, "Solar", strconv.FormatFloat(p.AVC, 'f', -1, 64)})
	}
	cw.Flush()
	return cw.Error()
}
