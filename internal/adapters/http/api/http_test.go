package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/solcast/internal/adapters/http/api"
	"github.com/okian/solcast/internal/adapters/sink"
	service "github.com/okian/solcast/internal/app"
	"github.com/okian/solcast/internal/domain/model"
	"github.com/okian/solcast/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	latest  *sink.Latest
	last    *types.RunSummary
	runErr  error
	runs    int
	summary types.RunSummary
}

func (m *mockDeps) Latest(h model.Horizon) []sink.Batch { return m.latest.Horizon(h) }

func (m *mockDeps) LatestPlant(h model.Horizon, plantID string) (sink.Batch, bool) {
	return m.latest.Get(h, plantID)
}

func (m *mockDeps) RunCycle(context.Context) (types.RunSummary, error) {
	m.runs++
	if m.runErr != nil {
		return types.RunSummary{}, m.runErr
	}
	m.last = &m.summary
	return m.summary, nil
}

func (m *mockDeps) LastRun() (types.RunSummary, bool) {
	if m.last == nil {
		return types.RunSummary{}, false
	}
	return *m.last, true
}

func (m *mockDeps) Location() *time.Location { return time.UTC }

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "plants": 2}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(mux)
	return mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func seededLatest() *sink.Latest {
	l := sink.NewLatest()
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	_ = l.Write(context.Background(), sink.Batch{
		RunID:    "run-1",
		Horizon:  model.HorizonIntraday,
		PlantID:  "42",
		Revision: 3,
		Records: []model.ForecastRecord{
			{OwnerID: "o", PlantID: "42", Timestamp: day, Revision: 3, Forecast: 0, Valid: true},
			{OwnerID: "o", PlantID: "42", Timestamp: day.Add(15 * time.Minute), Revision: 3},
		},
	})
	_ = l.Write(context.Background(), sink.Batch{RunID: "run-1", Horizon: model.HorizonIntraday, PlantID: "7", Revision: 3})
	return l
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDeps{latest: sink.NewLatest()})

		Convey("Then the health endpoint serves metrics", func() {
			w := serve(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
		})

		Convey("Then the stats endpoint returns JSON", func() {
			w := serve(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then writes to stats are refused", func() {
			w := serve(mux, http.MethodPost, "/stats")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then unknown paths are not found", func() {
			w := serve(mux, http.MethodGet, "/unknown")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestForecastsHandler(t *testing.T) {
	Convey("Given forecasts for two plants", t, func() {
		mux := newMux(&mockDeps{latest: seededLatest()})

		Convey("When listing a horizon", func() {
			w := serve(mux, http.MethodGet, "/forecasts?horizon=IND")

			Convey("Then every plant's batch is returned in plant order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out []types.ForecastBatch
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].PlantID, ShouldEqual, "7")
				So(out[1].Horizon, ShouldEqual, "intraday")
			})
		})

		Convey("When listing a horizon without forecasts", func() {
			w := serve(mux, http.MethodGet, "/forecasts?horizon=day_ahead")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("When getting one plant", func() {
			w := serve(mux, http.MethodGet, "/forecasts/42?horizon=intraday")

			Convey("Then rows carry formatted timestamps and null forecasts", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var b types.ForecastBatch
				So(json.Unmarshal(w.Body.Bytes(), &b), ShouldBeNil)
				So(b.Revision, ShouldEqual, 3)
				So(b.Rows, ShouldHaveLength, 2)
				So(b.Rows[0].Datetime, ShouldEqual, "2024-03-12 00:00:00")
				So(*b.Rows[0].Forecast, ShouldEqual, 0)
				So(b.Rows[1].Forecast, ShouldBeNil)
			})
		})

		Convey("When the plant has no forecast", func() {
			w := serve(mux, http.MethodGet, "/forecasts/99?horizon=intraday")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the horizon is missing or unknown", func() {
			So(serve(mux, http.MethodGet, "/forecasts").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/forecasts/42?horizon=weekly").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the plant id is missing", func() {
			So(serve(mux, http.MethodGet, "/forecasts/?horizon=vstf").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRunsHandler(t *testing.T) {
	Convey("Given an idle pipeline", t, func() {
		deps := &mockDeps{latest: sink.NewLatest(), summary: types.RunSummary{RunID: "run-9", Revisions: map[string]int{"day_ahead": 1}}}
		mux := newMux(deps)

		Convey("When no cycle has run", func() {
			So(serve(mux, http.MethodGet, "/runs/latest").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a cycle is triggered", func() {
			w := serve(mux, http.MethodPost, "/runs")

			Convey("Then its summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var sum types.RunSummary
				So(json.Unmarshal(w.Body.Bytes(), &sum), ShouldBeNil)
				So(sum.RunID, ShouldEqual, "run-9")
				So(deps.runs, ShouldEqual, 1)
			})

			Convey("Then it becomes the latest run", func() {
				w := serve(mux, http.MethodGet, "/runs/latest")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"run_id":"run-9"`)
			})
		})

		Convey("When a cycle is already running", func() {
			deps.runErr = service.ErrCycleRunning
			So(serve(mux, http.MethodPost, "/runs").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the service is not started", func() {
			deps.runErr = service.ErrNotStarted
			So(serve(mux, http.MethodPost, "/runs").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When runs is read with GET", func() {
			So(serve(mux, http.MethodGet, "/runs").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(deps.runs, ShouldEqual, 0)
		})
	})
}
