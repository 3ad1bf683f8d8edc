package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/solcast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"SOLCAST_CONFIG",
	"SOLCAST_ADDR",
	"SOLCAST_WORKER_COUNT",
	"SOLCAST_TRAIN_DAYS",
	"SOLCAST_TRAIN_ALPHA",
	"SOLCAST_LIVE_WINDOW",
	"SOLCAST_RUN_INTERVAL",
	"SOLCAST_HORIZONS",
	"SOLCAST_MODEL_BACKEND",
	"SOLCAST_SINK",
	"SOLCAST_TIMEZONE",
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ModelBackend, convey.ShouldEqual, config.BackendFile)
				convey.So(len(cfg.Horizons), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("SOLCAST_ADDR", ":8080")
			t.Setenv("SOLCAST_WORKER_COUNT", "16")
			t.Setenv("SOLCAST_TRAIN_ALPHA", "0.5")
			t.Setenv("SOLCAST_LIVE_WINDOW", "1h")
			t.Setenv("SOLCAST_RUN_INTERVAL", "15m")
			t.Setenv("SOLCAST_HORIZONS", "day_ahead")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.TrainAlpha, convey.ShouldEqual, 0.5)
				convey.So(cfg.LiveWindow, convey.ShouldEqual, time.Hour)
				convey.So(cfg.RunInterval, convey.ShouldEqual, 15*time.Minute)
				convey.So(cfg.Horizons, convey.ShouldResemble, []string{"day_ahead"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
# plant portfolio
addr: ":9090"
train_days: 7
horizons: [intraday, vstf]
live_window: 2h
`)
			t.Setenv("SOLCAST_CONFIG", path)
			t.Setenv("SOLCAST_TRAIN_DAYS", "5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.TrainDays, convey.ShouldEqual, 5)
				convey.So(cfg.Horizons, convey.ShouldResemble, []string{"intraday", "vstf"})
				convey.So(cfg.LiveWindow, convey.ShouldEqual, 2*time.Hour)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			t.Setenv("SOLCAST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML is invalid", func() {
			t.Setenv("SOLCAST_CONFIG", writeConfigFile(t, "addr: [unclosed\n"))

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			t.Setenv("SOLCAST_WORKER_COUNT", "many")

			_, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a value fails validation", func() {
			t.Setenv("SOLCAST_SINK", "kafka")

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			t.Setenv(name, v)
			_ = os.Unsetenv(name)
		}
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solcast.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
