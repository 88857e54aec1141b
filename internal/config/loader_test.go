package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/picklist/internal/config"
)

var configEnvVars = []string{
	"PICKLIST_CONFIG",
	"PICKLIST_ADDR",
	"PICKLIST_QUEUE_SIZE",
	"PICKLIST_WORKER_COUNT",
	"PICKLIST_BATCH_PARALLELISM",
	"PICKLIST_MODEL_PROVIDER",
	"PICKLIST_ANTHROPIC_API_KEY",
	"PICKLIST_RATE_LIMIT_RPS",
	"PICKLIST_STALL_TIMEOUT_SEC",
	"PICKLIST_REDIS_ADDR",
	"PICKLIST_LOG_FORMAT",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "picklist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigDefaults(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it has sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DefaultBatchSize, convey.ShouldEqual, 20)
			convey.So(cfg.DefaultReferenceCount, convey.ShouldEqual, 3)
			convey.So(cfg.ModelProvider, convey.ShouldEqual, config.ProviderSimulated)
			convey.So(cfg.StallTimeout(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.EntryTTL(), convey.ShouldEqual, time.Hour)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then the defaults are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.BatchParallelism, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("PICKLIST_ADDR", ":8080")
			_ = os.Setenv("PICKLIST_QUEUE_SIZE", "64")
			_ = os.Setenv("PICKLIST_WORKER_COUNT", "2")
			_ = os.Setenv("PICKLIST_RATE_LIMIT_RPS", "2.5")
			_ = os.Setenv("PICKLIST_REDIS_ADDR", "localhost:6379")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
				convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 2.5)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "localhost:6379")
			})
		})

		convey.Convey("When a YAML file is given", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 300
batch_parallelism: 8
stall_timeout_sec: 30
roster_dir: /var/lib/picklist/rosters
game_context: "Reefscape 2025"
`)
			_ = os.Setenv("PICKLIST_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then the file values are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.BatchParallelism, convey.ShouldEqual, 8)
				convey.So(cfg.StallTimeout(), convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.RosterDir, convey.ShouldEqual, "/var/lib/picklist/rosters")
				convey.So(cfg.GameContext, convey.ShouldEqual, "Reefscape 2025")
			})

			convey.Convey("And env overrides the file", func() {
				_ = os.Setenv("PICKLIST_QUEUE_SIZE", "42")

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 42)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			})
		})

		convey.Convey("When the YAML file is missing", func() {
			_ = os.Setenv("PICKLIST_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is out of range", func() {
			_ = os.Setenv("PICKLIST_BATCH_PARALLELISM", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "batch_parallelism")
			})
		})

		convey.Convey("When the anthropic provider has no key", func() {
			_ = os.Setenv("PICKLIST_MODEL_PROVIDER", "anthropic")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})

			convey.Convey("And a key makes it valid", func() {
				_ = os.Setenv("PICKLIST_ANTHROPIC_API_KEY", "sk-test")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ModelProvider, convey.ShouldEqual, config.ProviderAnthropic)
			})
		})

		convey.Convey("When the log format is unknown", func() {
			_ = os.Setenv("PICKLIST_LOG_FORMAT", "xml")

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
