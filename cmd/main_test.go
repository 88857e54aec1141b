package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/picklist/internal/adapters/http/api"
	"github.com/okian/picklist/internal/adapters/http/swagger"
	"github.com/okian/picklist/internal/adapters/llm"
	"github.com/okian/picklist/internal/adapters/repository"
	app "github.com/okian/picklist/internal/app"
	"github.com/okian/picklist/internal/config"
	"github.com/okian/picklist/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestConfigLoading(t *testing.T) {
	t.Setenv("PICKLIST_ADDR", ":8080")
	t.Setenv("PICKLIST_QUEUE_SIZE", "1000")
	t.Setenv("PICKLIST_WORKER_COUNT", "4")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then configuration should be loadable", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
		})
	})
}

func TestWiring(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cfg := config.New()

		convey.Convey("When building the store", func() {
			st, err := buildStore(ctx, cfg)

			convey.Convey("Then the in-memory store is used", func() {
				convey.So(err, convey.ShouldBeNil)
				_, ok := st.(*repository.MemoryStore)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(st.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When building the model", func() {
			convey.Convey("Then the simulated provider is the default", func() {
				_, ok := buildModel(cfg).(*llm.Simulated)
				convey.So(ok, convey.ShouldBeTrue)
			})

			convey.Convey("And the anthropic provider is selected by name", func() {
				cfg.ModelProvider = config.ProviderAnthropic
				cfg.AnthropicAPIKey = "test-key"
				cfg.AnthropicBaseURL = "http://127.0.0.1:1"
				_, ok := buildModel(cfg).(*llm.Anthropic)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the default reference strategy is unknown", func() {
			cfg.DefaultReferenceStrategy = "random"
			_, err := serviceOptions(ctx, cfg)

			convey.Convey("Then wiring fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestServerAssembly(t *testing.T) {
	convey.Convey("Given a service wired from configuration", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg := config.New()
		cfg.WorkerCount = 2
		cfg.SimLatencyMinMS = 1
		cfg.SimLatencyMaxMS = 2
		opts, err := serviceOptions(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)

		svc := app.New(opts...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		swagger.Register(ctx, mux)
		api.NewServer(svc, svc).Register(ctx, mux)

		convey.Convey("When requesting stats and docs", func() {
			stats := httptest.NewRecorder()
			mux.ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/stats", nil))
			docs := httptest.NewRecorder()
			mux.ServeHTTP(docs, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

			convey.Convey("Then both routes answer", func() {
				convey.So(stats.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(stats.Body.String(), convey.ShouldContainSubstring, `"workerCount":2`)
				convey.So(docs.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When the metric updaters run", func() {
			short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
			defer stop()

			convey.Convey("Then they return once the context ends", func() {
				convey.So(func() {
					updateSystemMetrics()
					updateServiceMetrics(short, svc)
					startSystemMetricsUpdater(short)
					startServiceMetricsUpdater(short, svc)
				}, convey.ShouldNotPanic)
			})
		})
	})
}
