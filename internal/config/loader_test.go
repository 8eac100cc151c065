package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/rankboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"RANKBOARD_CONFIG",
	"RANKBOARD_ADDR",
	"RANKBOARD_REDIS_ADDR",
	"RANKBOARD_REDIS_DB",
	"RANKBOARD_NAMESPACE",
	"RANKBOARD_RECONCILE_INTERVAL",
	"RANKBOARD_RECONCILE_WORKERS",
	"RANKBOARD_RECONCILE_REPAIR_MISSING",
	"RANKBOARD_ORPHAN_MAX_ATTEMPTS",
	"RANKBOARD_METRICS_ENABLED",
	"RANKBOARD_RATE_LIMIT_RPS",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "rankboard-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":12345")
				convey.So(cfg.Namespace, convey.ShouldEqual, "vesil")
				convey.So(cfg.ReconcileInterval, convey.ShouldEqual, 5*time.Minute)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RANKBOARD_ADDR", ":8080")
			_ = os.Setenv("RANKBOARD_REDIS_ADDR", "redis:6380")
			_ = os.Setenv("RANKBOARD_REDIS_DB", "3")
			_ = os.Setenv("RANKBOARD_RECONCILE_INTERVAL", "30s")
			_ = os.Setenv("RANKBOARD_RECONCILE_REPAIR_MISSING", "false")
			_ = os.Setenv("RANKBOARD_METRICS_ENABLED", "true")
			_ = os.Setenv("RANKBOARD_RATE_LIMIT_RPS", "12.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "redis:6380")
				convey.So(cfg.RedisDB, convey.ShouldEqual, 3)
				convey.So(cfg.ReconcileInterval, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.ReconcileRepairMissing, convey.ShouldBeFalse)
				convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
				convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 12.5)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
namespace: "scores"
reconcile_interval: "2m"
reconcile_workers: 3
orphan_max_attempts: 4
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKBOARD_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Namespace, convey.ShouldEqual, "scores")
				convey.So(cfg.ReconcileInterval, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.ReconcileWorkers, convey.ShouldEqual, 3)
				convey.So(cfg.OrphanMaxAttempts, convey.ShouldEqual, 4)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "127.0.0.1:6379")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
namespace: "scores"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKBOARD_CONFIG", tmpFile)
			_ = os.Setenv("RANKBOARD_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Namespace, convey.ShouldEqual, "scores")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKBOARD_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RANKBOARD_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("RANKBOARD_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When orphan_max_attempts is zero", func() {
			_ = os.Setenv("RANKBOARD_ORPHAN_MAX_ATTEMPTS", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("RANKBOARD_RECONCILE_WORKERS", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an invalid duration", func() {
			_ = os.Setenv("RANKBOARD_RECONCILE_INTERVAL", "soon")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
