package config_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/okian/segrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.ReferenceFile, convey.ShouldEqual, "data/reference.npz")
			convey.So(cfg.ResultsFile, convey.ShouldEqual, "data/results.json")
			convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, int64(64<<20))
			convey.So(cfg.MaxConcurrentEvaluations, convey.ShouldEqual, 4)
			convey.So(cfg.ScoreWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 4096)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.PersistLockTimeoutMS, convey.ShouldEqual, 5_000)
			convey.So(cfg.PersistRetries, convey.ShouldEqual, 2)
			convey.So(cfg.ExpectedSubjects, convey.ShouldBeNil)
		})

		convey.Convey("Then LockTimeout should derive from the millisecond field", func() {
			convey.So(cfg.LockTimeout(), convey.ShouldEqual, 5*time.Second)
		})
	})
}
