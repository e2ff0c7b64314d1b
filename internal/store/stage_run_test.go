package store_test

import (
	"context"
	"fmt"

	"github.com/firesci/debrisflow/internal/config"
	st "github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	insertStageRunStm = "INSERT INTO stage_runs (id, fire_id, stage, state, error, error_kind, duration_ms, created_at) VALUES ('%s', '%s', '%s', '%s', '', '', %d, '%s');"
)

var _ = Describe("stage run store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		gormdb = db
		s = st.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2021_dixie", "2021", "dixie", "/data/2021/dixie", 150.5, true))
		Expect(tx.Error).To(BeNil())
	})

	Context("create", func() {
		It("assigns an id when none is set", func() {
			run, err := s.StageRun().Create(context.TODO(), model.StageRun{
				FireID:     "2021_dixie",
				Stage:      model.StageAssess,
				State:      model.StateSucceeded,
				DurationMs: 4200,
			})
			Expect(err).To(BeNil())
			Expect(run.ID).ToNot(Equal(uuid.Nil))

			count := 0
			err = gormdb.Raw("SELECT COUNT(*) from stage_runs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("records failure details", func() {
			run, err := s.StageRun().Create(context.TODO(), model.StageRun{
				FireID:    "2021_dixie",
				Stage:     model.StageAssess,
				State:     model.StateFailed,
				Error:     "wildcat assess: signal: killed",
				ErrorKind: model.ErrorKindMemory,
			})
			Expect(err).To(BeNil())
			Expect(run.State).To(Equal(model.StateFailed))

			stored, err := s.StageRun().Latest(context.TODO(), "2021_dixie", model.StageAssess)
			Expect(err).To(BeNil())
			Expect(stored.ErrorKind).To(Equal(model.ErrorKindMemory))
			Expect(stored.Error).To(ContainSubstring("signal: killed"))
		})
	})

	Context("latest", func() {
		It("returns the most recent run for a stage", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertStageRunStm, uuid.NewString(), "2021_dixie", "assess", "failed", 1000, "2025-01-10 08:00:00"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertStageRunStm, uuid.NewString(), "2021_dixie", "assess", "succeeded", 2000, "2025-01-10 09:00:00"))
			Expect(tx.Error).To(BeNil())

			run, err := s.StageRun().Latest(context.TODO(), "2021_dixie", "assess")
			Expect(err).To(BeNil())
			Expect(run.State).To(Equal("succeeded"))
			Expect(run.DurationMs).To(Equal(int64(2000)))
		})

		It("ignores runs of other stages", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertStageRunStm, uuid.NewString(), "2021_dixie", "clip", "succeeded", 500, "2025-01-10 08:00:00"))
			Expect(tx.Error).To(BeNil())

			_, err := s.StageRun().Latest(context.TODO(), "2021_dixie", "assess")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("returns ErrRecordNotFound when the stage never ran", func() {
			_, err := s.StageRun().Latest(context.TODO(), "2021_dixie", "assess")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("lists runs for a fire in creation order", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertStageRunStm, uuid.NewString(), "2021_dixie", "clip", "succeeded", 500, "2025-01-10 08:00:00"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertStageRunStm, uuid.NewString(), "2021_dixie", "assess", "succeeded", 2000, "2025-01-10 09:00:00"))
			Expect(tx.Error).To(BeNil())

			runs, err := s.StageRun().List(context.TODO(), "2021_dixie")
			Expect(err).To(BeNil())
			Expect(runs).To(HaveLen(2))
			Expect(runs[0].Stage).To(Equal("clip"))
			Expect(runs[1].Stage).To(Equal("assess"))
		})
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from stage_runs;")
		gormdb.Exec("DELETE from fires;")
	})
})
