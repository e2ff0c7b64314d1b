package store_test

import (
	"context"
	"fmt"

	"github.com/firesci/debrisflow/internal/config"
	st "github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	insertFireStm = "INSERT INTO fires (id, year, name, folder, size_mb, complete, created_at) VALUES ('%s', '%s', '%s', '%s', %f, %t, '2025-01-10 08:00:00');"
)

var _ = Describe("fire store", Ordered, func() {
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

	Context("list", func() {
		It("successfully list all the fires", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2020_creek", "2020", "creek", "/data/2020/creek", 220.7, true))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFireStm, "2021_dixie", "2021", "dixie", "/data/2021/dixie", 150.5, false))
			Expect(tx.Error).To(BeNil())

			fires, err := s.Fire().List(context.TODO(), st.NewFireQueryFilter())
			Expect(err).To(BeNil())
			Expect(fires).To(HaveLen(2))
			Expect(fires[0].ID).To(Equal("2020_creek"))
			Expect(fires[1].ID).To(Equal("2021_dixie"))
		})

		It("filters fires by year", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2020_creek", "2020", "creek", "/data/2020/creek", 220.7, true))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFireStm, "2021_dixie", "2021", "dixie", "/data/2021/dixie", 150.5, false))
			Expect(tx.Error).To(BeNil())

			fires, err := s.Fire().List(context.TODO(), st.NewFireQueryFilter().ByYear("2021"))
			Expect(err).To(BeNil())
			Expect(fires).To(HaveLen(1))
			Expect(fires[0].Name).To(Equal("dixie"))
		})

		It("filters complete fires only", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2020_creek", "2020", "creek", "/data/2020/creek", 220.7, true))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFireStm, "2021_dixie", "2021", "dixie", "/data/2021/dixie", 150.5, false))
			Expect(tx.Error).To(BeNil())

			fires, err := s.Fire().List(context.TODO(), st.NewFireQueryFilter().CompleteOnly())
			Expect(err).To(BeNil())
			Expect(fires).To(HaveLen(1))
			Expect(fires[0].ID).To(Equal("2020_creek"))
		})
	})

	Context("get", func() {
		It("successfully get a fire", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2020_creek", "2020", "creek", "/data/2020/creek", 220.7, true))
			Expect(tx.Error).To(BeNil())

			fire, err := s.Fire().Get(context.TODO(), "2020_creek")
			Expect(err).To(BeNil())
			Expect(fire.Year).To(Equal("2020"))
			Expect(fire.Name).To(Equal("creek"))
			Expect(fire.SizeMB).To(BeNumerically("~", 220.7, 0.01))
			Expect(fire.Complete).To(BeTrue())
		})

		It("returns ErrRecordNotFound for a missing fire", func() {
			_, err := s.Fire().Get(context.TODO(), "1999_nosuch")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("upsert", func() {
		It("creates a fire when none exists", func() {
			fire, err := s.Fire().Upsert(context.TODO(), model.Fire{
				ID:            "2021_dixie",
				Year:          "2021",
				Name:          "dixie",
				SizeMB:        150.5,
				PerimeterPath: "/data/2021/dixie/burn_bndy.shp",
			})
			Expect(err).To(BeNil())
			Expect(fire).ToNot(BeNil())

			count := 0
			err = gormdb.Raw("SELECT COUNT(*) from fires;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("updates the existing row on conflict", func() {
			_, err := s.Fire().Upsert(context.TODO(), model.Fire{
				ID:   "2021_dixie",
				Year: "2021",
				Name: "dixie",
			})
			Expect(err).To(BeNil())

			_, err = s.Fire().Upsert(context.TODO(), model.Fire{
				ID:       "2021_dixie",
				Year:     "2021",
				Name:     "dixie",
				SizeMB:   310.2,
				DEMPath:  "/data/2021/dixie/dem.tif",
				Complete: true,
			})
			Expect(err).To(BeNil())

			count := 0
			err = gormdb.Raw("SELECT COUNT(*) from fires;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))

			fire, err := s.Fire().Get(context.TODO(), "2021_dixie")
			Expect(err).To(BeNil())
			Expect(fire.SizeMB).To(BeNumerically("~", 310.2, 0.01))
			Expect(fire.DEMPath).To(Equal("/data/2021/dixie/dem.tif"))
			Expect(fire.Complete).To(BeTrue())
			Expect(fire.UpdatedAt).ToNot(BeNil())
		})
	})

	Context("delete", func() {
		It("deletes an existing fire", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFireStm, "2020_creek", "2020", "creek", "/data/2020/creek", 220.7, true))
			Expect(tx.Error).To(BeNil())

			err := s.Fire().Delete(context.TODO(), "2020_creek")
			Expect(err).To(BeNil())

			count := 0
			err = gormdb.Raw("SELECT COUNT(*) from fires;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("tolerates deleting a missing fire", func() {
			err := s.Fire().Delete(context.TODO(), "1999_nosuch")
			Expect(err).To(BeNil())
		})
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from fires;")
	})
})
