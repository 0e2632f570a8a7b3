package services

import (
	"log"
	"net/http"
	"os"

	"hr_portal/portal/auth"
	"hr_portal/portal/storage"
	"hr_portal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Portal struct {
	user       UserService
	department DepartmentService
	orgChart   OrgChartService
	kpi        KPIService

	db *gorm.DB
}

func NewPortal(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, policy *auth.Policy) Portal {
	return Portal{
		user:       UserService{db: db, storage: store, userAuth: userAuth, policy: policy},
		department: DepartmentService{db: db, storage: store, userAuth: userAuth, policy: policy},
		orgChart:   OrgChartService{db: db, userAuth: userAuth, policy: policy},
		kpi:        KPIService{db: db, storage: store, userAuth: userAuth, policy: policy},
		db:         db,
	}
}

func (p *Portal) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/department", p.department.Routes())
	r.Mount("/org-chart", p.orgChart.Routes())
	r.Mount("/kpi", p.kpi.Routes())

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
