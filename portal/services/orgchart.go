package services

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"hr_portal/portal/auth"
	"hr_portal/portal/hierarchy"
	"hr_portal/portal/schema"
	"hr_portal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	buildTreeMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "org_chart_build_tree", Help: "Org Chart Tree Builds"})
	setParentMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "org_chart_set_parent", Help: "Org Chart Reparent Operations"})
	reorderMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "org_chart_reorder", Help: "Org Chart Reorder Operations"})
)

type OrgChartService struct {
	db *gorm.DB

	userAuth auth.IdentityProvider

	policy *auth.Policy
}

func (s *OrgChartService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/department/{department_id}", s.GetDepartmentChart)

	r.Group(func(r chi.Router) {
		r.Use(auth.ManagerOnly())

		r.Post("/department/{department_id}", s.UpdateDepartmentChart)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.SuperAdminOnly(s.policy))

		r.Get("/overview", s.GetOverview)
	})

	return r
}

type orgChartResponse struct {
	Department  DepartmentRef    `json:"department"`
	Tree        []hierarchy.Node `json:"tree"`
	Unassigned  []hierarchy.Node `json:"unassigned"`
	MemberCount int              `json:"member_count"`
}

func (s *OrgChartService) GetDepartmentChart(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	deptId, err := utils.URLParamUUID(r, "department_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dept, err := checkViewDepartment(s.db, s.policy, user, deptId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	timer := prometheus.NewTimer(buildTreeMetric)
	tree, unassigned, err := hierarchy.BuildTree(s.db, dept.Id)
	timer.ObserveDuration()
	if err != nil {
		slog.Error("error building org chart", "department_id", dept.Id, "error", err)
		http.Error(w, "error building org chart", http.StatusInternalServerError)
		return
	}

	count := 0
	var countNodes func(nodes []hierarchy.Node)
	countNodes = func(nodes []hierarchy.Node) {
		for i := range nodes {
			count++
			countNodes(nodes[i].Children)
		}
	}
	countNodes(tree)
	count += len(unassigned)

	utils.WriteJsonResponse(w, orgChartResponse{
		Department:  DepartmentRef{Id: dept.Id, Name: dept.Name},
		Tree:        tree,
		Unassigned:  unassigned,
		MemberCount: count,
	})
}

// The drag and drop frontend treats anything other than {"status": "ok"} as a
// rejection and snaps the node back, so mutation failures all come back with
// the same shape rather than a bare http error.
type chartUpdateStatus struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

func writeChartStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	status := chartUpdateStatus{Status: "ok"}
	if code != http.StatusOK {
		status.Status = "error"
		status.Msg = msg
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("error serializing org chart status", "error", err)
	}
}

type chartUpdateRequest struct {
	Action    string      `json:"action"`
	ProfileId uuid.UUID   `json:"profile_id"`
	ParentId  *uuid.UUID  `json:"parent_id"`
	Order     []uuid.UUID `json:"order"`
}

func (s *OrgChartService) UpdateDepartmentChart(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	deptId, err := utils.URLParamUUID(r, "department_id")
	if err != nil {
		writeChartStatus(w, http.StatusBadRequest, "invalid department")
		return
	}

	allowed, err := s.policy.CanViewDepartment(user, deptId)
	if err != nil {
		writeChartStatus(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		writeChartStatus(w, http.StatusForbidden, "access denied")
		return
	}
	if _, err := schema.GetDepartment(deptId, s.db); err != nil {
		if errors.Is(err, schema.ErrDepartmentNotFound) {
			writeChartStatus(w, http.StatusNotFound, "department not found")
		} else {
			writeChartStatus(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeChartStatus(w, http.StatusBadRequest, "")
		return
	}
	var params chartUpdateRequest
	if err := json.Unmarshal(body, &params); err != nil {
		writeChartStatus(w, http.StatusBadRequest, "")
		return
	}

	switch params.Action {
	case "set_parent":
		s.setParent(w, deptId, params)
	case "reorder":
		s.reorder(w, deptId, params)
	default:
		writeChartStatus(w, http.StatusBadRequest, "unknown action")
	}
}

func (s *OrgChartService) setParent(w http.ResponseWriter, deptId uuid.UUID, params chartUpdateRequest) {
	timer := prometheus.NewTimer(setParentMetric)
	defer timer.ObserveDuration()

	if params.ProfileId == uuid.Nil {
		writeChartStatus(w, http.StatusBadRequest, "profile_id must be specified")
		return
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		return hierarchy.SetParent(txn, deptId, params.ProfileId, params.ParentId)
	})
	if err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrCircularReference):
			writeChartStatus(w, http.StatusBadRequest, "circular reference detected")
		case errors.Is(err, hierarchy.ErrMemberNotFound):
			writeChartStatus(w, http.StatusNotFound, "member not found")
		default:
			slog.Error("error updating reporting line", "department_id", deptId, "error", err)
			writeChartStatus(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeChartStatus(w, http.StatusOK, "")
}

func (s *OrgChartService) reorder(w http.ResponseWriter, deptId uuid.UUID, params chartUpdateRequest) {
	timer := prometheus.NewTimer(reorderMetric)
	defer timer.ObserveDuration()

	err := s.db.Transaction(func(txn *gorm.DB) error {
		return hierarchy.Reorder(txn, deptId, params.Order)
	})
	if err != nil {
		slog.Error("error reordering org chart", "department_id", deptId, "error", err)
		writeChartStatus(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeChartStatus(w, http.StatusOK, "")
}

type departmentOverview struct {
	Department DepartmentRef `json:"department"`
	Managers   []UserInfo    `json:"managers"`
	Employees  []UserInfo    `json:"employees"`
	Total      int           `json:"total"`
}

type overviewResponse struct {
	Departments []departmentOverview `json:"departments"`
	Unassigned  []UserInfo           `json:"unassigned"`
}

func (s *OrgChartService) GetOverview(w http.ResponseWriter, r *http.Request) {
	var depts []schema.Department
	if err := s.db.Order("name asc").Find(&depts).Error; err != nil {
		slog.Error("error listing departments for overview", "error", err)
		http.Error(w, "error building overview", http.StatusInternalServerError)
		return
	}

	response := overviewResponse{Departments: make([]departmentOverview, 0, len(depts))}

	for _, dept := range depts {
		members, err := schema.GetDepartmentMembers(dept.Id, s.db)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		overview := departmentOverview{
			Department: DepartmentRef{Id: dept.Id, Name: dept.Name},
			Managers:   []UserInfo{},
			Employees:  []UserInfo{},
			Total:      len(members),
		}
		for i := range members {
			info := userInfo(*members[i].User, &members[i])
			if members[i].User.IsManager {
				overview.Managers = append(overview.Managers, info)
			} else {
				overview.Employees = append(overview.Employees, info)
			}
		}
		response.Departments = append(response.Departments, overview)
	}

	var loose []schema.UserProfile
	err := s.db.Where("department_id is null").Preload("User").Order("hierarchy_order asc").Find(&loose).Error
	if err != nil {
		slog.Error("error listing unassigned users", "error", err)
		http.Error(w, "error building overview", http.StatusInternalServerError)
		return
	}
	response.Unassigned = make([]UserInfo, 0, len(loose))
	for i := range loose {
		if loose[i].User == nil {
			continue
		}
		response.Unassigned = append(response.Unassigned, userInfo(*loose[i].User, &loose[i]))
	}

	utils.WriteJsonResponse(w, response)
}
