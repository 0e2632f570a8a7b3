package services

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"hr_portal/portal/auth"
	"hr_portal/portal/schema"
	"hr_portal/portal/storage"
	"hr_portal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DepartmentService struct {
	db *gorm.DB

	storage storage.Storage

	userAuth auth.IdentityProvider

	policy *auth.Policy
}

func (s *DepartmentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/list", s.ListDepartments)
	r.Get("/{department_id}", s.GetDepartment)
	r.Get("/{department_id}/logo", s.GetLogo)

	r.Group(func(r chi.Router) {
		r.Use(auth.ManagerOnly())

		r.Post("/create", s.CreateDepartment)
		r.Post("/{department_id}", s.EditDepartment)
		r.Post("/{department_id}/logo", s.UploadLogo)
		r.Delete("/{department_id}", s.DeleteDepartment)
	})

	return r
}

type DepartmentInfo struct {
	Id           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	BrandPrimary string    `json:"brand_primary"`
	BrandHover   string    `json:"brand_hover"`
	BrandAccent  string    `json:"brand_accent"`
	HasLogo      bool      `json:"has_logo"`
	MemberCount  int64     `json:"member_count"`
}

func (s *DepartmentService) departmentInfo(dept schema.Department) (DepartmentInfo, error) {
	var count int64
	if err := s.db.Model(&schema.UserProfile{}).Where("department_id = ?", dept.Id).Count(&count).Error; err != nil {
		return DepartmentInfo{}, schema.ErrDbAccessFailed
	}
	return DepartmentInfo{
		Id:           dept.Id,
		Name:         dept.Name,
		Description:  dept.Description,
		BrandPrimary: dept.BrandPrimary,
		BrandHover:   dept.BrandHover,
		BrandAccent:  dept.BrandAccent,
		HasLogo:      dept.Logo != "",
		MemberCount:  count,
	}, nil
}

func (s *DepartmentService) ListDepartments(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	depts, err := s.policy.VisibleDepartments(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]DepartmentInfo, 0, len(depts))
	for _, dept := range depts {
		info, err := s.departmentInfo(dept)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

type departmentDetail struct {
	DepartmentInfo
	Members []UserInfo `json:"members"`
}

func (s *DepartmentService) GetDepartment(w http.ResponseWriter, r *http.Request) {
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

	info, err := s.departmentInfo(dept)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	members, err := schema.GetDepartmentMembers(dept.Id, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	detail := departmentDetail{DepartmentInfo: info, Members: make([]UserInfo, 0, len(members))}
	for i := range members {
		detail.Members = append(detail.Members, userInfo(*members[i].User, &members[i]))
	}

	utils.WriteJsonResponse(w, detail)
}

type createDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createDepartmentResponse struct {
	Id uuid.UUID `json:"id"`
}

func (s *DepartmentService) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createDepartmentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		http.Error(w, "department name must be specified", http.StatusUnprocessableEntity)
		return
	}

	dept := schema.Department{
		Id:          uuid.New(),
		Name:        name,
		Description: params.Description,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existing int64
		if err := txn.Model(&schema.Department{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if existing > 0 {
			return CodedError(fmt.Errorf("department with name %v already exists", name), http.StatusConflict)
		}
		if err := txn.Create(&dept).Error; err != nil {
			slog.Error("error creating department", "name", name, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("created department", "department_id", dept.Id, "name", name, "created_by", user.Id)

	utils.WriteJsonResponse(w, createDepartmentResponse{Id: dept.Id})
}

type editDepartmentRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	BrandPrimary *string `json:"brand_primary"`
	BrandHover   *string `json:"brand_hover"`
	BrandAccent  *string `json:"brand_accent"`
}

func validBrandColor(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	for _, c := range color[1:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (s *DepartmentService) EditDepartment(w http.ResponseWriter, r *http.Request) {
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

	var params editDepartmentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	dept, err := checkViewDepartment(s.db, s.policy, user, deptId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			http.Error(w, "department name cannot be empty", http.StatusUnprocessableEntity)
			return
		}
		updates["name"] = name
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	for field, color := range map[string]*string{
		"brand_primary": params.BrandPrimary,
		"brand_hover":   params.BrandHover,
		"brand_accent":  params.BrandAccent,
	} {
		if color == nil {
			continue
		}
		if !validBrandColor(*color) {
			http.Error(w, fmt.Sprintf("invalid color %v, expected format #rrggbb", *color), http.StatusUnprocessableEntity)
			return
		}
		updates[field] = *color
	}

	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if newName, ok := updates["name"]; ok && newName != dept.Name {
			var existing int64
			if err := txn.Model(&schema.Department{}).Where("name = ? and id != ?", newName, dept.Id).Count(&existing).Error; err != nil {
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if existing > 0 {
				return CodedError(fmt.Errorf("department with name %v already exists", newName), http.StatusConflict)
			}
		}
		if err := txn.Model(&schema.Department{}).Where("id = ?", dept.Id).Updates(updates).Error; err != nil {
			slog.Error("error updating department", "department_id", dept.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *DepartmentService) UploadLogo(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(10 * 1024 * 1024); err != nil {
		http.Error(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("logo")
	if err != nil {
		http.Error(w, "logo file must be provided", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	path := storage.DepartmentLogoPath(dept.Id, filepath.Base(header.Filename))
	if err := s.storage.Write(path, file); err != nil {
		slog.Error("error saving department logo", "department_id", dept.Id, "error", err)
		http.Error(w, "error saving logo", http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := txn.Model(&schema.Department{}).Where("id = ?", dept.Id).Update("logo", path).Error; err != nil {
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if dept.Logo != "" && dept.Logo != path {
		if err := s.storage.Delete(dept.Logo); err != nil {
			slog.Error("error deleting old department logo", "department_id", dept.Id, "error", err)
		}
	}

	utils.WriteSuccess(w)
}

func (s *DepartmentService) GetLogo(w http.ResponseWriter, r *http.Request) {
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

	if dept.Logo == "" {
		http.Error(w, "department has no logo", http.StatusNotFound)
		return
	}

	reader, err := s.storage.Read(dept.Logo)
	if err != nil {
		slog.Error("error reading department logo", "department_id", dept.Id, "error", err)
		http.Error(w, "error reading logo", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(dept.Logo)))
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("error streaming department logo", "department_id", dept.Id, "error", err)
	}
}

func (s *DepartmentService) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
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

	if r.URL.Query().Get("confirm") != "true" {
		http.Error(w, "department deletion requires confirm=true", http.StatusBadRequest)
		return
	}

	dept, err := checkViewDepartment(s.db, s.policy, user, deptId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var deleted int
	var assets []string
	err = s.db.Transaction(func(txn *gorm.DB) error {
		members, err := schema.GetDepartmentMembers(dept.Id, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		for _, member := range members {
			// The caller survives their own department's deletion.
			if member.UserId == user.Id {
				continue
			}
			memberAssets, err := schema.PurgeUser(member.UserId, txn)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			assets = append(assets, memberAssets...)
			deleted++
		}

		// Detach any remaining profiles, the caller's included, before the
		// department row goes.
		detach := map[string]interface{}{"department_id": nil, "reports_to_id": nil}
		if err := txn.Model(&schema.UserProfile{}).Where("department_id = ?", dept.Id).Updates(detach).Error; err != nil {
			slog.Error("error detaching surviving profiles", "department_id", dept.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := txn.Delete(&schema.Department{Id: dept.Id}).Error; err != nil {
			slog.Error("error deleting department", "department_id", dept.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	for _, asset := range assets {
		if err := s.storage.Delete(asset); err != nil {
			slog.Error("error deleting kpi asset for removed member", "path", asset, "error", err)
		}
	}

	if dept.Logo != "" {
		if err := s.storage.Delete(dept.Logo); err != nil {
			slog.Error("error deleting department logo", "department_id", dept.Id, "error", err)
		}
	}

	slog.Info("deleted department", "department_id", dept.Id, "name", dept.Name, "members_deleted", deleted, "deleted_by", user.Id)

	utils.WriteJsonResponse(w, map[string]interface{}{
		"status":          "success",
		"members_deleted": deleted,
	})
}
