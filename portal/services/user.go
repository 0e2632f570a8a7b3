package services

import (
	"errors"
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

type UserService struct {
	db *gorm.DB

	storage storage.Storage

	userAuth auth.IdentityProvider

	policy *auth.Policy
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/login", s.EmailLogin)
	if s.userAuth.AllowDirectSignup() {
		r.Post("/signup", s.Signup)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
		r.Get("/list", s.ListUsers)
		r.Get("/{user_id}", s.GetUser)
		r.Get("/{user_id}/picture", s.GetPicture)
		r.Post("/{user_id}/picture", s.UploadPicture)

		r.Group(func(r chi.Router) {
			r.Use(auth.ManagerOnly())

			r.Post("/create", s.CreateUser)
			r.Post("/{user_id}", s.EditUser)
			r.Delete("/{user_id}", s.DeleteUser)
		})
	})

	return r
}

type DepartmentRef struct {
	Id   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type UserInfo struct {
	Id          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	IsManager   bool           `json:"is_manager"`
	PhoneNumber string         `json:"phone_number"`
	JobTitle    string         `json:"job_title"`
	Department  *DepartmentRef `json:"department"`
}

func userInfo(user schema.User, profile *schema.UserProfile) UserInfo {
	info := UserInfo{
		Id:        user.Id,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsManager: user.IsManager,
	}
	if profile != nil {
		info.PhoneNumber = profile.PhoneNumber
		info.JobTitle = profile.JobTitle
		if profile.Department != nil {
			info.Department = &DepartmentRef{Id: profile.Department.Id, Name: profile.Department.Name}
		}
	}
	return info
}

type signupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type signupResponse struct {
	Id uuid.UUID `json:"id"`
}

func createUserErrorCode(err error) int {
	if errors.Is(err, auth.ErrUsernameAlreadyInUse) || errors.Is(err, auth.ErrEmailAlreadyInUse) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Username == "" || params.Email == "" || params.Password == "" {
		http.Error(w, "username, email, and password must be specified", http.StatusUnprocessableEntity)
		return
	}

	userId, err := s.userAuth.CreateUser(auth.NewUserArgs{
		Username:  params.Username,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Password:  params.Password,
		IsManager: false,
	})
	if err != nil {
		http.Error(w, err.Error(), createUserErrorCode(err))
		return
	}

	slog.Info("new user signup", "user_id", userId, "username", params.Username)

	utils.WriteJsonResponse(w, signupResponse{Id: userId})
}

type loginResponse struct {
	Id          uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) EmailLogin(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "basic auth credentials missing or invalid", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrLoginDisabled):
			responseCode = http.StatusForbidden
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{Id: login.UserId, AccessToken: login.AccessToken})
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	profile, err := schema.GetProfile(user.Id, s.db)
	if err != nil && !errors.Is(err, schema.ErrProfileNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var profilePtr *schema.UserProfile
	if err == nil {
		profilePtr = &profile
	}

	utils.WriteJsonResponse(w, userInfo(user, profilePtr))
}

const unassignedFilter = "unassigned"

func (s *UserService) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	visible, err := s.policy.VisibleDepartments(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	superAdmin, err := s.policy.IsSuperAdmin(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Model(&schema.User{}).
		Joins("left join user_profiles on user_profiles.user_id = users.id").
		Preload("Profile").Preload("Profile.Department")

	deptFilter := r.URL.Query().Get("department")
	switch {
	case deptFilter == unassignedFilter:
		if !superAdmin {
			http.Error(w, auth.ErrAccessDenied.Error(), http.StatusForbidden)
			return
		}
		query = query.Where("user_profiles.department_id is null")
	case deptFilter != "":
		deptId, err := uuid.Parse(deptFilter)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid department filter %v", deptFilter), http.StatusBadRequest)
			return
		}
		allowed, err := s.policy.CanViewDepartment(user, deptId)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, auth.ErrAccessDenied.Error(), http.StatusForbidden)
			return
		}
		query = query.Where("user_profiles.department_id = ?", deptId)
	case superAdmin:
		// No department filter, all users are visible.
	default:
		deptIds := make([]uuid.UUID, 0, len(visible))
		for _, dept := range visible {
			deptIds = append(deptIds, dept.Id)
		}
		if len(deptIds) == 0 {
			utils.WriteJsonResponse(w, []UserInfo{})
			return
		}
		query = query.Where("user_profiles.department_id in ?", deptIds)
	}

	switch role := r.URL.Query().Get("role"); role {
	case "":
	case "manager":
		query = query.Where("users.is_manager = ?", true)
	case "employee":
		query = query.Where("users.is_manager = ?", false)
	default:
		http.Error(w, fmt.Sprintf("invalid role filter %v", role), http.StatusBadRequest)
		return
	}

	var users []schema.User
	if err := query.Order("users.username asc").Find(&users).Error; err != nil {
		slog.Error("error listing users", "error", err)
		http.Error(w, "error listing users", http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, userInfo(u, u.Profile))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	targetId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := checkViewUser(s.db, s.policy, user, targetId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	profile, err := schema.GetProfile(target.Id, s.db)
	if err != nil && !errors.Is(err, schema.ErrProfileNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var profilePtr *schema.UserProfile
	if err == nil {
		profilePtr = &profile
	}

	utils.WriteJsonResponse(w, userInfo(target, profilePtr))
}

type createUserRequest struct {
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Password     string     `json:"password"`
	IsManager    bool       `json:"is_manager"`
	DepartmentId *uuid.UUID `json:"department_id"`
	PhoneNumber  string     `json:"phone_number"`
	JobTitle     string     `json:"job_title"`
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Username == "" || params.Email == "" || params.FirstName == "" || params.LastName == "" {
		http.Error(w, "username, email, first_name, and last_name must be specified", http.StatusUnprocessableEntity)
		return
	}
	if params.DepartmentId == nil {
		http.Error(w, "department_id must be specified", http.StatusUnprocessableEntity)
		return
	}

	allowed, err := s.policy.CanViewDepartment(caller, *params.DepartmentId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, auth.ErrAccessDenied.Error(), http.StatusForbidden)
		return
	}
	if err := checkDepartmentExists(s.db, *params.DepartmentId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	userId, err := s.userAuth.CreateUser(auth.NewUserArgs{
		Username:  params.Username,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Password:  params.Password,
		IsManager: params.IsManager,
	})
	if err != nil {
		http.Error(w, err.Error(), createUserErrorCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		profile, err := schema.EnsureProfile(userId, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		updates := map[string]interface{}{
			"department_id": params.DepartmentId,
			"phone_number":  params.PhoneNumber,
			"job_title":     params.JobTitle,
		}
		if err := txn.Model(&schema.UserProfile{}).Where("id = ?", profile.Id).Updates(updates).Error; err != nil {
			slog.Error("error updating profile for new user", "user_id", userId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("created new user", "user_id", userId, "username", params.Username, "created_by", caller.Id)

	utils.WriteJsonResponse(w, signupResponse{Id: userId})
}

type editUserRequest struct {
	Email        *string    `json:"email"`
	FirstName    *string    `json:"first_name"`
	LastName     *string    `json:"last_name"`
	IsManager    *bool      `json:"is_manager"`
	DepartmentId *uuid.UUID `json:"department_id"`
	PhoneNumber  *string    `json:"phone_number"`
	JobTitle     *string    `json:"job_title"`
}

func (s *UserService) EditUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	targetId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params editUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	target, err := checkViewUser(s.db, s.policy, caller, targetId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if params.DepartmentId != nil {
		allowed, err := s.policy.CanViewDepartment(caller, *params.DepartmentId)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, auth.ErrAccessDenied.Error(), http.StatusForbidden)
			return
		}
		if err := checkDepartmentExists(s.db, *params.DepartmentId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		userUpdates := map[string]interface{}{}
		if params.Email != nil {
			if strings.TrimSpace(*params.Email) == "" {
				return CodedError(errors.New("email cannot be empty"), http.StatusUnprocessableEntity)
			}
			userUpdates["email"] = *params.Email
		}
		if params.FirstName != nil {
			userUpdates["first_name"] = *params.FirstName
		}
		if params.LastName != nil {
			userUpdates["last_name"] = *params.LastName
		}
		if params.IsManager != nil {
			userUpdates["is_manager"] = *params.IsManager
		}
		if len(userUpdates) > 0 {
			if err := txn.Model(&schema.User{}).Where("id = ?", target.Id).Updates(userUpdates).Error; err != nil {
				slog.Error("error updating user", "user_id", target.Id, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		profileUpdates := map[string]interface{}{}
		if params.DepartmentId != nil {
			profileUpdates["department_id"] = *params.DepartmentId
			// moving departments invalidates any reporting line in the old one
			profileUpdates["reports_to_id"] = nil
		}
		if params.PhoneNumber != nil {
			profileUpdates["phone_number"] = *params.PhoneNumber
		}
		if params.JobTitle != nil {
			profileUpdates["job_title"] = *params.JobTitle
		}
		if len(profileUpdates) > 0 {
			profile, err := schema.EnsureProfile(target.Id, txn)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if err := txn.Model(&schema.UserProfile{}).Where("id = ?", profile.Id).Updates(profileUpdates).Error; err != nil {
				slog.Error("error updating profile", "user_id", target.Id, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// pictureTarget resolves the user whose picture is being accessed. Users can
// always access their own, managers can access anyone in their scope.
func (s *UserService) pictureTarget(r *http.Request) (schema.User, error) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		return schema.User{}, CodedError(err, http.StatusUnauthorized)
	}

	targetId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		return schema.User{}, CodedError(err, http.StatusBadRequest)
	}

	if targetId == caller.Id {
		return caller, nil
	}
	return checkViewUser(s.db, s.policy, caller, targetId)
}

func (s *UserService) UploadPicture(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	target, err := s.pictureTarget(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if target.Id != caller.Id && !caller.IsManager {
		http.Error(w, auth.ErrAccessDenied.Error(), http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(10 * 1024 * 1024); err != nil {
		http.Error(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("picture")
	if err != nil {
		http.Error(w, "picture file must be provided", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	var profile schema.UserProfile
	err = s.db.Transaction(func(txn *gorm.DB) error {
		var err error
		profile, err = schema.EnsureProfile(target.Id, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	path := storage.ProfilePicturePath(profile.Id, filepath.Base(header.Filename))
	if err := s.storage.Write(path, file); err != nil {
		slog.Error("error saving profile picture", "user_id", target.Id, "error", err)
		http.Error(w, "error saving picture", http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := txn.Model(&schema.UserProfile{}).Where("id = ?", profile.Id).Update("picture", path).Error; err != nil {
			slog.Error("error updating profile picture", "user_id", target.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if profile.Picture != "" && profile.Picture != path {
		if err := s.storage.Delete(profile.Picture); err != nil {
			slog.Error("error deleting old profile picture", "user_id", target.Id, "error", err)
		}
	}

	utils.WriteSuccess(w)
}

func (s *UserService) GetPicture(w http.ResponseWriter, r *http.Request) {
	target, err := s.pictureTarget(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	profile, err := schema.GetProfile(target.Id, s.db)
	if err != nil || profile.Picture == "" {
		http.Error(w, "user has no profile picture", http.StatusNotFound)
		return
	}

	reader, err := s.storage.Read(profile.Picture)
	if err != nil {
		slog.Error("error reading profile picture", "user_id", target.Id, "error", err)
		http.Error(w, "error reading picture", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(profile.Picture)))
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("error streaming profile picture", "user_id", target.Id, "error", err)
	}
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	targetId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if targetId == caller.Id {
		http.Error(w, "cannot delete your own account", http.StatusBadRequest)
		return
	}

	target, err := checkViewUser(s.db, s.policy, caller, targetId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteUser(target.Id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var assets []string
	err = s.db.Transaction(func(txn *gorm.DB) error {
		var err error
		assets, err = schema.PurgeUser(target.Id, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	for _, asset := range assets {
		if err := s.storage.Delete(asset); err != nil {
			slog.Error("error deleting kpi asset for removed user", "user_id", target.Id, "path", asset, "error", err)
		}
	}

	slog.Info("deleted user", "user_id", target.Id, "deleted_by", caller.Id)

	utils.WriteSuccess(w)
}
