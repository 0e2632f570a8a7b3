package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrKPIFileNotFound    = errors.New("kpi file not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetDepartment(deptId uuid.UUID, db *gorm.DB) (Department, error) {
	var dept Department

	result := db.First(&dept, "id = ?", deptId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return dept, ErrDepartmentNotFound
		}
		slog.Error("sql error in get department", "department_id", deptId, "error", result.Error)
		return dept, ErrDbAccessFailed
	}

	return dept, nil
}

// GetProfile is a plain lookup: a user without a profile row yields
// ErrProfileNotFound. Callers that want get-or-create semantics must call
// EnsureProfile explicitly.
func GetProfile(userId uuid.UUID, db *gorm.DB) (UserProfile, error) {
	var profile UserProfile

	result := db.Preload("Department").First(&profile, "user_id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return profile, ErrProfileNotFound
		}
		slog.Error("sql error in get profile", "user_id", userId, "error", result.Error)
		return profile, ErrDbAccessFailed
	}

	return profile, nil
}

// EnsureProfile creates an empty profile (no department, no manager chain) for
// the user if one does not exist yet. Boundary handlers invoke this before
// working with a user's profile so that reads never mutate implicitly.
func EnsureProfile(userId uuid.UUID, db *gorm.DB) (UserProfile, error) {
	profile, err := GetProfile(userId, db)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return UserProfile{}, err
	}

	profile = UserProfile{Id: uuid.New(), UserId: userId, HierarchyOrder: DefaultHierarchyOrder}
	result := db.Create(&profile)
	if result.Error != nil {
		slog.Error("sql error creating missing profile", "user_id", userId, "error", result.Error)
		return UserProfile{}, ErrDbAccessFailed
	}

	return profile, nil
}

func GetKPIFile(fileId uuid.UUID, db *gorm.DB) (KPIFile, error) {
	var file KPIFile

	result := db.First(&file, "id = ?", fileId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return file, ErrKPIFileNotFound
		}
		slog.Error("sql error in get kpi file", "file_id", fileId, "error", result.Error)
		return file, ErrDbAccessFailed
	}

	return file, nil
}

// PurgeUser removes a user along with their profile and kpi file rows. Other
// members reporting to the purged user are detached rather than removed. The
// returned paths are the user's stored assets (kpi files, profile picture),
// the caller is responsible for deleting them from storage once the
// transaction commits.
func PurgeUser(userId uuid.UUID, txn *gorm.DB) ([]string, error) {
	var assets []string

	var profile UserProfile
	result := txn.Limit(1).Find(&profile, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error loading profile for purge", "user_id", userId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	if result.RowsAffected != 0 {
		if profile.Picture != "" {
			assets = append(assets, profile.Picture)
		}
		err := txn.Model(&UserProfile{}).Where("reports_to_id = ?", profile.Id).Update("reports_to_id", nil).Error
		if err != nil {
			slog.Error("sql error detaching reports", "user_id", userId, "error", err)
			return nil, ErrDbAccessFailed
		}
		if err := txn.Delete(&UserProfile{Id: profile.Id}).Error; err != nil {
			slog.Error("sql error deleting profile", "user_id", userId, "error", err)
			return nil, ErrDbAccessFailed
		}
	}

	var files []KPIFile
	err := txn.Where("employee_id = ? or uploaded_by_id = ?", userId, userId).Find(&files).Error
	if err != nil {
		slog.Error("sql error listing kpi files for purge", "user_id", userId, "error", err)
		return nil, ErrDbAccessFailed
	}
	for _, file := range files {
		assets = append(assets, file.File)
		if err := txn.Delete(&KPIFile{Id: file.Id}).Error; err != nil {
			slog.Error("sql error deleting kpi file row", "file_id", file.Id, "error", err)
			return nil, ErrDbAccessFailed
		}
	}

	if err := txn.Delete(&User{Id: userId}).Error; err != nil {
		slog.Error("sql error deleting user", "user_id", userId, "error", err)
		return nil, ErrDbAccessFailed
	}

	return assets, nil
}

func GetDepartmentMembers(deptId uuid.UUID, db *gorm.DB) ([]UserProfile, error) {
	var members []UserProfile
	result := db.Preload("User").Preload("Department").Where("department_id = ?", deptId).Order("hierarchy_order asc").Find(&members)
	if result.Error != nil {
		slog.Error("sql error listing department members", "department_id", deptId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	return members, nil
}
