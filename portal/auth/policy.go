package auth

import (
	"errors"
	"log/slog"

	"hr_portal/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSuperAdminDepartment is the department whose members can see and
// manage every other department.
const DefaultSuperAdminDepartment = "Magnum Opus"

var ErrAccessDenied = errors.New("access denied")

// Policy answers the row-level visibility questions for the portal: who is a
// super admin, which departments a manager may see, and which users. All
// methods are pure reads; a user without a profile row is treated as having
// no department, never as an error.
type Policy struct {
	db             *gorm.DB
	superAdminDept string
}

func NewPolicy(db *gorm.DB, superAdminDept string) *Policy {
	if superAdminDept == "" {
		superAdminDept = DefaultSuperAdminDepartment
	}
	return &Policy{db: db, superAdminDept: superAdminDept}
}

func (p *Policy) departmentOf(userId uuid.UUID) (*schema.Department, error) {
	var profile schema.UserProfile
	result := p.db.Preload("Department").Limit(1).Find(&profile, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error resolving user department", "user_id", userId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return profile.Department, nil
}

func (p *Policy) IsSuperAdmin(user schema.User) (bool, error) {
	dept, err := p.departmentOf(user.Id)
	if err != nil {
		return false, err
	}
	return dept != nil && dept.Name == p.superAdminDept, nil
}

func (p *Policy) VisibleDepartments(user schema.User) ([]schema.Department, error) {
	super, err := p.IsSuperAdmin(user)
	if err != nil {
		return nil, err
	}

	if super {
		var depts []schema.Department
		result := p.db.Order("name asc").Find(&depts)
		if result.Error != nil {
			slog.Error("sql error listing departments", "error", result.Error)
			return nil, schema.ErrDbAccessFailed
		}
		return depts, nil
	}

	dept, err := p.departmentOf(user.Id)
	if err != nil {
		return nil, err
	}
	if dept == nil {
		return []schema.Department{}, nil
	}
	return []schema.Department{*dept}, nil
}

func (p *Policy) CanViewDepartment(user schema.User, deptId uuid.UUID) (bool, error) {
	super, err := p.IsSuperAdmin(user)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	dept, err := p.departmentOf(user.Id)
	if err != nil {
		return false, err
	}
	return dept != nil && dept.Id == deptId, nil
}

func (p *Policy) CanViewUser(viewer, target schema.User) (bool, error) {
	super, err := p.IsSuperAdmin(viewer)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	viewerDept, err := p.departmentOf(viewer.Id)
	if err != nil {
		return false, err
	}
	if viewerDept == nil {
		return false, nil
	}

	targetDept, err := p.departmentOf(target.Id)
	if err != nil {
		return false, err
	}
	return targetDept != nil && targetDept.Id == viewerDept.Id, nil
}
