package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"hr_portal/portal/auth"
	"hr_portal/portal/schema"
	"hr_portal/portal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkDepartmentExists(txn *gorm.DB, deptId uuid.UUID) error {
	if _, err := schema.GetDepartment(deptId, txn); err != nil {
		if errors.Is(err, schema.ErrDepartmentNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

// checkViewUser loads the target user and verifies the viewer's department
// scope covers them. NotFound and AccessDenied surface as distinct codes here;
// the org chart mutation endpoint collapses them itself.
func checkViewUser(db *gorm.DB, policy *auth.Policy, viewer schema.User, targetId uuid.UUID) (schema.User, error) {
	target, err := schema.GetUser(targetId, db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return target, CodedError(err, http.StatusNotFound)
		}
		return target, CodedError(err, http.StatusInternalServerError)
	}

	allowed, err := policy.CanViewUser(viewer, target)
	if err != nil {
		return target, CodedError(err, http.StatusInternalServerError)
	}
	if !allowed {
		return target, CodedError(auth.ErrAccessDenied, http.StatusForbidden)
	}

	return target, nil
}

func checkViewDepartment(db *gorm.DB, policy *auth.Policy, viewer schema.User, deptId uuid.UUID) (schema.Department, error) {
	dept, err := schema.GetDepartment(deptId, db)
	if err != nil {
		if errors.Is(err, schema.ErrDepartmentNotFound) {
			return dept, CodedError(err, http.StatusNotFound)
		}
		return dept, CodedError(err, http.StatusInternalServerError)
	}

	allowed, err := policy.CanViewDepartment(viewer, dept.Id)
	if err != nil {
		return dept, CodedError(err, http.StatusInternalServerError)
	}
	if !allowed {
		return dept, CodedError(auth.ErrAccessDenied, http.StatusForbidden)
	}

	return dept, nil
}

func checkDiskUsage(store storage.Storage) error {
	stats, err := store.Usage()
	if err != nil {
		slog.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 20% disk needs to be free or 20Gb (in case the disk is very large)
	threshold := min(stats.TotalBytes/5, 20*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		delta := (threshold - stats.FreeBytes) / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib, please clear %d Mib", used, total, delta), http.StatusInsufficientStorage)
	}
	return nil
}

func checkSufficientStorage(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(store); err != nil {
				slog.Error(err.Error())
				http.Error(w, err.Error(), GetResponseCode(err))
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}
