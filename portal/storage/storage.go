package storage

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	Usage() (UsageStats, error)

	Location() string
}

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

func KPIFilePath(fileId uuid.UUID, filename string) string {
	return filepath.Join("kpi_files", fileId.String(), filename)
}

func DepartmentLogoPath(deptId uuid.UUID, filename string) string {
	return filepath.Join("dept_logos", deptId.String(), filename)
}

func ProfilePicturePath(profileId uuid.UUID, filename string) string {
	return filepath.Join("profile_pics", profileId.String(), filename)
}
