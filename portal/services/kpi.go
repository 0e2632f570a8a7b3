package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"hr_portal/portal/auth"
	"hr_portal/portal/schema"
	"hr_portal/portal/storage"
	"hr_portal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KPIService struct {
	db *gorm.DB

	storage storage.Storage

	userAuth auth.IdentityProvider

	policy *auth.Policy
}

func (s *KPIService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/employee/{user_id}", s.ListQuarters)
	r.Get("/file/{file_id}", s.DownloadFile)

	r.Group(func(r chi.Router) {
		r.Use(auth.ManagerOnly())

		r.With(checkSufficientStorage(s.storage)).Post("/employee/{user_id}", s.UploadFile)
		r.Delete("/file/{file_id}", s.DeleteFile)
	})

	return r
}

var quarterLabels = map[string]string{
	schema.Q1: "Q1 (Jan - Mar)",
	schema.Q2: "Q2 (Apr - Jun)",
	schema.Q3: "Q3 (Jul - Sep)",
	schema.Q4: "Q4 (Oct - Dec)",
}

const maxKPIUploadBytes = 50 * 1024 * 1024

type KPIFileInfo struct {
	Id         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	Quarter    string    `json:"quarter"`
	Year       int       `json:"year"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func kpiFileInfo(file schema.KPIFile) KPIFileInfo {
	return KPIFileInfo{
		Id:         file.Id,
		Title:      file.Title,
		Filename:   filepath.Base(file.File),
		Quarter:    file.Quarter,
		Year:       file.Year,
		UploadedBy: file.UploadedById,
		UploadedAt: file.UploadedAt,
	}
}

func (s *KPIService) UploadFile(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	employeeId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	employee, err := checkViewUser(s.db, s.policy, caller, employeeId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := r.ParseMultipartForm(maxKPIUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return
	}

	quarter := r.FormValue("quarter")
	if err := schema.CheckValidQuarter(quarter); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	year, err := utils.FormValueInt(r, "year")
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if year < 2000 || year > 2100 {
		http.Error(w, fmt.Sprintf("invalid year %d", year), http.StatusUnprocessableEntity)
		return
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file must be provided", http.StatusUnprocessableEntity)
		return
	}
	defer upload.Close()

	newFile := schema.KPIFile{
		Id:           uuid.New(),
		EmployeeId:   employee.Id,
		UploadedById: caller.Id,
		Title:        fmt.Sprintf("%v %v %v", employee.FullName(), quarter, year),
		Quarter:      quarter,
		Year:         year,
		UploadedAt:   time.Now().UTC(),
	}
	newFile.File = storage.KPIFilePath(newFile.Id, filepath.Base(header.Filename))

	// One file per employee/quarter/year slot. Replacing clears the old row
	// and its stored asset before the new row is inserted.
	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existing []schema.KPIFile
		err := txn.Where("employee_id = ? and quarter = ? and year = ?", employee.Id, quarter, year).Find(&existing).Error
		if err != nil {
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		for _, old := range existing {
			if err := s.storage.Delete(old.File); err != nil {
				slog.Error("error deleting replaced kpi file asset", "kpi_file_id", old.Id, "error", err)
			}
			if err := txn.Delete(&schema.KPIFile{Id: old.Id}).Error; err != nil {
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if err := s.storage.Write(newFile.File, upload); err != nil {
			slog.Error("error saving kpi file", "path", newFile.File, "error", err)
			return CodedError(errors.New("error saving uploaded file"), http.StatusInternalServerError)
		}

		if err := txn.Create(&newFile).Error; err != nil {
			slog.Error("error inserting kpi file record", "kpi_file_id", newFile.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	slog.Info("uploaded kpi file", "kpi_file_id", newFile.Id, "employee_id", employee.Id, "quarter", quarter, "year", year, "uploaded_by", caller.Id)

	utils.WriteJsonResponse(w, kpiFileInfo(newFile))
}

type quarterEntry struct {
	Quarter string       `json:"quarter"`
	Label   string       `json:"label"`
	File    *KPIFileInfo `json:"file"`
}

type listQuartersResponse struct {
	EmployeeId uuid.UUID      `json:"employee_id"`
	Year       int            `json:"year"`
	Quarters   []quarterEntry `json:"quarters"`
}

func (s *KPIService) ListQuarters(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	employeeId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	employee, err := checkViewUser(s.db, s.policy, caller, employeeId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	year, err := utils.QueryParamInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var files []schema.KPIFile
	err = s.db.Where("employee_id = ? and year = ?", employee.Id, year).Find(&files).Error
	if err != nil {
		slog.Error("error listing kpi files", "employee_id", employee.Id, "error", err)
		http.Error(w, "error listing kpi files", http.StatusInternalServerError)
		return
	}

	bySlot := make(map[string]schema.KPIFile, len(files))
	for _, file := range files {
		bySlot[file.Quarter] = file
	}

	response := listQuartersResponse{EmployeeId: employee.Id, Year: year}
	for _, q := range schema.Quarters {
		entry := quarterEntry{Quarter: q, Label: quarterLabels[q]}
		if file, ok := bySlot[q]; ok {
			info := kpiFileInfo(file)
			entry.File = &info
		}
		response.Quarters = append(response.Quarters, entry)
	}

	utils.WriteJsonResponse(w, response)
}

func (s *KPIService) getViewableFile(r *http.Request) (schema.KPIFile, error) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		return schema.KPIFile{}, CodedError(err, http.StatusUnauthorized)
	}

	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		return schema.KPIFile{}, CodedError(err, http.StatusBadRequest)
	}

	file, err := schema.GetKPIFile(fileId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrKPIFileNotFound) {
			return schema.KPIFile{}, CodedError(err, http.StatusNotFound)
		}
		return schema.KPIFile{}, CodedError(err, http.StatusInternalServerError)
	}

	if _, err := checkViewUser(s.db, s.policy, caller, file.EmployeeId); err != nil {
		return schema.KPIFile{}, err
	}

	return file, nil
}

func (s *KPIService) DownloadFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.getViewableFile(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	reader, err := s.storage.Read(file.File)
	if err != nil {
		slog.Error("error reading kpi file", "kpi_file_id", file.Id, "error", err)
		http.Error(w, "error reading kpi file", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(file.File)))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("error streaming kpi file", "kpi_file_id", file.Id, "error", err)
	}
}

func (s *KPIService) DeleteFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.getViewableFile(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&schema.KPIFile{Id: file.Id}).Error; err != nil {
			slog.Error("error deleting kpi file record", "kpi_file_id", file.Id, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := s.storage.Delete(file.File); err != nil {
		slog.Error("error deleting kpi file asset", "kpi_file_id", file.Id, "error", err)
	}

	utils.WriteSuccess(w)
}
