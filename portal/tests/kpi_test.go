package tests

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"hr_portal/portal/schema"
)

func employeeId(t *testing.T, c *client) string {
	t.Helper()
	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	return info.Id.String()
}

type quartersResponse struct {
	EmployeeId string `json:"employee_id"`
	Year       int    `json:"year"`
	Quarters   []struct {
		Quarter string `json:"quarter"`
		Label   string `json:"label"`
		File    *struct {
			Id       string `json:"id"`
			Title    string `json:"title"`
			Filename string `json:"filename"`
		} `json:"file"`
	} `json:"quarters"`
}

func listQuarters(t *testing.T, c *client, employeeId string, year int) quartersResponse {
	t.Helper()
	var res quartersResponse
	err := c.Get(fmt.Sprintf("/kpi/employee/%v?year=%d", employeeId, year)).Do(&res)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestKPIUploadAndList(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := env.newManager(&admin, "boss", deptId)
	if err != nil {
		t.Fatal(err)
	}
	emp, err := env.newEmployee(&admin, "alice", deptId)
	if err != nil {
		t.Fatal(err)
	}
	empId := employeeId(t, &emp)

	if err := mgr.uploadKPIFile(empId, "Q1", 2026, "report.pdf", "q1 results"); err != nil {
		t.Fatal(err)
	}

	res := listQuarters(t, &mgr, empId, 2026)
	if len(res.Quarters) != 4 {
		t.Fatalf("expected 4 quarters, got %d", len(res.Quarters))
	}
	if res.Quarters[0].Quarter != "Q1" || res.Quarters[0].Label != "Q1 (Jan - Mar)" {
		t.Fatalf("invalid quarter entry %v", res.Quarters[0])
	}
	if res.Quarters[0].File == nil || res.Quarters[0].File.Filename != "report.pdf" {
		t.Fatalf("uploaded file missing from quarter: %v", res.Quarters[0].File)
	}
	if res.Quarters[0].File.Title != "alice employee Q1 2026" {
		t.Fatalf("invalid title %v", res.Quarters[0].File.Title)
	}
	for _, q := range res.Quarters[1:] {
		if q.File != nil {
			t.Fatalf("quarter %v should be empty", q.Quarter)
		}
	}

	// Other years are empty.
	res = listQuarters(t, &mgr, empId, 2025)
	for _, q := range res.Quarters {
		if q.File != nil {
			t.Fatalf("quarter %v of other year should be empty", q.Quarter)
		}
	}

	// Employees can see their own files.
	res = listQuarters(t, &emp, empId, 2026)
	if res.Quarters[0].File == nil {
		t.Fatal("employee should see own kpi files")
	}
}

func TestKPIUploadValidation(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}
	otherDeptId, err := admin.createDepartment("finance", "")
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := env.newManager(&admin, "boss", deptId)
	if err != nil {
		t.Fatal(err)
	}
	otherMgr, err := env.newManager(&admin, "finboss", otherDeptId)
	if err != nil {
		t.Fatal(err)
	}
	emp, err := env.newEmployee(&admin, "alice", deptId)
	if err != nil {
		t.Fatal(err)
	}
	empId := employeeId(t, &emp)

	err = mgr.uploadKPIFile(empId, "Q5", 2026, "report.pdf", "data")
	if err == nil || !strings.Contains(err.Error(), "invalid quarter") {
		t.Fatalf("invalid quarter should fail: %v", err)
	}

	err = mgr.uploadKPIFile(empId, "Q1", 1990, "report.pdf", "data")
	if err == nil || !strings.Contains(err.Error(), "invalid year") {
		t.Fatalf("invalid year should fail: %v", err)
	}

	err = emp.uploadKPIFile(empId, "Q1", 2026, "report.pdf", "data")
	if err == nil || !strings.Contains(err.Error(), "not a manager") {
		t.Fatalf("employees cannot upload: %v", err)
	}

	err = otherMgr.uploadKPIFile(empId, "Q1", 2026, "report.pdf", "data")
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("managers cannot upload outside their department: %v", err)
	}

	res := listQuarters(t, &mgr, empId, 2026)
	for _, q := range res.Quarters {
		if q.File != nil {
			t.Fatal("no upload should have succeeded")
		}
	}
}

func TestKPIReplaceDeletesOldFile(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := env.newManager(&admin, "boss", deptId)
	if err != nil {
		t.Fatal(err)
	}
	emp, err := env.newEmployee(&admin, "alice", deptId)
	if err != nil {
		t.Fatal(err)
	}
	empId := employeeId(t, &emp)

	if err := mgr.uploadKPIFile(empId, "Q2", 2026, "old.pdf", "old content"); err != nil {
		t.Fatal(err)
	}

	var oldRecord schema.KPIFile
	if err := env.db.First(&oldRecord, "quarter = ? and year = ?", "Q2", 2026).Error; err != nil {
		t.Fatal(err)
	}
	exists, err := env.storage.Exists(oldRecord.File)
	if err != nil || !exists {
		t.Fatalf("old asset should exist: %v %v", exists, err)
	}

	if err := mgr.uploadKPIFile(empId, "Q2", 2026, "new.pdf", "new content"); err != nil {
		t.Fatal(err)
	}

	var records []schema.KPIFile
	if err := env.db.Find(&records, "quarter = ? and year = ?", "Q2", 2026).Error; err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("slot should hold exactly one record, got %d", len(records))
	}

	exists, err = env.storage.Exists(oldRecord.File)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("replaced asset should be deleted")
	}

	reader, err := env.storage.Read(records[0].File)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new content" {
		t.Fatalf("unexpected content %v", string(content))
	}
}

func TestKPIDownloadAndDelete(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := env.newManager(&admin, "boss", deptId)
	if err != nil {
		t.Fatal(err)
	}
	emp, err := env.newEmployee(&admin, "alice", deptId)
	if err != nil {
		t.Fatal(err)
	}
	empId := employeeId(t, &emp)

	if err := mgr.uploadKPIFile(empId, "Q3", 2026, "report.pdf", "the report"); err != nil {
		t.Fatal(err)
	}

	res := listQuarters(t, &mgr, empId, 2026)
	var fileId string
	for _, q := range res.Quarters {
		if q.File != nil {
			fileId = q.File.Id
		}
	}
	if fileId == "" {
		t.Fatal("uploaded file missing")
	}

	req := emp.Get(fmt.Sprintf("/kpi/file/%v", fileId))
	body := new(strings.Builder)
	if err := downloadTo(req, body); err != nil {
		t.Fatal(err)
	}
	if body.String() != "the report" {
		t.Fatalf("unexpected download content %v", body.String())
	}

	err = emp.Delete(fmt.Sprintf("/kpi/file/%v", fileId)).Do(nil)
	if err == nil || !strings.Contains(err.Error(), "not a manager") {
		t.Fatalf("employees cannot delete kpi files: %v", err)
	}

	if err := mgr.Delete(fmt.Sprintf("/kpi/file/%v", fileId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	res = listQuarters(t, &mgr, empId, 2026)
	for _, q := range res.Quarters {
		if q.File != nil {
			t.Fatal("deleted file should be gone")
		}
	}

	err = mgr.Get(fmt.Sprintf("/kpi/file/%v", fileId)).Do(nil)
	if err == nil {
		t.Fatal("download of deleted file should fail")
	}
}
