package tests

import (
	"fmt"
	"strings"
	"testing"

	"hr_portal/portal/services"
)

func TestCreateDepartment(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "builds things")
	if err != nil {
		t.Fatal(err)
	}
	if deptId == "" {
		t.Fatal("expected department id")
	}

	_, err = admin.createDepartment("engineering", "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate department name should fail: %v", err)
	}

	_, err = admin.createDepartment("  ", "")
	if err == nil {
		t.Fatal("blank department name should fail")
	}
}

func TestDepartmentVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	engId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}
	finId, err := admin.createDepartment("finance", "")
	if err != nil {
		t.Fatal(err)
	}

	// Admin is in the super admin department and sees everything.
	depts, err := admin.listDepartments()
	if err != nil {
		t.Fatal(err)
	}
	if len(depts) != 3 {
		t.Fatalf("expected 3 departments, got %d", len(depts))
	}

	mgr, err := env.newManager(&admin, "engmgr", engId)
	if err != nil {
		t.Fatal(err)
	}

	depts, err = mgr.listDepartments()
	if err != nil {
		t.Fatal(err)
	}
	if len(depts) != 1 || depts[0].Name != "engineering" {
		t.Fatalf("manager should only see own department: %v", depts)
	}

	err = mgr.Get(fmt.Sprintf("/department/%v", finId)).Do(nil)
	if err == nil {
		t.Fatal("manager should not see other departments")
	}

	var detail map[string]interface{}
	err = mgr.Get(fmt.Sprintf("/department/%v", engId)).Do(&detail)
	if err != nil {
		t.Fatal(err)
	}
	if detail["name"] != "engineering" {
		t.Fatalf("invalid detail %v", detail)
	}
}

func TestEditDepartmentBranding(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]string{"brand_primary": "#112233", "description": "updated"}
	err = admin.Post(fmt.Sprintf("/department/%v", deptId)).Json(body).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	body = map[string]string{"brand_hover": "red"}
	err = admin.Post(fmt.Sprintf("/department/%v", deptId)).Json(body).Do(nil)
	if err == nil {
		t.Fatal("invalid color should be rejected")
	}

	depts, err := admin.listDepartments()
	if err != nil {
		t.Fatal(err)
	}
	var eng *services.DepartmentInfo
	for i := range depts {
		if depts[i].Name == "engineering" {
			eng = &depts[i]
		}
	}
	if eng == nil {
		t.Fatal("department missing from list")
	}
	if eng.BrandPrimary != "#112233" || eng.Description != "updated" {
		t.Fatalf("edits not applied: %v", eng)
	}
	if eng.BrandHover == "red" {
		t.Fatal("rejected edit should not be applied")
	}
}

func TestDeleteDepartmentCascades(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := env.newManager(&admin, "engmgr", deptId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "emp1", deptId); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "emp2", deptId); err != nil {
		t.Fatal(err)
	}

	err = mgr.Delete(fmt.Sprintf("/department/%v", deptId)).Do(nil)
	if err == nil {
		t.Fatal("delete without confirm=true should fail")
	}

	var res map[string]interface{}
	err = mgr.Delete(fmt.Sprintf("/department/%v?confirm=true", deptId)).Do(&res)
	if err != nil {
		t.Fatal(err)
	}
	if res["members_deleted"].(float64) != 2 {
		t.Fatalf("expected 2 members deleted, got %v", res["members_deleted"])
	}

	// The caller survives the deletion and keeps their account.
	info, err := mgr.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Department != nil {
		t.Fatal("caller should be detached from the deleted department")
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "emp1@mail.com", Password: "emp1_password"})
	if err == nil {
		t.Fatal("members of deleted department should be removed")
	}
}
