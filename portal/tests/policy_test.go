package tests

import (
	"fmt"
	"strings"
	"testing"
)

func TestSuperAdminSeesAllDepartments(t *testing.T) {
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

	if _, err := env.newEmployee(&admin, "alice", engId); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "bob", finId); err != nil {
		t.Fatal(err)
	}

	// Unfiltered list from the super admin covers every department.
	users, err := admin.listUsers("")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}

	users, err = admin.listUsers("department=" + finId)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Fatalf("invalid filtered list %v", users)
	}
}

func TestManagerScopedToOwnDepartment(t *testing.T) {
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

	mgr, err := env.newManager(&admin, "engboss", engId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "alice", engId); err != nil {
		t.Fatal(err)
	}
	bob, err := env.newEmployee(&admin, "bob", finId)
	if err != nil {
		t.Fatal(err)
	}

	users, err := mgr.listUsers("")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("manager should only see own department, got %d users", len(users))
	}

	_, err = mgr.listUsers("department=" + finId)
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("filtering by another department should fail: %v", err)
	}

	err = mgr.Get(fmt.Sprintf("/user/%v", employeeId(t, &bob))).Do(nil)
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("viewing a user in another department should fail: %v", err)
	}

	// Unassigned filter is reserved for super admins.
	_, err = mgr.listUsers("department=unassigned")
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("unassigned filter should be super admin only: %v", err)
	}
}

func TestUserWithoutProfileSeesNothing(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	engId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newEmployee(&admin, "alice", engId)
	if err != nil {
		t.Fatal(err)
	}

	// Signup users have no profile and therefore no department.
	drifter := env.newClient()
	login, err := drifter.signup("drifter", "drifter@mail.com", "drifter_password")
	if err != nil {
		t.Fatal(err)
	}
	if err := drifter.login(login); err != nil {
		t.Fatal(err)
	}

	users, err := drifter.listUsers("")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("user without department should see no users, got %d", len(users))
	}

	depts, err := drifter.listDepartments()
	if err != nil {
		t.Fatal(err)
	}
	if len(depts) != 0 {
		t.Fatalf("user without department should see no departments, got %d", len(depts))
	}

	err = drifter.Get(fmt.Sprintf("/user/%v", employeeId(t, &alice))).Do(nil)
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("user without department cannot view others: %v", err)
	}

	// The super admin can still find them through the unassigned filter.
	unassigned, err := admin.listUsers("department=unassigned")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, u := range unassigned {
		if u.Username == "drifter" {
			found = true
		}
	}
	if !found {
		t.Fatalf("drifter should appear in unassigned list: %v", unassigned)
	}
}
