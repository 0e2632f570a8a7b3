package tests

import (
	"fmt"
	"strings"
	"testing"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 5; i++ {
		username := fmt.Sprintf("user%d", i)
		email := fmt.Sprintf("user%d@mail.com", i)
		password := fmt.Sprintf("user%d_password", i)

		client := env.newClient()
		login, err := client.signup(username, email, password)
		if err != nil {
			t.Fatal(err)
		}

		_, err = client.signup(username, email, password)
		if err == nil {
			t.Fatal("duplicate signup should fail")
		}

		err = client.login(loginInfo{Email: "other@mail.com", Password: password})
		if err == nil {
			t.Fatal("login should fail with wrong email")
		}

		err = client.login(loginInfo{Email: email, Password: "password"})
		if err == nil {
			t.Fatal("login should fail with wrong password")
		}

		err = client.login(login)
		if err != nil {
			t.Fatal(err)
		}

		info, err := client.userInfo()
		if err != nil {
			t.Fatal(err)
		}

		if info.Username != username || info.Email != email || info.Id.String() != client.userId || info.IsManager {
			t.Fatalf("invalid info %v", info)
		}
		if info.Department != nil {
			t.Fatal("signup users should have no department")
		}
	}
}

func TestAddUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	employee, err := env.newEmployee(&admin, "abc", deptId)
	if err != nil {
		t.Fatal(err)
	}

	_, err = employee.addUser(addUserArgs{
		Username: "xyz", Email: "xyz@mail.com", FirstName: "x", LastName: "yz",
		Password: "123", DepartmentId: deptId,
	})
	if err == nil || !strings.Contains(err.Error(), "not a manager") {
		t.Fatalf("employees cannot add users: %v", err)
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "xyz@mail.com", Password: "123"})
	if err == nil || !strings.Contains(err.Error(), "no user found for given email") {
		t.Fatalf("no login should be created: %v", err)
	}

	login, err := admin.addUser(addUserArgs{
		Username: "xyz", Email: "xyz@mail.com", FirstName: "x", LastName: "yz",
		Password: "123", DepartmentId: deptId, JobTitle: "analyst", PhoneNumber: "555-0100",
	})
	if err != nil {
		t.Fatal(err)
	}

	err = client.login(login)
	if err != nil {
		t.Fatal(err)
	}

	info, err := client.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "xyz" || info.JobTitle != "analyst" || info.PhoneNumber != "555-0100" {
		t.Fatalf("invalid info %v", info)
	}
	if info.Department == nil || info.Department.Id.String() != deptId {
		t.Fatalf("user should be assigned to department: %v", info.Department)
	}

	_, err = admin.addUser(addUserArgs{
		Username: "xyz", Email: "other@mail.com", FirstName: "x", LastName: "yz",
		Password: "123", DepartmentId: deptId,
	})
	if err == nil {
		t.Fatal("duplicate username should fail")
	}
}

func TestUserWithoutPasswordCannotLogin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = admin.addUser(addUserArgs{
		Username: "nopwd", Email: "nopwd@mail.com", FirstName: "no", LastName: "pwd",
		DepartmentId: deptId,
	})
	if err != nil {
		t.Fatal(err)
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "nopwd@mail.com", Password: ""})
	if err == nil || !strings.Contains(err.Error(), "login is disabled") {
		t.Fatalf("passwordless accounts cannot log in: %v", err)
	}
}

func TestEditUser(t *testing.T) {
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

	userId, err := admin.addUserId(addUserArgs{
		Username: "abc", Email: "abc@mail.com", FirstName: "a", LastName: "bc",
		Password: "abc_password", DepartmentId: deptId,
	})
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]interface{}{
		"job_title":     "senior analyst",
		"is_manager":    true,
		"department_id": otherDeptId,
	}
	err = admin.Post(fmt.Sprintf("/user/%v", userId)).Json(body).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "abc@mail.com", Password: "abc_password"})
	if err != nil {
		t.Fatal(err)
	}

	info, err := client.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsManager || info.JobTitle != "senior analyst" {
		t.Fatalf("edits not applied: %v", info)
	}
	if info.Department == nil || info.Department.Id.String() != otherDeptId {
		t.Fatalf("department change not applied: %v", info.Department)
	}
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	userId, err := admin.addUserId(addUserArgs{
		Username: "abc", Email: "abc@mail.com", FirstName: "a", LastName: "bc",
		Password: "abc_password", DepartmentId: deptId,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.deleteUser(admin.userId); err == nil {
		t.Fatal("users cannot delete themselves")
	}

	if err := admin.deleteUser(userId); err != nil {
		t.Fatal(err)
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "abc@mail.com", Password: "abc_password"})
	if err == nil {
		t.Fatal("deleted user should not be able to log in")
	}
}

func TestListUsersFilters(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.newManager(&admin, "mgr1", deptId); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "emp1", deptId); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newEmployee(&admin, "emp2", deptId); err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers("department=" + deptId)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users in department, got %d", len(users))
	}

	managers, err := admin.listUsers("department=" + deptId + "&role=manager")
	if err != nil {
		t.Fatal(err)
	}
	if len(managers) != 1 || managers[0].Username != "mgr1" {
		t.Fatalf("invalid managers %v", managers)
	}

	employees, err := admin.listUsers("department=" + deptId + "&role=employee")
	if err != nil {
		t.Fatal(err)
	}
	if len(employees) != 2 {
		t.Fatalf("expected 2 employees, got %d", len(employees))
	}

	if _, err := admin.listUsers("role=ceo"); err == nil {
		t.Fatal("invalid role filter should fail")
	}
}

func TestProfilePicture(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	deptId, err := admin.createDepartment("engineering", "")
	if err != nil {
		t.Fatal(err)
	}

	alice, err := env.newEmployee(&admin, "alice", deptId)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newEmployee(&admin, "bob", deptId)
	if err != nil {
		t.Fatal(err)
	}

	err = alice.Get(fmt.Sprintf("/user/%v/picture", alice.userId)).Do(nil)
	if err == nil {
		t.Fatal("expected 404 before a picture is uploaded")
	}

	if err := alice.uploadPicture(alice.userId, "me.png", "picture-bytes"); err != nil {
		t.Fatal(err)
	}

	picture := new(strings.Builder)
	err = downloadTo(alice.Get(fmt.Sprintf("/user/%v/picture", alice.userId)), picture)
	if err != nil {
		t.Fatal(err)
	}
	if picture.String() != "picture-bytes" {
		t.Fatalf("unexpected picture content: %v", picture.String())
	}

	// Replacing swaps the stored asset.
	if err := alice.uploadPicture(alice.userId, "me2.png", "new-bytes"); err != nil {
		t.Fatal(err)
	}
	picture.Reset()
	err = downloadTo(alice.Get(fmt.Sprintf("/user/%v/picture", alice.userId)), picture)
	if err != nil {
		t.Fatal(err)
	}
	if picture.String() != "new-bytes" {
		t.Fatalf("unexpected picture content after replace: %v", picture.String())
	}

	err = bob.uploadPicture(alice.userId, "spoof.png", "x")
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("employees should not set pictures for others: %v", err)
	}

	if err := admin.uploadPicture(alice.userId, "official.png", "admin-set"); err != nil {
		t.Fatal(err)
	}
}
