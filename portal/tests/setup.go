package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"hr_portal/portal/auth"
	"hr_portal/portal/schema"
	"hr_portal/portal/services"
	"hr_portal/portal/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	portal  services.Portal
	api     chi.Router
	storage storage.Storage
	db      *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"

	superAdminDepartment = "Magnum Opus"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.Department{}, &schema.User{}, &schema.UserProfile{}, &schema.KPIFile{},
	)
	if err != nil {
		t.Fatal(err)
	}

	tmpDir := t.TempDir()
	storagePath := filepath.Join(tmpDir, "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:          secret,
			AdminUsername:   adminUsername,
			AdminEmail:      adminEmail,
			AdminPassword:   adminPassword,
			AdminDepartment: superAdminDepartment,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	policy := auth.NewPolicy(db, superAdminDepartment)

	portal := services.NewPortal(db, store, userAuth, policy)

	return &testEnv{portal: portal, api: portal.Routes(), storage: store, db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newManager creates a manager account in the given department and returns a
// logged in client for it.
func (t *testEnv) newManager(admin *client, name string, deptId string) (client, error) {
	login, err := admin.addUser(addUserArgs{
		Username: name, Email: name + "@mail.com", FirstName: name, LastName: "manager",
		Password: name + "_password", IsManager: true, DepartmentId: deptId,
	})
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	return c, err
}

func (t *testEnv) newEmployee(admin *client, name string, deptId string) (client, error) {
	login, err := admin.addUser(addUserArgs{
		Username: name, Email: name + "@mail.com", FirstName: name, LastName: "employee",
		Password: name + "_password", IsManager: false, DepartmentId: deptId,
	})
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	return c, err
}
