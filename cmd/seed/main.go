package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"hr_portal/portal/schema"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type seedDepartment struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type seedUser struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	IsManager bool   `yaml:"is_manager"`

	Department     string `yaml:"department"`
	JobTitle       string `yaml:"job_title"`
	PhoneNumber    string `yaml:"phone_number"`
	HierarchyOrder int    `yaml:"hierarchy_order"`

	// Username of the member this user reports to. Resolved after all users
	// are created so ordering in the file does not matter.
	ReportsTo string `yaml:"reports_to"`
}

type seedFile struct {
	Departments []seedDepartment `yaml:"departments"`
	Users       []seedUser       `yaml:"users"`
}

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func loadSeedFile(path string) seedFile {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("error reading seed file '%v': %v", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.Fatalf("error parsing seed file '%v': %v", path, err)
	}
	return seed
}

func ensureDepartment(txn *gorm.DB, entry seedDepartment) (uuid.UUID, error) {
	var existing schema.Department
	result := txn.Limit(1).Find(&existing, "name = ?", entry.Name)
	if result.Error != nil {
		return uuid.Nil, result.Error
	}
	if result.RowsAffected != 0 {
		return existing.Id, nil
	}

	dept := schema.Department{
		Id:           uuid.New(),
		Name:         entry.Name,
		Description:  entry.Description,
		BrandPrimary: schema.DefaultBrandPrimary,
		BrandHover:   schema.DefaultBrandHover,
		BrandAccent:  schema.DefaultBrandAccent,
		CreatedAt:    time.Now().UTC(),
	}
	if err := txn.Create(&dept).Error; err != nil {
		return uuid.Nil, err
	}
	log.Printf("created department %v", entry.Name)
	return dept.Id, nil
}

func ensureUser(txn *gorm.DB, entry seedUser, departments map[string]uuid.UUID) error {
	var existing schema.User
	result := txn.Limit(1).Find(&existing, "username = ?", entry.Username)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 0 {
		log.Printf("user %v already exists, skipping", entry.Username)
		return nil
	}

	var password []byte
	if entry.Password != "" {
		var err error
		password, err = bcrypt.GenerateFromPassword([]byte(entry.Password), 10)
		if err != nil {
			return fmt.Errorf("error encrypting password for %v: %w", entry.Username, err)
		}
	}

	user := schema.User{
		Id:        uuid.New(),
		Username:  entry.Username,
		Email:     entry.Email,
		FirstName: entry.FirstName,
		LastName:  entry.LastName,
		IsManager: entry.IsManager,
		Password:  password,
	}
	if err := txn.Create(&user).Error; err != nil {
		return err
	}

	order := entry.HierarchyOrder
	if order == 0 {
		order = schema.DefaultHierarchyOrder
	}
	profile := schema.UserProfile{
		Id:             uuid.New(),
		UserId:         user.Id,
		PhoneNumber:    entry.PhoneNumber,
		JobTitle:       entry.JobTitle,
		HierarchyOrder: order,
	}
	if entry.Department != "" {
		deptId, ok := departments[entry.Department]
		if !ok {
			// The department may already exist from a previous seed or the
			// stock migration.
			var dept schema.Department
			result := txn.Limit(1).Find(&dept, "name = ?", entry.Department)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("user %v references unknown department %v", entry.Username, entry.Department)
			}
			deptId = dept.Id
			departments[entry.Department] = deptId
		}
		profile.DepartmentId = &deptId
	}
	if err := txn.Create(&profile).Error; err != nil {
		return err
	}

	log.Printf("created user %v", entry.Username)
	return nil
}

func linkReportsTo(txn *gorm.DB, entry seedUser) error {
	if entry.ReportsTo == "" {
		return nil
	}

	var member, parent schema.UserProfile
	err := txn.Joins("join users on users.id = user_profiles.user_id").Where("users.username = ?", entry.Username).First(&member).Error
	if err != nil {
		return fmt.Errorf("error resolving profile for %v: %w", entry.Username, err)
	}
	err = txn.Joins("join users on users.id = user_profiles.user_id").Where("users.username = ?", entry.ReportsTo).First(&parent).Error
	if err != nil {
		return fmt.Errorf("error resolving reports_to %v for %v: %w", entry.ReportsTo, entry.Username, err)
	}

	if member.DepartmentId == nil || parent.DepartmentId == nil || *member.DepartmentId != *parent.DepartmentId {
		return fmt.Errorf("user %v and reports_to %v are not in the same department", entry.Username, entry.ReportsTo)
	}

	return txn.Model(&schema.UserProfile{}).Where("id = ?", member.Id).Update("reports_to_id", parent.Id).Error
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	file := flag.String("file", "", "YAML file listing departments and users to create")
	flag.Parse()

	if *file == "" {
		log.Fatalf("Missing --file arg")
	}

	seed := loadSeedFile(*file)

	db, err := gorm.Open(postgres.Open(postgresDsn(*dbUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.Transaction(func(txn *gorm.DB) error {
		departments := map[string]uuid.UUID{}
		for _, entry := range seed.Departments {
			deptId, err := ensureDepartment(txn, entry)
			if err != nil {
				return err
			}
			departments[entry.Name] = deptId
		}

		for _, entry := range seed.Users {
			if err := ensureUser(txn, entry, departments); err != nil {
				return err
			}
		}

		for _, entry := range seed.Users {
			if err := linkReportsTo(txn, entry); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	log.Println("seed completed successfully")
}
