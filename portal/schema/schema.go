package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBrandPrimary = "#054B70"
	DefaultBrandHover   = "#043d5c"
	DefaultBrandAccent  = "#8CB7C4"
)

type Department struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"unique;size:100;not null"`
	Description string

	Logo string `gorm:"size:500"`

	BrandPrimary string `gorm:"size:7;not null;default:'#054B70'"`
	BrandHover   string `gorm:"size:7;not null;default:'#043d5c'"`
	BrandAccent  string `gorm:"size:7;not null;default:'#8CB7C4'"`

	CreatedAt time.Time

	Members []UserProfile `gorm:"foreignKey:DepartmentId"`
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username  string `gorm:"unique;size:50;not null"`
	Email     string `gorm:"size:254;not null"`
	FirstName string `gorm:"size:50"`
	LastName  string `gorm:"size:50"`

	// Managers get access to the admin endpoints.
	IsManager bool `gorm:"not null;default:false"`

	// A nil password means the account cannot log in.
	Password []byte

	Profile  *UserProfile `gorm:"constraint:OnDelete:CASCADE"`
	KPIFiles []KPIFile    `gorm:"foreignKey:EmployeeId;constraint:OnDelete:CASCADE"`
}

func (u *User) FullName() string {
	return fmt.Sprintf("%v %v", u.FirstName, u.LastName)
}

const DefaultHierarchyOrder = 100

type UserProfile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE"`

	DepartmentId *uuid.UUID  `gorm:"type:uuid;index"`
	Department   *Department `gorm:"constraint:OnDelete:SET NULL"`

	PhoneNumber string `gorm:"size:20"`
	JobTitle    string `gorm:"size:100"`
	Picture     string `gorm:"size:500"`

	// Lower values sort first among siblings in the org chart.
	HierarchyOrder int `gorm:"not null;default:100"`

	// Must reference a profile in the same department; the relation over all
	// profiles of one department forms a forest.
	ReportsToId *uuid.UUID   `gorm:"type:uuid"`
	ReportsTo   *UserProfile `gorm:"foreignKey:ReportsToId;constraint:OnDelete:SET NULL"`
}

const (
	Q1 = "Q1"
	Q2 = "Q2"
	Q3 = "Q3"
	Q4 = "Q4"
)

var Quarters = []string{Q1, Q2, Q3, Q4}

func CheckValidQuarter(quarter string) error {
	for _, q := range Quarters {
		if q == quarter {
			return nil
		}
	}
	return fmt.Errorf("invalid quarter '%v', must be one of Q1, Q2, Q3, Q4", quarter)
}

type KPIFile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	EmployeeId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_kpi_slot"`
	Employee   *User     `gorm:"constraint:OnDelete:CASCADE"`

	UploadedById uuid.UUID `gorm:"type:uuid;not null"`
	UploadedBy   *User     `gorm:"foreignKey:UploadedById;constraint:OnDelete:CASCADE"`

	File  string `gorm:"size:500;not null"`
	Title string `gorm:"size:200;not null"`

	Quarter string `gorm:"size:2;not null;uniqueIndex:idx_kpi_slot"`
	Year    int    `gorm:"not null;uniqueIndex:idx_kpi_slot"`

	UploadedAt time.Time
}
