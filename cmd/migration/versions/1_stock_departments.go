package versions

import (
	"log"
	"time"

	"hr_portal/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// The portal ships with a small set of departments so that a fresh install has
// tenants to assign users to. Magnum Opus is the administrative tenant.
var stockDepartments = []string{
	"Food Safety Agency",
	"ISCM",
	"Eclick",
	"Magnum Opus",
}

func Migration_1_stock_departments(txn *gorm.DB) error {
	for _, name := range stockDepartments {
		var existing schema.Department
		result := txn.Limit(1).Find(&existing, "name = ?", name)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			log.Printf("department %v already exists, skipping", name)
			continue
		}

		dept := schema.Department{
			Id:           uuid.New(),
			Name:         name,
			BrandPrimary: schema.DefaultBrandPrimary,
			BrandHover:   schema.DefaultBrandHover,
			BrandAccent:  schema.DefaultBrandAccent,
			CreatedAt:    time.Now().UTC(),
		}
		if err := txn.Create(&dept).Error; err != nil {
			return err
		}
		log.Printf("created department %v", name)
	}
	return nil
}
