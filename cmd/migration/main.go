package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"

	"hr_portal/cmd/migration/versions"
	"hr_portal/portal/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

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

// InitSchema marks the listed migrations as applied, so a clean database needs
// the stock departments seeded here as well.
func initSchema(txn *gorm.DB) error {
	err := txn.AutoMigrate(
		&schema.Department{}, &schema.User{}, &schema.UserProfile{}, &schema.KPIFile{},
	)
	if err != nil {
		return err
	}
	return versions.Migration_1_stock_departments(txn)
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	flag.Parse()

	db, err := gorm.Open(postgres.Open(postgresDsn(*dbUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "1",
			Migrate: versions.Migration_1_stock_departments,
			// Rollback intentionally omitted, removing seeded departments would
			// cascade to any users assigned to them.
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")
		return initSchema(txn)
	})

	if err := migration.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration completed successfully")
}
