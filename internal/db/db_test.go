package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/groupyard/internal/config"
	"github.com/zulandar/groupyard/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "groupyard",
			want:     "root@tcp(127.0.0.1:3306)/groupyard?parseTime=true&charset=utf8mb4",
		},
		{
			name:     "custom host and port",
			user:     "sender",
			host:     "10.0.0.5",
			port:     3307,
			database: "gy_prod",
			want:     "sender@tcp(10.0.0.5:3307)/gy_prod?parseTime=true&charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("data/gy.db")
	if !strings.HasPrefix(dsn, "file:data/gy.db?") {
		t.Errorf("SQLiteDSN = %q", dsn)
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		t.Errorf("SQLiteDSN missing busy timeout: %q", dsn)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestOpen_MySQLDialector(t *testing.T) {
	d, err := Open(config.DatabaseConfig{Driver: "mysql", User: "root", Host: "127.0.0.1", Port: 3306, Name: "gy"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Name() != "mysql" {
		t.Errorf("dialector = %q, want mysql", d.Name())
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gy.db")
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(db)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 4 {
		t.Errorf("AllModels() returned %d models, want 4", got)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	for _, table := range []string{"targets", "campaigns", "account_phones", "templates"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing after migrate", table)
		}
	}
}

func TestSeedTemplates_Idempotent(t *testing.T) {
	db := openTestDB(t)

	n, err := SeedTemplates(db, DefaultTemplates())
	if err != nil {
		t.Fatalf("SeedTemplates: %v", err)
	}
	if n != 3 {
		t.Errorf("first seed inserted %d, want 3", n)
	}

	n, err = SeedTemplates(db, DefaultTemplates())
	if err != nil {
		t.Fatalf("SeedTemplates again: %v", err)
	}
	if n != 0 {
		t.Errorf("second seed inserted %d, want 0", n)
	}

	var count int64
	db.Model(&models.Template{}).Count(&count)
	if count != 3 {
		t.Errorf("template rows = %d, want 3", count)
	}
}

func TestSeedTemplates_Empty(t *testing.T) {
	n, err := SeedTemplates(nil, nil)
	if err != nil || n != 0 {
		t.Errorf("SeedTemplates(nil, nil) = %d, %v", n, err)
	}
}

func TestSeedAccounts(t *testing.T) {
	db := openTestDB(t)
	n, err := SeedAccounts(db, []string{"+15550001", "+15550002"})
	if err != nil {
		t.Fatalf("SeedAccounts: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d, want 2", n)
	}
	n, err = SeedAccounts(db, []string{"+15550002", "+15550003"})
	if err != nil {
		t.Fatalf("SeedAccounts again: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}
}
