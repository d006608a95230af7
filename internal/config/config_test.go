package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q; want legacy JWT_SECRET value", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "8080" || cfg.Storage.Driver != "memory" || cfg.Notify.Driver != "log" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Admission.StandardLeadMinutes != 60 || cfg.Admission.PremiumLeadMinutes != 120 {
		t.Errorf("admission = %+v", cfg.Admission)
	}
	if cfg.Estimator.BufferMinutes != 5 || len(cfg.Estimator.PeakWindows) != 2 {
		t.Errorf("estimator = %+v", cfg.Estimator)
	}
	if cfg.Recurring.MaxWeeks != 12 {
		t.Errorf("MaxWeeks = %d; want 12", cfg.Recurring.MaxWeeks)
	}
	if cfg.Notify.Timeout != 10*time.Second {
		t.Errorf("notify timeout = %v", cfg.Notify.Timeout)
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
timezone: America/Chicago
auth:
  jwt_secret: from-file
admission:
  standard_lead_minutes: 90
scheduler:
  enabled: true
  run_at: "05:30"
seed:
  vendors:
    - id: v1
      name: Taco Truck
      average_prep_minutes: 15
  customers:
    - id: c1
      name: Ada
      tier: premium
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADMISSION_STANDARD_LEAD_MINUTES", "45")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Admission.StandardLeadMinutes != 45 {
		t.Errorf("StandardLeadMinutes = %d; want env override 45", cfg.Admission.StandardLeadMinutes)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.RunAt != "05:30" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if len(cfg.Seed.Vendors) != 1 || cfg.Seed.Vendors[0].AveragePrepMinutes != 15 {
		t.Errorf("seed vendors = %+v", cfg.Seed.Vendors)
	}
	if len(cfg.Seed.Customers) != 1 || cfg.Seed.Customers[0].Tier != "premium" {
		t.Errorf("seed customers = %+v", cfg.Seed.Customers)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/Chicago" {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"unknown driver", map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "postgres"}},
		{"bad timezone", map[string]string{"JWT_SECRET": "s", "TIMEZONE": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(t.TempDir()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
