package config

import (
	"strings"
	"testing"
	"time"

	"campus-library/internal/rules"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":8080" || cfg.Database.Driver != DriverPostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	c := cfg.Circulation
	if c.LoanPeriodDays != 14 || c.RenewalDays != 14 || c.MaxRenewals != 2 {
		t.Fatalf("unexpected circulation defaults: %+v", c)
	}
	if c.FineDailyRate.StringFixed(2) != "1.00" {
		t.Fatalf("fine rate: got %s", c.FineDailyRate)
	}
	if c.RenewalBasis != rules.BasisNow {
		t.Fatalf("renewal basis: got %s", c.RenewalBasis)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DB_DRIVER":             "SQLite",
		"DATABASE_URL":          "file:lib.db",
		"LOAN_PERIOD_DAYS":      "21",
		"FINE_DAILY_RATE":       "0.50",
		"RENEWAL_BASIS":         "due_date",
		"LIBRARY_JWT_TTL_HOURS": "2",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.DSN != "file:lib.db" {
		t.Fatalf("database: %+v", cfg.Database)
	}
	if cfg.Circulation.LoanPeriodDays != 21 || cfg.Circulation.FineDailyRate.StringFixed(2) != "0.50" {
		t.Fatalf("circulation: %+v", cfg.Circulation)
	}
	if cfg.Circulation.RenewalBasis != rules.BasisDueDate {
		t.Fatalf("basis: %s", cfg.Circulation.RenewalBasis)
	}
	if cfg.Auth.JWTDuration != 2*time.Hour {
		t.Fatalf("ttl: %s", cfg.Auth.JWTDuration)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := LoadFrom(envMap(map[string]string{
		"LOAN_PERIOD_DAYS": "abc",
		"FINE_DAILY_RATE":  "lots",
	}))
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	if !strings.Contains(err.Error(), "LOAN_PERIOD_DAYS") || !strings.Contains(err.Error(), "FINE_DAILY_RATE") {
		t.Fatalf("errors should name both keys: %v", err)
	}

	_, err = LoadFrom(envMap(map[string]string{
		"RENEWAL_DAYS":    "0",
		"FINE_DAILY_RATE": "-1",
		"DB_DRIVER":       "oracle",
	}))
	if err == nil {
		t.Fatalf("expected validation errors")
	}
}
