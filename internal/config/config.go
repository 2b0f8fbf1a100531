package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"campus-library/internal/rules"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver string
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

// CirculationConfig holds the loan policy. The daily fine rate is the single
// canonical value used for returns, live accrual and reports.
type CirculationConfig struct {
	LoanPeriodDays int
	RenewalDays    int
	MaxRenewals    int
	MaxActiveLoans int
	FineDailyRate  decimal.Decimal
	RenewalBasis   rules.RenewalBasis
}

// IssuePolicy returns the parameters new loans are created with.
func (c CirculationConfig) IssuePolicy() rules.IssuePolicy {
	return rules.IssuePolicy{LoanPeriodDays: c.LoanPeriodDays, MaxRenewals: c.MaxRenewals}
}

type Config struct {
	ServerAddr  string
	Database    DatabaseConfig
	Auth        AuthConfig
	Circulation CirculationConfig
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		ServerAddr: ":8080",
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Auth: AuthConfig{
			// dev default, override with LIBRARY_JWT_SECRET
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "campus-library",
			JWTDuration: 24 * time.Hour,
		},
		Circulation: CirculationConfig{
			LoanPeriodDays: rules.DefaultLoanPeriodDays,
			RenewalDays:    rules.DefaultRenewalDays,
			MaxRenewals:    rules.DefaultMaxRenewals,
			MaxActiveLoans: 5,
			FineDailyRate:  decimal.NewFromInt(1),
			RenewalBasis:   rules.BasisNow,
		},
	}
}

// Load reads the configuration from the environment on top of Default.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable lookup, for tests.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	if v := getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	cfg.Database.DSN = getenv("DATABASE_URL")

	if v := getenv("LIBRARY_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := getenv("LIBRARY_JWT_ISSUER"); v != "" {
		cfg.Auth.JWTIssuer = v
	}

	var errs []error
	intVar := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	var ttlHours int
	intVar("LIBRARY_JWT_TTL_HOURS", &ttlHours)
	if ttlHours > 0 {
		cfg.Auth.JWTDuration = time.Duration(ttlHours) * time.Hour
	}
	intVar("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	intVar("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	intVar("LOAN_PERIOD_DAYS", &cfg.Circulation.LoanPeriodDays)
	intVar("RENEWAL_DAYS", &cfg.Circulation.RenewalDays)
	intVar("MAX_RENEWALS", &cfg.Circulation.MaxRenewals)
	intVar("MAX_ACTIVE_LOANS", &cfg.Circulation.MaxActiveLoans)

	if v := getenv("FINE_DAILY_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FINE_DAILY_RATE: %w", err))
		} else {
			cfg.Circulation.FineDailyRate = rate
		}
	}
	if v := getenv("RENEWAL_BASIS"); v != "" {
		cfg.Circulation.RenewalBasis = rules.RenewalBasis(strings.ToLower(v))
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that the rest of the system assumes are sane.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Circulation.LoanPeriodDays <= 0 {
		errs = append(errs, errors.New("LOAN_PERIOD_DAYS must be positive"))
	}
	if c.Circulation.RenewalDays <= 0 {
		errs = append(errs, errors.New("RENEWAL_DAYS must be positive"))
	}
	if c.Circulation.MaxRenewals < 0 {
		errs = append(errs, errors.New("MAX_RENEWALS must not be negative"))
	}
	if c.Circulation.MaxActiveLoans < 0 {
		errs = append(errs, errors.New("MAX_ACTIVE_LOANS must not be negative"))
	}
	if c.Circulation.FineDailyRate.IsNegative() {
		errs = append(errs, errors.New("FINE_DAILY_RATE must not be negative"))
	}
	if !c.Circulation.RenewalBasis.Valid() {
		errs = append(errs, fmt.Errorf("unsupported RENEWAL_BASIS %q", c.Circulation.RenewalBasis))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("LIBRARY_JWT_SECRET must not be empty"))
	}
	return errors.Join(errs...)
}
