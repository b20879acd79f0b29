package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fee-cli/internal/compliance"
	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/resolve"
	"github.com/sells-group/fee-cli/internal/store"
	"github.com/sells-group/fee-cli/internal/workbook"
)

// Config holds the full application configuration.
type Config struct {
	Workbook   WorkbookConfig   `yaml:"workbook" mapstructure:"workbook"`
	Fees       FeesConfig       `yaml:"fees" mapstructure:"fees"`
	Resolve    resolve.Config   `yaml:"resolve" mapstructure:"resolve"`
	Compliance compliance.Rules `yaml:"compliance" mapstructure:"compliance"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// WorkbookConfig locates the reference workbook and its audit sink.
type WorkbookConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// AuditPath defaults to FeeLetterAudit.xlsx beside Path.
	AuditPath string `yaml:"audit_path" mapstructure:"audit_path"`
}

// FeesConfig carries the house default rates and the calculator tuning.
type FeesConfig struct {
	fee.Defaults `yaml:",inline" mapstructure:",squash"`
	fee.Options  `yaml:",inline" mapstructure:",squash"`
}

// StoreConfig configures the calculation store.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEECLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key so env overrides reach Unmarshal even
// when no config file mentions them.
func setDefaults(v *viper.Viper) {
	rates := fee.DefaultRates()
	opts := fee.DefaultOptions()
	res := resolve.DefaultConfig()
	rules := compliance.DefaultRules()

	v.SetDefault("workbook.path", "")
	v.SetDefault("workbook.audit_path", "")

	v.SetDefault("fees.upfront_pct", rates.UpfrontPct)
	v.SetDefault("fees.amc_1_3_pct", rates.AMC13Pct)
	v.SetDefault("fees.amc_4_5_pct", rates.AMC45Pct)
	v.SetDefault("fees.performance_pct", rates.PerformancePct)
	v.SetDefault("fees.vat_pct", rates.VATPct)
	v.SetDefault("fees.rounding", rates.Rounding)
	v.SetDefault("fees.investor_type", rates.InvestorType)
	v.SetDefault("fees.direction", rates.Direction)
	v.SetDefault("fees.alignment_units", opts.AlignmentUnits)
	v.SetDefault("fees.reconciliation_tolerance", opts.Tolerance)

	v.SetDefault("resolve.similarity_threshold", res.SimilarityThreshold)
	v.SetDefault("resolve.ambiguity_band", *res.AmbiguityBand)
	v.SetDefault("resolve.preview_limit", res.PreviewLimit)
	v.SetDefault("resolve.key_pattern", res.KeyPattern)

	v.SetDefault("compliance.annual_cap", rules.AnnualCap)
	v.SetDefault("compliance.max_company_assets", rules.MaxCompanyAssets)
	v.SetDefault("compliance.retail_max_upfront_pct", rules.RetailMaxUpfrontPct)
	v.SetDefault("compliance.retail_max_amc_pct", rules.RetailMaxAMCPct)
	v.SetDefault("compliance.medium_risk_from", rules.MediumRiskFrom)
	v.SetDefault("compliance.high_risk_from", rules.HighRiskFrom)
	v.SetDefault("compliance.require_kyc", rules.RequireKYC)
	v.SetDefault("compliance.require_aml", rules.RequireAML)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fee-cli.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on. Modes: "calc",
// "resolve", "prepare", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "calc":
		errs = append(errs, c.validateFees()...)
	case "resolve":
		errs = append(errs, c.validateResolve()...)
		errs = append(errs, c.validateWorkbook()...)
	case "prepare":
		errs = append(errs, c.validateFees()...)
		errs = append(errs, c.validateResolve()...)
		errs = append(errs, c.validateWorkbook()...)
	case "serve":
		errs = append(errs, c.validateFees()...)
		errs = append(errs, c.validateResolve()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
		if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server.rate_limit_burst must be >= 1 when rate limiting")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "", "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateWorkbook() []string {
	if strings.TrimSpace(c.Workbook.Path) == "" {
		return []string{"workbook.path is required"}
	}
	return nil
}

func (c *Config) validateResolve() []string {
	var errs []string
	if c.Resolve.SimilarityThreshold < 0 || c.Resolve.SimilarityThreshold > 1 {
		errs = append(errs, "resolve.similarity_threshold must be between 0 and 1")
	}
	if b := c.Resolve.AmbiguityBand; b != nil && *b < 0 {
		errs = append(errs, "resolve.ambiguity_band must be >= 0")
	}
	return errs
}

func (c *Config) validateFees() []string {
	var errs []string
	for name, v := range map[string]float64{
		"fees.upfront_pct":     c.Fees.UpfrontPct,
		"fees.amc_1_3_pct":     c.Fees.AMC13Pct,
		"fees.amc_4_5_pct":     c.Fees.AMC45Pct,
		"fees.performance_pct": c.Fees.PerformancePct,
		"fees.vat_pct":         c.Fees.VATPct,
	} {
		if v < 0 {
			errs = append(errs, name+" must be >= 0")
		}
	}
	if _, err := fee.ParseRoundingRule(c.Fees.Rounding); err != nil {
		errs = append(errs, fmt.Sprintf("fees.rounding %q is not nearest, up or down", c.Fees.Rounding))
	}
	if _, err := fee.ParseInvestorType(c.Fees.InvestorType); err != nil {
		errs = append(errs, fmt.Sprintf("fees.investor_type %q is not retail or professional", c.Fees.InvestorType))
	}
	if _, err := fee.ParseDirection(c.Fees.Direction); err != nil {
		errs = append(errs, fmt.Sprintf("fees.direction %q is not gross or net", c.Fees.Direction))
	}
	if c.Fees.AlignmentUnits < 0 {
		errs = append(errs, "fees.alignment_units must be >= 0")
	}
	// map iteration order varies
	sort.Strings(errs)
	return errs
}

// AuditPath returns the configured audit workbook, or the default sibling of
// the reference workbook.
func (c *Config) AuditPath() string {
	if c.Workbook.AuditPath != "" {
		return c.Workbook.AuditPath
	}
	if c.Workbook.Path == "" {
		return ""
	}
	return workbook.AuditPath(c.Workbook.Path)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
