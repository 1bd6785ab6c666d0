// Package config loads the storefront configuration from a YAML file, falling
// back to defaults and letting a few environment variables override it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/pricing"
	"github.com/cmykmanya/shopai-sub000/promotion"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Store      StoreConfig       `yaml:"store"`
	Pricing    PricingConfig     `yaml:"pricing"`
	Promotions []PromotionConfig `yaml:"promotions"`
	Catalog    []ProductConfig   `yaml:"catalog"`
	Logging    LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend. DSN is used by postgres,
// SQLitePath by sqlite; memory needs neither. SaveTimeout bounds one
// background cart save.
type StoreConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	SQLitePath  string        `yaml:"sqlite_path"`
	SaveTimeout time.Duration `yaml:"save_timeout"`
}

// PricingConfig holds money as decimal strings. When Bands is non-empty a
// tiered shipping policy replaces the flat threshold and fee.
type PricingConfig struct {
	FreeShippingThreshold string       `yaml:"free_shipping_threshold"`
	FlatShippingFee       string       `yaml:"flat_shipping_fee"`
	TaxRate               string       `yaml:"tax_rate"`
	Bands                 []BandConfig `yaml:"bands"`
}

type BandConfig struct {
	From string `yaml:"from"`
	Fee  string `yaml:"fee"`
}

// PromotionConfig is one code. Window bounds are RFC3339 and optional.
type PromotionConfig struct {
	Code       string `yaml:"code"`
	Kind       string `yaml:"kind"`
	Rate       string `yaml:"rate"`
	Amount     string `yaml:"amount"`
	ValidFrom  string `yaml:"valid_from"`
	ValidUntil string `yaml:"valid_until"`
}

// ProductConfig seeds the in-memory catalog.
type ProductConfig struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	ImageRef    string   `yaml:"image_ref"`
	Price       string   `yaml:"price"`
	Sizes       []string `yaml:"sizes"`
	Colors      []string `yaml:"colors"`
	Stock       int      `yaml:"stock"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			SQLitePath:  "data/storefront.db",
			SaveTimeout: 5 * time.Second,
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: pricing.DefaultFreeShippingThreshold.String(),
			FlatShippingFee:       pricing.DefaultFlatShippingFee.String(),
			TaxRate:               pricing.DefaultTaxRate.String(),
		},
		Promotions: []PromotionConfig{
			{Code: "SAVE10", Kind: string(promotion.KindPercentage), Rate: "0.10"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error. An
// empty path skips the file and only applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Addr = getenvDefault("STOREFRONT_ADDR", c.Server.Addr)
	c.Store.DSN = getenvDefault("DATABASE_URL", c.Store.DSN)
	c.Store.Driver = getenvDefault("STORE_DRIVER", c.Store.Driver)
	c.Logging.Level = getenvDefault("LOG_LEVEL", c.Logging.Level)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Validate parses every derived value once so a bad file fails at startup.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn required for postgres driver")
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.PromotionRules(); err != nil {
		return err
	}
	if _, err := c.Products(); err != nil {
		return err
	}
	return nil
}

// Policy builds the configured pricing policy.
func (c *Config) Policy() (pricing.Policy, error) {
	p := c.Pricing
	rate, err := parseMoney("pricing.tax_rate", p.TaxRate)
	if err != nil {
		return nil, err
	}
	if len(p.Bands) > 0 {
		bands := make([]pricing.Band, 0, len(p.Bands))
		for i, b := range p.Bands {
			from, err := parseMoney(fmt.Sprintf("pricing.bands[%d].from", i), b.From)
			if err != nil {
				return nil, err
			}
			fee, err := parseMoney(fmt.Sprintf("pricing.bands[%d].fee", i), b.Fee)
			if err != nil {
				return nil, err
			}
			bands = append(bands, pricing.Band{From: from, Fee: fee})
		}
		tiered, err := pricing.NewTieredPolicy(bands, rate)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return tiered, nil
	}
	threshold, err := parseMoney("pricing.free_shipping_threshold", p.FreeShippingThreshold)
	if err != nil {
		return nil, err
	}
	fee, err := parseMoney("pricing.flat_shipping_fee", p.FlatShippingFee)
	if err != nil {
		return nil, err
	}
	flat, err := pricing.NewFlatPolicy(threshold, fee, rate)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return flat, nil
}

// PromotionRules converts the promotions section. Rule consistency (rates,
// windows, duplicates) is checked by promotion.NewEngine.
func (c *Config) PromotionRules() ([]promotion.Rule, error) {
	rules := make([]promotion.Rule, 0, len(c.Promotions))
	for i, pc := range c.Promotions {
		field := fmt.Sprintf("promotions[%d]", i)
		r := promotion.Rule{Code: pc.Code, Kind: promotion.Kind(pc.Kind)}
		var err error
		if pc.Rate != "" {
			if r.Rate, err = parseMoney(field+".rate", pc.Rate); err != nil {
				return nil, err
			}
		}
		if pc.Amount != "" {
			if r.Amount, err = parseMoney(field+".amount", pc.Amount); err != nil {
				return nil, err
			}
		}
		if r.ValidFrom, err = parseTime(field+".valid_from", pc.ValidFrom); err != nil {
			return nil, err
		}
		if r.ValidUntil, err = parseTime(field+".valid_until", pc.ValidUntil); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if _, err := promotion.NewEngine(rules); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return rules, nil
}

// Products converts the catalog seed.
func (c *Config) Products() ([]models.Product, error) {
	out := make([]models.Product, 0, len(c.Catalog))
	for i, pc := range c.Catalog {
		price, err := parseMoney(fmt.Sprintf("catalog[%d].price", i), pc.Price)
		if err != nil {
			return nil, err
		}
		if price.IsNegative() || pc.Stock < 0 {
			return nil, fmt.Errorf("config: catalog[%d] has negative price or stock", i)
		}
		out = append(out, models.Product{
			ID:          pc.ID,
			Title:       pc.Title,
			Description: pc.Description,
			ImageRef:    pc.ImageRef,
			Price:       price,
			Sizes:       pc.Sizes,
			Colors:      pc.Colors,
			Stock:       pc.Stock,
		})
	}
	return out, nil
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", field, err)
	}
	return d, nil
}

func parseTime(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", field, err)
	}
	return &t, nil
}
