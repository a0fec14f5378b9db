// Package conf loads the rate limiter's deployment configuration from a
// YAML file with environment overrides.
package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/webvault/adaptive-rate-limiter/pkg/limiter"
)

// Config is the top-level deployment configuration.
type Config struct {
	// Enabled turns rate limiting on. Overridden by RATE_LIMIT_ENABLED.
	Enabled bool `yaml:"enabled"`

	// Listen is the HTTP listen address for the example server.
	Listen string `yaml:"listen"`

	// AdminBypass exempts authenticated superusers from limiting.
	AdminBypass bool `yaml:"admin_bypass"`

	// TrustXForwardedFor enables client IP resolution from proxy headers.
	TrustXForwardedFor bool `yaml:"trust_x_forwarded_for"`

	// HealthPaths are never rate limited.
	HealthPaths []string `yaml:"health_paths,omitempty"`

	Redis RedisConfig `yaml:"redis"`

	// Guard configures the local flood guard used during store outages.
	// Absent means no guard.
	Guard *GuardConfig `yaml:"guard,omitempty"`

	// Routes override or extend the default policy table.
	Routes []RoutePolicy `yaml:"routes,omitempty"`
}

// RedisConfig locates the shared counter store.
type RedisConfig struct {
	// Addr is the host:port. Overridden by REDIS_ADDR.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`

	// Prefix namespaces all limiter keys.
	Prefix string `yaml:"prefix,omitempty"`

	// TimeoutMS is the per-operation timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`
}

// GuardConfig sizes the local flood guard.
type GuardConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RoutePolicy is the YAML form of a limiter.Policy bound to a route.
type RoutePolicy struct {
	Pattern         string             `yaml:"pattern"`
	Requests        int                `yaml:"requests"`
	WindowSeconds   int                `yaml:"window_seconds"`
	Algorithm       string             `yaml:"algorithm"`
	BurstMultiplier float64            `yaml:"burst_multiplier,omitempty"`
	Adaptive        bool               `yaml:"adaptive"`
	ThreatReduction map[string]float64 `yaml:"threat_reduction,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Enabled: true,
		Listen:  ":8080",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Prefix:    "ratelimit:",
			TimeoutMS: 50,
		},
	}
}

// Load reads a YAML config file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Enabled = enabled
		}
	}
}

// Validate checks the configuration before the server starts.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr must not be empty")
	}
	if c.Redis.TimeoutMS < 0 {
		return fmt.Errorf("redis timeout_ms must not be negative")
	}
	if c.Guard != nil && (c.Guard.RPS <= 0 || c.Guard.Burst <= 0) {
		return fmt.Errorf("guard rps and burst must be positive")
	}
	for i, route := range c.Routes {
		if _, err := route.Policy(); err != nil {
			return fmt.Errorf("route %d (%s): %w", i, route.Pattern, err)
		}
	}
	return nil
}

// Policy converts the YAML route form into a limiter.Policy.
func (r RoutePolicy) Policy() (limiter.Policy, error) {
	algorithm, err := limiter.ParseAlgorithm(r.Algorithm)
	if err != nil {
		return limiter.Policy{}, err
	}
	burst := r.BurstMultiplier
	if burst == 0 {
		burst = 1.0
	}

	var reduction map[limiter.ThreatLevel]float64
	if len(r.ThreatReduction) > 0 {
		reduction = make(map[limiter.ThreatLevel]float64, len(r.ThreatReduction))
		for name, factor := range r.ThreatReduction {
			level, err := limiter.ParseThreatLevel(name)
			if err != nil {
				return limiter.Policy{}, err
			}
			reduction[level] = factor
		}
	} else if r.Adaptive {
		reduction = limiter.DefaultThreatReduction()
	}

	policy := limiter.Policy{
		Requests:        r.Requests,
		Window:          time.Duration(r.WindowSeconds) * time.Second,
		Algorithm:       algorithm,
		BurstMultiplier: burst,
		Adaptive:        r.Adaptive,
		ThreatReduction: reduction,
	}
	if err := policy.Validate(); err != nil {
		return limiter.Policy{}, err
	}
	return policy, nil
}

// BuildRegistry returns the default policy table with the configured route
// overrides applied on top.
func (c *Config) BuildRegistry() (*limiter.Registry, error) {
	registry := limiter.DefaultRegistry()
	for _, route := range c.Routes {
		policy, err := route.Policy()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(route.Pattern, policy); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
