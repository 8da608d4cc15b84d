// Package config loads bot detection settings from dotenv files, a YAML file
// and BOTDETECT_* environment variables, in that order of precedence (lowest first).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Suhaibinator/SBotDetect/pkg/common"
	"github.com/Suhaibinator/SBotDetect/pkg/patterns"
)

// FileConfig is the serializable form of the detector settings.
type FileConfig struct {
	AdditionalPatterns []string      `yaml:"additional_patterns,omitempty" env:"BOTDETECT_ADDITIONAL_PATTERNS"`
	AdditionalRegexps  []string      `yaml:"additional_regexps,omitempty" env:"BOTDETECT_ADDITIONAL_REGEXPS"`
	ExcludedPatterns   []string      `yaml:"excluded_patterns,omitempty" env:"BOTDETECT_EXCLUDED_PATTERNS"`
	ResultKey          string        `yaml:"result_key,omitempty" env:"BOTDETECT_RESULT_KEY"`
	CacheEnabled       *bool         `yaml:"cache_enabled,omitempty" env:"BOTDETECT_CACHE_ENABLED"`
	CacheCapacity      int           `yaml:"cache_capacity,omitempty" env:"BOTDETECT_CACHE_CAPACITY"`
	CacheTTL           time.Duration `yaml:"cache_ttl,omitempty" env:"BOTDETECT_CACHE_TTL"`
	SweepInterval      time.Duration `yaml:"sweep_interval,omitempty" env:"BOTDETECT_SWEEP_INTERVAL"`

	BotRateLimit RateLimitConfig `yaml:"bot_rate_limit,omitempty" envPrefix:"BOTDETECT_BOT_RATE_LIMIT_"`
	BlockBots    BlockConfig     `yaml:"block_bots,omitempty" envPrefix:"BOTDETECT_BLOCK_BOTS_"`
}

// RateLimitConfig configures throttling of detected bots.
type RateLimitConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	BucketName string        `yaml:"bucket_name,omitempty" env:"BUCKET_NAME"`
	Limit      int           `yaml:"limit,omitempty" env:"LIMIT"`
	Window     time.Duration `yaml:"window,omitempty" env:"WINDOW"`
}

// BlockConfig configures rejection of detected bots.
type BlockConfig struct {
	Enabled bool     `yaml:"enabled" env:"ENABLED"`
	Allow   []string `yaml:"allow,omitempty" env:"ALLOW"`
}

// Load reads the configuration. Dotenv files are loaded first (the default
// .env, ignored when missing, if none are named), then the YAML file at path
// if path is not empty, then BOTDETECT_* environment variables override
// individual fields. The result is not validated.
func Load(path string, dotenvFiles ...string) (*FileConfig, error) {
	if len(dotenvFiles) == 0 {
		// The .env file is optional.
		_ = godotenv.Load()
	} else if err := godotenv.Load(dotenvFiles...); err != nil {
		return nil, errors.Join(ErrReadConfig, err)
	}

	cfg := &FileConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Join(ErrReadConfig, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParseEnv, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *FileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(ErrParseConfig, err)
	}
	return nil
}

// Validate checks the settings and applies defaults in place.
// Returns collected warnings and any fatal error.
func (c *FileConfig) Validate() (warnings []string, err error) {
	if c.ResultKey == "" {
		c.ResultKey = common.DefaultResultKey
	}

	if c.CacheCapacity < 0 {
		warnings = append(warnings, fmt.Sprintf("cache_capacity should be > 0, defaulting to %d", common.DefaultCacheCapacity))
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = common.DefaultCacheCapacity
	}

	if c.CacheTTL < 0 {
		warnings = append(warnings, fmt.Sprintf("cache_ttl should be > 0, defaulting to %v", common.DefaultCacheTTL))
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = common.DefaultCacheTTL
	}

	if c.SweepInterval == 0 {
		c.SweepInterval = common.DefaultSweepInterval
	}

	if c.CacheEnabled != nil && !*c.CacheEnabled {
		warnings = append(warnings, "cache_enabled is false, cache settings are ignored")
	}

	if _, compileErr := patterns.New(c.AdditionalRegexps); compileErr != nil {
		return warnings, errors.Join(ErrInvalidConfig, compileErr)
	}

	for _, token := range c.ExcludedPatterns {
		if len(patterns.Resolve(token)) == 0 {
			warnings = append(warnings, fmt.Sprintf("excluded pattern %q matches no bot signature", token))
		}
	}

	if c.BotRateLimit.Enabled {
		if c.BotRateLimit.BucketName == "" {
			c.BotRateLimit.BucketName = "bots"
		}
		if c.BotRateLimit.Limit <= 0 {
			warnings = append(warnings, "bot_rate_limit.limit should be > 0, defaulting to 60")
			c.BotRateLimit.Limit = 60
		}
		if c.BotRateLimit.Window <= 0 {
			warnings = append(warnings, "bot_rate_limit.window should be > 0, defaulting to 1m")
			c.BotRateLimit.Window = time.Minute
		}
	}

	if !c.BlockBots.Enabled && len(c.BlockBots.Allow) > 0 {
		warnings = append(warnings, "block_bots.allow is set but block_bots is disabled")
	}

	return warnings, nil
}

// DetectionConfig converts the settings to a detector configuration.
func (c *FileConfig) DetectionConfig() common.BotDetectionConfig {
	additions := make([]common.Pattern, 0, len(c.AdditionalPatterns)+len(c.AdditionalRegexps))
	for _, p := range c.AdditionalPatterns {
		additions = append(additions, common.Literal(p))
	}
	for _, p := range c.AdditionalRegexps {
		additions = append(additions, common.Regexp(p))
	}

	return common.BotDetectionConfig{
		AdditionalPatterns: additions,
		ExcludedPatterns:   c.ExcludedPatterns,
		ResultKey:          c.ResultKey,
		CacheEnabled:       c.CacheEnabled,
		CacheCapacity:      c.CacheCapacity,
		CacheTTL:           c.CacheTTL,
		SweepInterval:      c.SweepInterval,
	}
}

// BotRateLimitConfig returns the bot rate limit settings, or nil when disabled.
func (c *FileConfig) BotRateLimitConfig() *common.BotRateLimitConfig {
	if !c.BotRateLimit.Enabled {
		return nil
	}
	return &common.BotRateLimitConfig{
		BucketName: c.BotRateLimit.BucketName,
		Limit:      c.BotRateLimit.Limit,
		Window:     c.BotRateLimit.Window,
		ResultKey:  c.ResultKey,
	}
}
