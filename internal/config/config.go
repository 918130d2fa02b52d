// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates pipeline configuration from the
// environment. Configuration errors are fatal at startup and never
// raised mid-run: Load is meant to be called once, early, in cmd/.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/skillsfabric/core/internal/errs"
)

// fileDefaults is the optional YAML overlay read from
// SKILLS_FABRIC_CONFIG_FILE. Every field is a fallback consulted only
// when the corresponding environment variable is unset — env always
// wins, matching spec §6's "environment is authoritative" contract.
type fileDefaults struct {
	GLMModel          string  `yaml:"glm_model"`
	GLMThinkingBudget int     `yaml:"glm_thinking_budget"`
	ZAIBaseURL        string  `yaml:"zai_base_url"`
	PerplexityModel   string  `yaml:"perplexity_model"`
	CacheDir          string  `yaml:"cache_dir"`
	HallMThreshold    float64 `yaml:"hallm_threshold"`
}

func loadFileDefaults() (fileDefaults, error) {
	path := os.Getenv("SKILLS_FABRIC_CONFIG_FILE")
	if path == "" {
		return fileDefaults{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fileDefaults{}, &errs.ConfigError{Key: "SKILLS_FABRIC_CONFIG_FILE", Reason: err.Error()}
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(content, &fd); err != nil {
		return fileDefaults{}, &errs.ConfigError{Key: "SKILLS_FABRIC_CONFIG_FILE", Reason: err.Error()}
	}
	return fd, nil
}

// LLMConfig configures the GLM/ZAI-compatible chat completion provider.
// APIKey is intentionally not required at load time: several CLI
// subcommands (verify, analyze, search) never touch internal/llm, and
// forcing every invocation to carry a provider key would make those
// unusable in an otherwise fully configured environment. Callers that
// do need the provider (generate --factory) check APIKey themselves
// before constructing a client.
type LLMConfig struct {
	APIKey         string
	Model          string `validate:"required"`
	BaseURL        string `validate:"required,url"`
	ThinkingBudget int    `validate:"gte=0"`
	UseCoding      bool
}

// SearchConfig configures the Perplexity and Brave collaborators.
type SearchConfig struct {
	PerplexityAPIKey string
	PerplexityModel  string
	BraveAPIKey      string
	BraveTimeout     time.Duration
	VoyageAPIKey     string
}

// RetryConfig is the shared exponential-backoff policy for HTTP
// collaborators (spec §4.8's retry policy, reused by internal/httpx).
type RetryConfig struct {
	MaxRetries   int           `validate:"gte=0"`
	InitialDelay time.Duration `validate:"gt=0"`
	Multiplier   float64       `validate:"gt=1"`
	MaxDelay     time.Duration `validate:"gt=0"`
}

// InfluxConfig configures the optional Hall_m time-series exporter.
// Every field is empty unless INFLUX_URL is set; callers treat an
// empty URL as "exporter disabled" rather than a configuration error,
// since spec §6 only requires Hall_m history in-memory by default.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether enough of InfluxConfig was supplied to
// construct an exporter.
func (c InfluxConfig) Enabled() bool { return c.URL != "" && c.Bucket != "" }

// Config is the fully-resolved, validated pipeline configuration.
type Config struct {
	LLM            LLMConfig
	Search         SearchConfig
	Retry          RetryConfig
	Influx         InfluxConfig
	CacheDir       string  `validate:"required"`
	HallMThreshold float64 `validate:"gte=0,lte=1"`
}

// DefaultRetryConfig matches spec §4.8's described defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Load reads configuration from the environment using the variable
// names preserved for operator compatibility (spec §6):
// ZAI_API_KEY/GLM_API_KEY, GLM_MODEL, GLM_THINKING_BUDGET, ZAI_BASE_URL,
// ZAI_USE_CODING, PERPLEXITY_API_KEY, PERPLEXITY_MODEL, BRAVE_API_KEY,
// BRAVE_TIMEOUT, VOYAGE_API_KEY.
func Load() (*Config, error) {
	fd, err := loadFileDefaults()
	if err != nil {
		return nil, err
	}

	apiKey := firstNonEmpty(os.Getenv("ZAI_API_KEY"), os.Getenv("GLM_API_KEY"))
	baseURL := envOr("ZAI_BASE_URL", firstNonEmpty(fd.ZAIBaseURL, "https://api.z.ai/api/paas/v4"))
	model := envOr("GLM_MODEL", firstNonEmpty(fd.GLMModel, "glm-4.6"))
	budgetDefault := "16000"
	if fd.GLMThinkingBudget > 0 {
		budgetDefault = strconv.Itoa(fd.GLMThinkingBudget)
	}
	budget, err := strconv.Atoi(envOr("GLM_THINKING_BUDGET", budgetDefault))
	if err != nil {
		return nil, &errs.ConfigError{Key: "GLM_THINKING_BUDGET", Reason: err.Error()}
	}

	braveTimeout := 10 * time.Second
	if v := os.Getenv("BRAVE_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, &errs.ConfigError{Key: "BRAVE_TIMEOUT", Reason: err.Error()}
		}
		braveTimeout = time.Duration(secs) * time.Second
	}

	cacheDir := envOr("SKILLS_FABRIC_CACHE_DIR", firstNonEmpty(fd.CacheDir, "~/.skills_fabric"))

	hallMThreshold := 0.02
	if fd.HallMThreshold > 0 {
		hallMThreshold = fd.HallMThreshold
	}

	cfg := &Config{
		LLM: LLMConfig{
			APIKey:         apiKey,
			Model:          model,
			BaseURL:        baseURL,
			ThinkingBudget: budget,
			UseCoding:      os.Getenv("ZAI_USE_CODING") == "true",
		},
		Search: SearchConfig{
			PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),
			PerplexityModel:  envOr("PERPLEXITY_MODEL", firstNonEmpty(fd.PerplexityModel, "sonar")),
			BraveAPIKey:      os.Getenv("BRAVE_API_KEY"),
			BraveTimeout:     braveTimeout,
			VoyageAPIKey:     os.Getenv("VOYAGE_API_KEY"),
		},
		Retry: DefaultRetryConfig(),
		Influx: InfluxConfig{
			URL:    os.Getenv("INFLUX_URL"),
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    envOr("INFLUX_ORG", "skillsfabric"),
			Bucket: envOr("INFLUX_BUCKET", "skillsfabric"),
		},
		CacheDir:       cacheDir,
		HallMThreshold: hallMThreshold,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validatorInstance = validator.New()

func validate(cfg *Config) error {
	if err := validatorInstance.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			field := verrs[0]
			return &errs.ConfigError{
				Key:    field.Namespace(),
				Reason: fmt.Sprintf("failed %q validation", field.Tag()),
			}
		}
		return &errs.ConfigError{Key: "config", Reason: err.Error()}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
