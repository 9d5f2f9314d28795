package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/atf-feed/app/rules"
)

// Loader handles loading and validation of the validation policy
type Loader struct {
	path string
}

// NewLoader creates a policy loader. An empty path yields the defaults.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Load() (*Policy, error) {
	if l.path == "" {
		policy := &Policy{
			MaxSizeBytes:     DefaultMaxSizeBytes,
			MinRetentionDays: DefaultMinRetentionDays,
		}
		l.setDefaults(policy)
		return policy, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	policy, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", l.path, err)
	}

	slog.Debug("Policy loaded", "path", l.path, "max_size_bytes", policy.MaxSizeBytes, "min_retention_days", policy.MinRetentionDays)

	return policy, nil
}

// policyFile mirrors Policy with pointer thresholds so an explicit zero
// can be told apart from an omitted key.
type policyFile struct {
	MaxSizeBytes     *int64            `yaml:"max_size_bytes"`
	MinRetentionDays *int              `yaml:"min_retention_days"`
	Languages        []string          `yaml:"languages"`
	Categories       []string          `yaml:"categories"`
	MetricKinds      map[string]string `yaml:"metric_kinds"`
}

// Parse decodes a policy document, applies defaults and validates it.
func Parse(data []byte) (*Policy, error) {
	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	policy := Policy{
		MaxSizeBytes:     DefaultMaxSizeBytes,
		MinRetentionDays: DefaultMinRetentionDays,
		Languages:        raw.Languages,
		Categories:       raw.Categories,
		MetricKinds:      raw.MetricKinds,
	}
	if raw.MaxSizeBytes != nil {
		policy.MaxSizeBytes = *raw.MaxSizeBytes
	}
	if raw.MinRetentionDays != nil {
		policy.MinRetentionDays = *raw.MinRetentionDays
	}

	l := &Loader{}
	l.setDefaults(&policy)

	if err := l.validate(&policy); err != nil {
		return nil, err
	}

	return &policy, nil
}

// setDefaults fills omitted vocabularies. Thresholds are defaulted by the
// caller since zero is a meaningful retention.
func (l *Loader) setDefaults(policy *Policy) {
	if policy.Languages == nil {
		policy.Languages = append([]string(nil), DefaultLanguages...)
	}
	if policy.Categories == nil {
		policy.Categories = append([]string(nil), DefaultCategories...)
	}
}

func (l *Loader) validate(policy *Policy) error {
	if policy.MaxSizeBytes <= 0 {
		return fmt.Errorf("max size must be positive")
	}
	if policy.MinRetentionDays < 0 {
		return fmt.Errorf("min retention days must be non-negative")
	}
	if len(policy.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}
	if len(policy.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	for i, lang := range policy.Languages {
		if lang == "" {
			return fmt.Errorf("empty language at index %d", i)
		}
	}
	for i, category := range policy.Categories {
		if category == "" {
			return fmt.Errorf("empty category at index %d", i)
		}
	}

	for name, kind := range policy.MetricKinds {
		if _, err := rules.ParseMetricKind(kind); err != nil {
			return fmt.Errorf("metric %s: %w", name, err)
		}
	}

	return nil
}
