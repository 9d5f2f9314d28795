package config

// Policy is the validation policy file: the thresholds and controlled
// vocabularies the engine is built with.
type Policy struct {
	MaxSizeBytes     int64             `yaml:"max_size_bytes"`
	MinRetentionDays int               `yaml:"min_retention_days"`
	Languages        []string          `yaml:"languages"`
	Categories       []string          `yaml:"categories"`
	MetricKinds      map[string]string `yaml:"metric_kinds"`
}

const (
	DefaultMaxSizeBytes     = 10 * 1024 * 1024
	DefaultMinRetentionDays = 365
)

var DefaultLanguages = []string{"en-us", "en-gb", "es", "fr", "de", "zh"}

var DefaultCategories = []string{
	"Ranking Algorithm",
	"Content Moderation",
	"Recommendation System",
	"User Classification",
	"Privacy Enhancement",
	"Bias Mitigation",
	"Machine Learning",
	"Data Processing",
	"Security",
	"Performance",
}
