package rules

import (
	"fmt"
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// Rule is one stateless semantic check. It reports every defect it finds
// and never stops early.
type Rule func(doc *feed.Document, now time.Time) []feed.ValidationError

// Policy carries the externally supplied vocabularies and thresholds the
// rules are built from.
type Policy struct {
	AllowedLanguages []string
	Categories       []string
	MinRetentionDays int
	MetricKinds      map[string]MetricKind // declared kind per metric name
}

type Engine struct {
	rules []Rule
}

// NewEngine builds the rule set in its fixed report order: dates, links,
// percentages, metrics, categories, language and retention.
func NewEngine(policy Policy) *Engine {
	return &Engine{
		rules: []Rule{
			DateRule,
			URIRule,
			PercentageRule,
			NewMetricRule(policy.MetricKinds),
			NewCategoryRule(policy.Categories),
			NewLanguageRule(policy.AllowedLanguages),
			NewRetentionRule(policy.MinRetentionDays),
		},
	}
}

// Run applies every rule to doc and concatenates their findings.
func (e *Engine) Run(doc *feed.Document, now time.Time) []feed.ValidationError {
	var errs []feed.ValidationError
	for _, rule := range e.rules {
		errs = append(errs, rule(doc, now)...)
	}
	return errs
}

func channelField(field string) string {
	return "channel/" + field
}

// itemLocation identifies an item by its link, falling back to its
// 1-based position when the link is empty.
func itemLocation(index int, item feed.Item) string {
	if item.Link == "" {
		return fmt.Sprintf("item#%d", index+1)
	}
	return "item[" + item.Link + "]"
}

func itemField(index int, item feed.Item, field string) string {
	return itemLocation(index, item) + "/" + field
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
