package config

import (
	"github.com/lysyi3m/atf-feed/app/rules"
)

// RulePolicy converts the file policy into the rule engine's policy.
// Metric kinds were checked by the loader; unknown ones are skipped.
func (p *Policy) RulePolicy() rules.Policy {
	kinds := make(map[string]rules.MetricKind, len(p.MetricKinds))
	for name, raw := range p.MetricKinds {
		if kind, err := rules.ParseMetricKind(raw); err == nil {
			kinds[name] = kind
		}
	}

	return rules.Policy{
		AllowedLanguages: append([]string(nil), p.Languages...),
		Categories:       append([]string(nil), p.Categories...),
		MinRetentionDays: p.MinRetentionDays,
		MetricKinds:      kinds,
	}
}
