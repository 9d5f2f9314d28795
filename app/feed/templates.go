package feed

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type impactTemplate struct {
	summary       string
	affectedUsers string
	metrics       map[string]string
	risks         []string
	mitigations   []string
}

var impactTemplates = map[string]impactTemplate{
	"ranking_change": {
		summary:       "Updated {algorithm} ranking algorithm to improve {aspect}",
		affectedUsers: "{percentage}%",
		metrics: map[string]string{
			"accuracy": "+{accuracy_improvement}%",
			"latency":  "{latency_change}%",
		},
		risks: []string{
			"Temporary degradation during deployment",
			"Potential learning period for new algorithm",
			"May affect historical comparisons",
		},
		mitigations: []string{
			"Phased rollout",
			"A/B testing",
			"Monitoring and alerts",
			"Rollback plan",
		},
	},
	"privacy_enhancement": {
		summary:       "Enhanced privacy protections for {feature}",
		affectedUsers: "100%",
		metrics: map[string]string{
			"privacy_score":      "ε={epsilon}",
			"performance_impact": "{perf_impact}%",
		},
		risks: []string{
			"Potential impact on system performance",
			"Changes to data access patterns",
			"Integration with existing systems",
		},
		mitigations: []string{
			"Performance optimization",
			"Clear documentation",
			"User communication",
			"Gradual rollout",
		},
	},
}

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

// TemplateNames lists the available impact assessment templates.
func TemplateNames() []string {
	names := make([]string, 0, len(impactTemplates))
	for name := range impactTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewImpactAssessment fills the named template with params. Every
// placeholder must be resolved.
func NewImpactAssessment(name string, params map[string]string) (ImpactAssessment, error) {
	tpl, ok := impactTemplates[name]
	if !ok {
		return ImpactAssessment{}, fmt.Errorf("unknown template: %s", name)
	}

	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	var missing []string
	fill := func(s string) string {
		out := replacer.Replace(s)
		missing = append(missing, placeholderPattern.FindAllString(out, -1)...)
		return out
	}

	impact := ImpactAssessment{
		Summary:       fill(tpl.summary),
		AffectedUsers: fill(tpl.affectedUsers),
		Risks:         append([]string(nil), tpl.risks...),
		Mitigations:   append([]string(nil), tpl.mitigations...),
	}

	values := make(map[string]string, len(tpl.metrics))
	for k, v := range tpl.metrics {
		values[k] = fill(v)
	}
	impact.Metrics = sortedMetrics(values)

	if len(missing) > 0 {
		sort.Strings(missing)
		return ImpactAssessment{}, fmt.Errorf("template %s: missing parameters %s", name, strings.Join(dedupe(missing), ", "))
	}

	return impact, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
