package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// MetricKind is the format class of a metric value.
type MetricKind string

const (
	KindPercentage MetricKind = "percentage"
	KindNumeric    MetricKind = "numeric"
	KindRatio      MetricKind = "ratio"
	KindDuration   MetricKind = "duration"
	KindBoolean    MetricKind = "boolean"
	KindUnknown    MetricKind = "unknown"
)

// tried in order; the first match wins
var metricPatterns = []struct {
	kind    MetricKind
	pattern *regexp.Regexp
}{
	{KindPercentage, regexp.MustCompile(`^[+-]?\d+(\.\d+)?%$`)},
	{KindNumeric, regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)},
	{KindRatio, regexp.MustCompile(`^\d+:\d+$`)},
	{KindDuration, regexp.MustCompile(`^\d+(\.\d+)?(ms|s|min|h)$`)},
	{KindBoolean, regexp.MustCompile(`(?i)^(true|false)$`)},
}

// ClassifyMetric returns the kind of value, or KindUnknown.
func ClassifyMetric(value string) MetricKind {
	for _, p := range metricPatterns {
		if p.pattern.MatchString(value) {
			return p.kind
		}
	}
	return KindUnknown
}

// ParseMetricKind accepts the name of any classifiable kind.
func ParseMetricKind(s string) (MetricKind, error) {
	for _, p := range metricPatterns {
		if string(p.kind) == s {
			return p.kind, nil
		}
	}
	return "", fmt.Errorf("unknown metric kind %q", s)
}

// NewMetricRule checks that every metric value has a known format, matches
// the kind declared for its name, and keeps the kind it was first seen with
// across the whole document.
func NewMetricRule(declared map[string]MetricKind) Rule {
	return func(doc *feed.Document, _ time.Time) []feed.ValidationError {
		var errs []feed.ValidationError
		firstSeen := make(map[string]MetricKind)

		for i, item := range doc.Items {
			for _, m := range item.Impact.Metrics {
				location := metricLocation(i, item, m.Name)
				kind := ClassifyMetric(m.Value)

				if kind == KindUnknown {
					errs = append(errs, feed.NewError(feed.KindMetricFormat, location,
						"metric %q value %q is not a percentage, number, ratio, duration or boolean", m.Name, m.Value))
					continue
				}

				if want, ok := declared[m.Name]; ok && want != kind {
					errs = append(errs, feed.NewError(feed.KindMetricFormat, location,
						"metric %q value %q is a %s, expected a %s", m.Name, m.Value, kind, want))
				}

				first, ok := firstSeen[m.Name]
				if !ok {
					firstSeen[m.Name] = kind
					continue
				}
				if first != kind {
					errs = append(errs, feed.NewError(feed.KindMetricInconsistent, location,
						"metric %q value %q is a %s but was first reported as a %s", m.Name, m.Value, kind, first))
				}
			}
		}

		return errs
	}
}

func metricLocation(index int, item feed.Item, name string) string {
	return itemLocation(index, item) + "/metrics/" + name
}
