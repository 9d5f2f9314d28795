package rules

import (
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

var percentagePattern = regexp.MustCompile(`^\d+(\.\d+)?%$`)

// PercentageRule checks affectedUsers and every metric value that
// contains a percent sign. Signs are not allowed.
func PercentageRule(doc *feed.Document, _ time.Time) []feed.ValidationError {
	var errs []feed.ValidationError

	for i, item := range doc.Items {
		if !percentagePattern.MatchString(item.Impact.AffectedUsers) {
			errs = append(errs, feed.NewError(feed.KindPercentageFormat, itemField(i, item, "affectedUsers"),
				"affectedUsers %q is not a percentage such as 25%% or 10.5%%", item.Impact.AffectedUsers))
		}

		for _, m := range item.Impact.Metrics {
			if strings.Contains(m.Value, "%") && !percentagePattern.MatchString(m.Value) {
				errs = append(errs, feed.NewError(feed.KindPercentageFormat, metricLocation(i, item, m.Name),
					"metric %q value %q is not a percentage such as 25%% or 10.5%%", m.Name, m.Value))
			}
		}
	}

	return errs
}
