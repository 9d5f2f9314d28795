package rules

import (
	"regexp"
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

// DateRule checks lastBuildDate and every pubDate against the
// YYYY-MM-DDTHH:MM:SSZ profile and rejects timestamps later than now.
func DateRule(doc *feed.Document, now time.Time) []feed.ValidationError {
	var errs []feed.ValidationError

	if err, ok := checkDate("lastBuildDate", doc.Channel.LastBuildDate, channelField("lastBuildDate"), now); !ok {
		errs = append(errs, err)
	}

	for i, item := range doc.Items {
		if err, ok := checkDate("pubDate", item.PubDate, itemField(i, item, "pubDate"), now); !ok {
			errs = append(errs, err)
		}
	}

	return errs
}

func checkDate(field, value, location string, now time.Time) (feed.ValidationError, bool) {
	if !datePattern.MatchString(value) {
		return feed.NewError(feed.KindDateFormat, location, "%s %q does not match YYYY-MM-DDTHH:MM:SSZ", field, value), false
	}

	ts, err := feed.ParseDate(value)
	if err != nil {
		return feed.NewError(feed.KindDateFormat, location, "%s %q is not a valid date", field, value), false
	}

	if ts.After(now) {
		return feed.NewError(feed.KindDateFuture, location, "%s %s is after validation time %s", field, value, feed.FormatDate(now)), false
	}

	return feed.ValidationError{}, true
}
