package rules

import (
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// NewRetentionRule requires the oldest item to be at least minDays old in
// whole days. Items whose pubDate does not parse are left to DateRule; a
// document without any parseable pubDate is exempt.
func NewRetentionRule(minDays int) Rule {
	return func(doc *feed.Document, now time.Time) []feed.ValidationError {
		if minDays <= 0 {
			return nil
		}

		oldestIndex := -1
		var oldest time.Time
		for i, item := range doc.Items {
			ts, err := feed.ParseDate(item.PubDate)
			if err != nil {
				continue
			}
			if oldestIndex < 0 || ts.Before(oldest) {
				oldestIndex, oldest = i, ts
			}
		}

		if oldestIndex < 0 {
			return nil
		}

		ageDays := int(now.Sub(oldest).Hours() / 24)
		if now.Before(oldest) {
			ageDays = 0
		}
		if ageDays >= minDays {
			return nil
		}

		item := doc.Items[oldestIndex]
		return []feed.ValidationError{
			feed.NewError(feed.KindRetentionTooShort, itemField(oldestIndex, item, "pubDate"),
				"oldest item is %d days old, feed must retain at least %d days", ageDays, minDays),
		}
	}
}
