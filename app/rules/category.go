package rules

import (
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

var categoryPattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9 ]+$`)

// NewCategoryRule checks every category name for format and membership in
// vocabulary. Both checks run for every value.
func NewCategoryRule(vocabulary []string) Rule {
	standard := toSet(vocabulary)

	return func(doc *feed.Document, _ time.Time) []feed.ValidationError {
		var errs []feed.ValidationError

		for i, item := range doc.Items {
			location := itemField(i, item, "categories")
			for _, raw := range item.Categories {
				category := strings.TrimSpace(raw)

				if !categoryPattern.MatchString(category) {
					errs = append(errs, feed.NewError(feed.KindCategoryFormat, location,
						"category %q must start with an uppercase letter and contain only letters, digits and spaces", category))
				}
				if !standard[category] {
					errs = append(errs, feed.NewError(feed.KindCategoryNonstandard, location,
						"category %q is not a standard category", category))
				}
			}
		}

		return errs
	}
}
