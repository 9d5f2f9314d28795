package rules

import (
	"time"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// NewLanguageRule requires the channel language to be one of allowed.
// Codes compare exactly, including case.
func NewLanguageRule(allowed []string) Rule {
	supported := toSet(allowed)

	return func(doc *feed.Document, _ time.Time) []feed.ValidationError {
		if supported[doc.Channel.Language] {
			return nil
		}
		return []feed.ValidationError{
			feed.NewError(feed.KindLanguageUnsupported, channelField("language"),
				"language %q is not supported", doc.Channel.Language),
		}
	}
}
