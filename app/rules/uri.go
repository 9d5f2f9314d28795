package rules

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// URIRule checks the channel link and every item link.
func URIRule(doc *feed.Document, _ time.Time) []feed.ValidationError {
	var errs []feed.ValidationError

	if reason := checkURI(doc.Channel.Link); reason != "" {
		errs = append(errs, feed.NewError(feed.KindURIInvalid, channelField("link"), "link %q %s", doc.Channel.Link, reason))
	}

	for i, item := range doc.Items {
		if reason := checkURI(item.Link); reason != "" {
			errs = append(errs, feed.NewError(feed.KindURIInvalid, itemField(i, item, "link"), "link %q %s", item.Link, reason))
		}
	}

	return errs
}

// checkURI returns the first failed check, or "" when raw is acceptable.
func checkURI(raw string) string {
	if raw == "" {
		return "is empty"
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return "contains whitespace"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URI"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("has scheme %q, expected http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "has no host"
	}
	if !strings.Contains(host, ".") {
		return fmt.Sprintf("has host %q without a dot", host)
	}

	return ""
}
