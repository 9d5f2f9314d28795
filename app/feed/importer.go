package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type ImportOptions struct {
	Language      string
	Categories    []string // used for items that carry none
	Summary       string
	AffectedUsers string
}

// Importer converts an RSS, Atom or JSON feed into an ATF skeleton. The
// impact assessment of every item is filled from the options and is meant
// to be edited before publishing.
type Importer struct {
	gofeedParser *gofeed.Parser
	opts         ImportOptions
}

func NewImporter(opts ImportOptions) *Importer {
	return &Importer{
		gofeedParser: gofeed.NewParser(),
		opts:         opts,
	}
}

func (im *Importer) Run(data []byte, now time.Time) (*Document, error) {
	source, err := im.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Version: "1.0",
		Channel: Channel{
			Title:         strings.TrimSpace(source.Title),
			Link:          strings.TrimSpace(source.Link),
			Description:   strings.TrimSpace(source.Description),
			LastBuildDate: FormatDate(now),
			Language:      strings.ToLower(cmp.Or(source.Language, im.opts.Language, "en-us")),
		},
	}

	if source.UpdatedParsed != nil {
		doc.Channel.LastBuildDate = FormatDate(*source.UpdatedParsed)
	} else if source.PublishedParsed != nil {
		doc.Channel.LastBuildDate = FormatDate(*source.PublishedParsed)
	}

	for _, item := range source.Items {
		if item == nil {
			continue
		}
		doc.Items = append(doc.Items, im.normalizeItem(item, now))
	}

	return doc, nil
}

func (im *Importer) normalizeItem(item *gofeed.Item, now time.Time) Item {
	normalized := Item{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		PubDate:     FormatDate(now),
		Description: strings.TrimSpace(cmp.Or(item.Description, item.Content)),
	}

	if item.PublishedParsed != nil {
		normalized.PubDate = FormatDate(*item.PublishedParsed)
	} else if item.UpdatedParsed != nil {
		normalized.PubDate = FormatDate(*item.UpdatedParsed)
	}

	if len(item.Categories) > 0 {
		normalized.Categories = append([]string(nil), item.Categories...)
	} else {
		normalized.Categories = append([]string(nil), im.opts.Categories...)
	}

	normalized.Impact = ImpactAssessment{
		Summary:       cmp.Or(im.opts.Summary, normalized.Title),
		AffectedUsers: cmp.Or(im.opts.AffectedUsers, "0%"),
	}

	return normalized
}
