package feed

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff is the item-level difference between two versions of a feed.
type Diff struct {
	Added    []string       `json:"added_items"`
	Removed  []string       `json:"removed_items"`
	Modified []ModifiedItem `json:"modified_items"`
}

type ModifiedItem struct {
	Title   string                 `json:"title"`
	Changes map[string]FieldChange `json:"changes"`
}

type FieldChange struct {
	Old  string   `json:"old"`
	New  string   `json:"new"`
	Diff []string `json:"diff"`
}

func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// DiffFailure reports that one side of a comparison could not be parsed.
type DiffFailure struct {
	Side string // "first" or "second"
	Kind ErrorKind
	Err  error
}

func (f *DiffFailure) Error() string {
	return fmt.Sprintf("%s document: %s: %v", f.Side, f.Kind, f.Err)
}

func (f *DiffFailure) Unwrap() error {
	return f.Err
}

// compared item fields, in report order
var diffFields = []string{"title", "description", "pubDate"}

type itemSnapshot map[string]string

type Differ struct {
	parser *Parser
}

func NewDiffer(parser *Parser) *Differ {
	return &Differ{parser: parser}
}

// Run parses both buffers and compares them. A parse failure on either side
// is returned as a *DiffFailure; partial data is never compared.
func (d *Differ) Run(first, second []byte) (*Diff, error) {
	a, err := d.parser.Run(first)
	if err != nil {
		return nil, &DiffFailure{Side: "first", Kind: Kind(err), Err: err}
	}
	b, err := d.parser.Run(second)
	if err != nil {
		return nil, &DiffFailure{Side: "second", Kind: Kind(err), Err: err}
	}
	return d.Compare(a, b), nil
}

// Compare matches items by link and reports added, removed and modified
// items. Added and modified follow the order of b, removed the order of a.
func (d *Differ) Compare(a, b *Document) *Diff {
	oldLinks, oldItems := snapshot(a)
	newLinks, newItems := snapshot(b)

	diff := &Diff{
		Added:    []string{},
		Removed:  []string{},
		Modified: []ModifiedItem{},
	}

	for _, link := range newLinks {
		item := newItems[link]
		prev, ok := oldItems[link]
		if !ok {
			diff.Added = append(diff.Added, item["title"])
			continue
		}
		if changes := d.diffItems(prev, item); len(changes) > 0 {
			diff.Modified = append(diff.Modified, ModifiedItem{
				Title:   item["title"],
				Changes: changes,
			})
		}
	}

	for _, link := range oldLinks {
		if _, ok := newItems[link]; !ok {
			diff.Removed = append(diff.Removed, oldItems[link]["title"])
		}
	}

	return diff
}

func (d *Differ) diffItems(prev, next itemSnapshot) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for _, field := range diffFields {
		if prev[field] == next[field] {
			continue
		}
		changes[field] = FieldChange{
			Old:  prev[field],
			New:  next[field],
			Diff: LineDiff(prev[field], next[field]),
		}
	}
	return changes
}

// snapshot builds the link identity map. Links keep first-seen order; a
// repeated link overwrites the earlier snapshot.
func snapshot(doc *Document) ([]string, map[string]itemSnapshot) {
	var order []string
	items := make(map[string]itemSnapshot, len(doc.Items))
	for _, item := range doc.Items {
		if _, seen := items[item.Link]; !seen {
			order = append(order, item.Link)
		}
		items[item.Link] = itemSnapshot{
			"title":       item.Title,
			"description": item.Description,
			"pubDate":     item.PubDate,
		}
	}
	return order, items
}

// LineDiff compares two strings line by line and returns ndiff-style lines
// prefixed with "  ", "- " or "+ ".
func LineDiff(a, b string) []string {
	oldLines := splitLines(a)
	newLines := splitLines(b)

	out := []string{}
	matcher := difflib.NewMatcher(oldLines, newLines)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, l := range oldLines[op.I1:op.I2] {
				out = append(out, "  "+l)
			}
		case 'd':
			for _, l := range oldLines[op.I1:op.I2] {
				out = append(out, "- "+l)
			}
		case 'i':
			for _, l := range newLines[op.J1:op.J2] {
				out = append(out, "+ "+l)
			}
		case 'r':
			for _, l := range oldLines[op.I1:op.I2] {
				out = append(out, "- "+l)
			}
			for _, l := range newLines[op.J1:op.J2] {
				out = append(out, "+ "+l)
			}
		}
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
