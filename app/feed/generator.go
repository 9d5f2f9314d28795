package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run serializes doc as an ATF 1.0 document.
func (g *Generator) Run(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "<atf xmlns=\"%s\" version=\"%s\">\n", Namespace, g.escapeAttr(cmp.Or(doc.Version, "1.0")))

	buf.WriteString("  <channel>\n")
	g.writeElement(&buf, "title", doc.Channel.Title, 4)
	g.writeElement(&buf, "link", doc.Channel.Link, 4)
	g.writeElement(&buf, "description", doc.Channel.Description, 4)
	g.writeElement(&buf, "lastBuildDate", doc.Channel.LastBuildDate, 4)
	g.writeElement(&buf, "language", doc.Channel.Language, 4)
	buf.WriteString("  </channel>\n")

	for _, item := range doc.Items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("</atf>\n")

	return buf.Bytes(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item Item) {
	buf.WriteString("  <item>\n")

	g.writeElement(buf, "title", item.Title, 4)
	g.writeElement(buf, "link", item.Link, 4)
	g.writeElement(buf, "pubDate", item.PubDate, 4)
	g.writeElement(buf, "description", item.Description, 4)

	buf.WriteString("    <categories>\n")
	for _, category := range item.Categories {
		g.writeElement(buf, "category", category, 6)
	}
	buf.WriteString("    </categories>\n")

	buf.WriteString("    <impactAssessment>\n")
	g.writeElement(buf, "summary", item.Impact.Summary, 6)
	g.writeElement(buf, "affectedUsers", item.Impact.AffectedUsers, 6)

	if len(item.Impact.Metrics) > 0 {
		buf.WriteString("      <metrics>\n")
		for _, m := range item.Impact.Metrics {
			fmt.Fprintf(buf, "        <metric name=\"%s\">", g.escapeAttr(m.Name))
			xml.EscapeText(buf, []byte(m.Value))
			buf.WriteString("</metric>\n")
		}
		buf.WriteString("      </metrics>\n")
	}

	g.writeList(buf, "risks", "risk", item.Impact.Risks)
	g.writeList(buf, "mitigations", "mitigation", item.Impact.Mitigations)

	buf.WriteString("    </impactAssessment>\n")
	buf.WriteString("  </item>\n")
}

func (g *Generator) writeList(buf *bytes.Buffer, outer, inner string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(buf, "      <%s>\n", outer)
	for _, v := range values {
		g.writeElement(buf, inner, v, 8)
	}
	fmt.Fprintf(buf, "      </%s>\n", outer)
}

// writeElement always emits the element, even when empty, so that a
// missing value surfaces as a validation error instead of vanishing.
func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) escapeAttr(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Generator configuration types

type GeneratorConfig struct {
	Title       string       `json:"title"`
	Link        string       `json:"link"`
	Description string       `json:"description"`
	Language    string       `json:"language"`
	Items       []ItemConfig `json:"items"`
}

type ItemConfig struct {
	Title         string            `json:"title"`
	Link          string            `json:"link"`
	Description   string            `json:"description"`
	PubDate       string            `json:"pub_date,omitempty"`
	Categories    []string          `json:"categories"`
	ImpactSummary string            `json:"impact_summary,omitempty"`
	AffectedUsers string            `json:"affected_users,omitempty"`
	Metrics       map[string]string `json:"metrics,omitempty"`
	Risks         []string          `json:"risks,omitempty"`
	Mitigations   []string          `json:"mitigations,omitempty"`
	Template      string            `json:"template,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
}

// BuildDocument turns a generator configuration into a Document stamped
// with now as lastBuildDate and as the default pubDate.
func BuildDocument(config GeneratorConfig, now time.Time) (*Document, error) {
	doc := &Document{
		Version: "1.0",
		Channel: Channel{
			Title:         config.Title,
			Link:          config.Link,
			Description:   config.Description,
			LastBuildDate: FormatDate(now),
			Language:      cmp.Or(config.Language, "en-us"),
		},
	}

	for i, ic := range config.Items {
		item, err := newItem(ic, now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		doc.Items = append(doc.Items, item)
	}

	return doc, nil
}

func newItem(ic ItemConfig, now time.Time) (Item, error) {
	item := Item{
		Title:       ic.Title,
		Link:        ic.Link,
		PubDate:     cmp.Or(ic.PubDate, FormatDate(now)),
		Description: ic.Description,
		Categories:  append([]string(nil), ic.Categories...),
	}

	if ic.Template != "" {
		impact, err := NewImpactAssessment(ic.Template, ic.Params)
		if err != nil {
			return Item{}, err
		}
		item.Impact = impact
		return item, nil
	}

	item.Impact = ImpactAssessment{
		Summary:       ic.ImpactSummary,
		AffectedUsers: ic.AffectedUsers,
		Metrics:       sortedMetrics(ic.Metrics),
		Risks:         append([]string(nil), ic.Risks...),
		Mitigations:   append([]string(nil), ic.Mitigations...),
	}
	return item, nil
}

func sortedMetrics(m map[string]string) []Metric {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		metrics = append(metrics, Metric{Name: name, Value: m[name]})
	}
	return metrics
}
