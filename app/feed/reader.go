package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Summary is the JSON view of a document printed by readers.
type Summary struct {
	Title         string        `json:"title"`
	Link          string        `json:"link"`
	Description   string        `json:"description"`
	LastBuildDate string        `json:"lastBuildDate"`
	Language      string        `json:"language"`
	Items         []ItemSummary `json:"items"`
}

type ItemSummary struct {
	Title            string        `json:"title"`
	Link             string        `json:"link"`
	PubDate          string        `json:"pubDate"`
	Description      string        `json:"description"`
	Categories       []string      `json:"categories"`
	ImpactAssessment ImpactSummary `json:"impactAssessment"`
}

type ImpactSummary struct {
	Summary       string            `json:"summary"`
	AffectedUsers string            `json:"affectedUsers"`
	Metrics       map[string]string `json:"metrics"`
}

func Summarize(doc *Document) Summary {
	s := Summary{
		Title:         doc.Channel.Title,
		Link:          doc.Channel.Link,
		Description:   doc.Channel.Description,
		LastBuildDate: doc.Channel.LastBuildDate,
		Language:      doc.Channel.Language,
		Items:         make([]ItemSummary, 0, len(doc.Items)),
	}

	for _, item := range doc.Items {
		metrics := make(map[string]string, len(item.Impact.Metrics))
		for _, m := range item.Impact.Metrics {
			metrics[m.Name] = m.Value
		}
		s.Items = append(s.Items, ItemSummary{
			Title:       item.Title,
			Link:        item.Link,
			PubDate:     item.PubDate,
			Description: item.Description,
			Categories:  append([]string{}, item.Categories...),
			ImpactAssessment: ImpactSummary{
				Summary:       item.Impact.Summary,
				AffectedUsers: item.Impact.AffectedUsers,
				Metrics:       metrics,
			},
		})
	}

	return s
}

func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Summarize(doc)); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	return nil
}

func WriteText(w io.Writer, doc *Document) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Feed: %s\n", doc.Channel.Title)
	fmt.Fprintf(&b, "URL: %s\n", doc.Channel.Link)
	fmt.Fprintf(&b, "Description: %s\n", doc.Channel.Description)
	fmt.Fprintf(&b, "Last Updated: %s\n", doc.Channel.LastBuildDate)
	fmt.Fprintf(&b, "Language: %s\n", doc.Channel.Language)
	b.WriteString("\nItems:\n")

	for i, item := range doc.Items {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, item.Title)
		fmt.Fprintf(&b, "   Published: %s\n", item.PubDate)
		fmt.Fprintf(&b, "   Link: %s\n", item.Link)
		fmt.Fprintf(&b, "   Categories: %s\n", strings.Join(item.Categories, ", "))
		fmt.Fprintf(&b, "   Description: %s\n", item.Description)
		b.WriteString("\n   Impact Assessment:\n")
		fmt.Fprintf(&b, "   - Summary: %s\n", item.Impact.Summary)
		fmt.Fprintf(&b, "   - Affected Users: %s\n", item.Impact.AffectedUsers)
		if len(item.Impact.Metrics) > 0 {
			b.WriteString("   - Metrics:\n")
			for _, m := range item.Impact.Metrics {
				fmt.Fprintf(&b, "     * %s: %s\n", m.Name, m.Value)
			}
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}
	return nil
}
