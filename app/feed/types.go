package feed

import (
	"encoding/xml"
	"time"
)

// Namespace is the XML namespace of ATF 1.0 documents.
const Namespace = "https://www.algorithmictransparency.gov/atf"

// DateLayout is the only timestamp profile accepted in ATF documents.
const DateLayout = "2006-01-02T15:04:05Z"

// Document types

// Document is the typed tree of one ATF feed. It is built once by the
// Parser and never mutated afterwards.
type Document struct {
	Version string
	Channel Channel
	Items   []Item

	// Root is the raw element tree the document was built from. The
	// structural validator works on it; the rules never do.
	Root *Node
}

type Channel struct {
	Title         string
	Link          string
	Description   string
	LastBuildDate string
	Language      string
}

type Item struct {
	Title       string
	Link        string // identity key within a document
	PubDate     string
	Description string
	Categories  []string
	Impact      ImpactAssessment
}

type ImpactAssessment struct {
	Summary       string
	AffectedUsers string
	Metrics       []Metric // document order
	Risks         []string
	Mitigations   []string
}

type Metric struct {
	Name  string
	Value string
}

// Metric returns the value of the last metric with the given name.
func (ia ImpactAssessment) Metric(name string) (string, bool) {
	for i := len(ia.Metrics) - 1; i >= 0; i-- {
		if ia.Metrics[i].Name == name {
			return ia.Metrics[i].Value, true
		}
	}
	return "", false
}

// Node is a namespace-aware XML element with its attributes, children and
// concatenated character data.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child element with the given local name.
func (n *Node) Child(local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all child elements with the given local name.
func (n *Node) ChildrenNamed(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// ParseDate parses s against DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders t in DateLayout (UTC).
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
