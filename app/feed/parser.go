package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxSize is the size limit used when none is configured.
const DefaultMaxSize = 10 * 1024 * 1024

type Parser struct {
	maxSize int64
}

func NewParser(maxSize int64) *Parser {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Parser{maxSize: maxSize}
}

func (p *Parser) MaxSize() int64 {
	return p.maxSize
}

// Run checks the size guard and parses data into a Document. The returned
// error wraps ErrSizeExceeded or is a *ParseError.
func (p *Parser) Run(data []byte) (*Document, error) {
	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrSizeExceeded, len(data), p.maxSize)
	}

	root, err := p.buildTree(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	return p.buildDocument(root), nil
}

func (p *Parser) buildTree(data []byte) (*Node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true
	decoder.CharsetReader = charsetReader

	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("unexpected second root element <%s>", t.Name.Local)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
			texts = append(texts, &strings.Builder{})

		case xml.EndElement:
			top := len(stack) - 1
			stack[top].Text = texts[top].String()
			stack = stack[:top]
			texts = texts[:top]

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, fmt.Errorf("character data outside the root element")
				}
				continue
			}
			texts[len(texts)-1].Write(t)
		}
	}

	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}

	return root, nil
}

func (p *Parser) buildDocument(root *Node) *Document {
	version, _ := root.Attr("version")
	doc := &Document{
		Version: version,
		Root:    root,
	}

	channel := root.Child("channel")
	doc.Channel = Channel{
		Title:         text(channel.Child("title")),
		Link:          text(channel.Child("link")),
		Description:   text(channel.Child("description")),
		LastBuildDate: text(channel.Child("lastBuildDate")),
		Language:      text(channel.Child("language")),
	}

	for _, itemNode := range root.ChildrenNamed("item") {
		doc.Items = append(doc.Items, p.buildItem(itemNode))
	}

	return doc
}

func (p *Parser) buildItem(node *Node) Item {
	item := Item{
		Title:       text(node.Child("title")),
		Link:        text(node.Child("link")),
		PubDate:     text(node.Child("pubDate")),
		Description: text(node.Child("description")),
	}

	for _, c := range node.Child("categories").ChildrenNamed("category") {
		item.Categories = append(item.Categories, text(c))
	}

	impact := node.Child("impactAssessment")
	item.Impact = ImpactAssessment{
		Summary:       text(impact.Child("summary")),
		AffectedUsers: text(impact.Child("affectedUsers")),
	}

	for _, m := range impact.Child("metrics").ChildrenNamed("metric") {
		name, _ := m.Attr("name")
		item.Impact.Metrics = append(item.Impact.Metrics, Metric{Name: name, Value: text(m)})
	}
	for _, r := range impact.Child("risks").ChildrenNamed("risk") {
		item.Impact.Risks = append(item.Impact.Risks, text(r))
	}
	for _, m := range impact.Child("mitigations").ChildrenNamed("mitigation") {
		item.Impact.Mitigations = append(item.Impact.Mitigations, text(m))
	}

	return item
}

func text(n *Node) string {
	if n == nil {
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(n.Text))
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
