package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// Validate checks the element tree rooted at root and returns every
// violation as a SCHEMA error located by an XPath-like pointer such as
// /atf/item[2]/impactAssessment/affectedUsers. The result is nil when the
// tree conforms.
func (s *Schema) Validate(root *feed.Node) []feed.ValidationError {
	v := &validation{schema: s}

	if root == nil {
		v.report("/", "document has no root element")
		return v.errors
	}

	path := "/" + root.Name.Local
	if root.Name.Local != s.root {
		v.report(path, "unexpected root element <%s>, expected <%s>", root.Name.Local, s.root)
		return v.errors
	}

	v.element(root, s.elements[s.root], path)
	return v.errors
}

type validation struct {
	schema *Schema
	errors []feed.ValidationError
}

func (v *validation) report(path, format string, args ...any) {
	v.errors = append(v.errors, feed.NewError(feed.KindSchema, path, format, args...))
}

func (v *validation) element(node *feed.Node, el *element, path string) {
	if node.Name.Space != v.schema.namespace {
		v.report(path, "element <%s> is in namespace %q, expected %q", node.Name.Local, node.Name.Space, v.schema.namespace)
	}

	v.attributes(node, el, path)

	switch el.model {
	case modelText:
		v.text(node, el, path)
		return
	case modelEmpty:
		if len(node.Children) > 0 || strings.TrimSpace(node.Text) != "" {
			v.report(path, "element <%s> must be empty", el.name)
		}
		return
	}

	if strings.TrimSpace(node.Text) != "" {
		v.report(path, "character data is not allowed in element <%s>", el.name)
	}

	var accepted []bool
	if el.model == modelSequence {
		accepted = v.sequence(node, el, path)
	} else {
		accepted = v.all(node, el, path)
	}

	paths := childPaths(node, path)
	for i, child := range node.Children {
		if accepted[i] {
			v.element(child, v.schema.elements[child.Name.Local], paths[i])
		}
	}
}

func (v *validation) attributes(node *feed.Node, el *element, path string) {
	present := make(map[string]bool, len(node.Attrs))

	for _, attr := range node.Attrs {
		if attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns") {
			continue
		}
		name := attr.Name.Local
		if attr.Name.Space != "" {
			name = attr.Name.Space + ":" + attr.Name.Local
		}

		decl := el.attribute(name)
		if decl == nil {
			v.report(path, "attribute %q is not allowed on <%s>", name, el.name)
			continue
		}
		present[name] = true

		if len(decl.enum) > 0 && !contains(decl.enum, attr.Value) {
			v.report(path, "attribute %q value %q is not one of [%s]", name, attr.Value, strings.Join(decl.enum, ", "))
		}
		if decl.pattern != nil && !decl.pattern.MatchString(attr.Value) {
			v.report(path, "attribute %q value %q does not match pattern %s", name, attr.Value, decl.pattern)
		}
	}

	for _, decl := range el.attributes {
		if decl.required && !present[decl.name] {
			v.report(path, "missing required attribute %q on <%s>", decl.name, el.name)
		}
	}
}

func (v *validation) text(node *feed.Node, el *element, path string) {
	if len(node.Children) > 0 {
		v.report(path, "element <%s> must not contain child elements", el.name)
	}

	value := strings.TrimSpace(node.Text)
	length := utf8.RuneCountInString(value)

	if length < el.minLength {
		v.report(path, "value of <%s> is shorter than %d characters", el.name, el.minLength)
	}
	if el.maxLength > 0 && length > el.maxLength {
		v.report(path, "value of <%s> is longer than %d characters", el.name, el.maxLength)
	}
	if el.pattern != nil && value != "" && !el.pattern.MatchString(value) {
		v.report(path, "value %q of <%s> does not match pattern %s", value, el.name, el.pattern)
	}
}

// sequence matches children against ordered particles. A child that fits
// no remaining particle is reported and skipped, so one misplaced element
// does not hide the rest of the content.
func (v *validation) sequence(node *feed.Node, el *element, path string) []bool {
	accepted := make([]bool, len(node.Children))
	current, count := 0, 0

	for i, child := range node.Children {
		name := child.Name.Local

		k := current
		for k < len(el.particles) && el.particles[k].name != name {
			k++
		}

		if k == len(el.particles) {
			if indexOf(el.particles[:current], name) >= 0 {
				v.report(path, "element <%s> is out of order in <%s>", name, el.name)
			} else {
				v.report(path, "unexpected element <%s> in <%s>", name, el.name)
			}
			continue
		}

		if k == current {
			p := el.particles[current]
			if p.max != Unbounded && count >= p.max {
				v.report(path, "element <%s> occurs more than %d times in <%s>", name, p.max, el.name)
				continue
			}
			count++
			accepted[i] = true
			continue
		}

		v.missing(el, el.particles[current], count, path)
		for _, skipped := range el.particles[current+1 : k] {
			v.missing(el, skipped, 0, path)
		}
		current, count = k, 1
		accepted[i] = true
	}

	if current < len(el.particles) {
		v.missing(el, el.particles[current], count, path)
		for _, rest := range el.particles[current+1:] {
			v.missing(el, rest, 0, path)
		}
	}

	return accepted
}

func (v *validation) all(node *feed.Node, el *element, path string) []bool {
	accepted := make([]bool, len(node.Children))
	counts := make(map[string]int, len(el.particles))

	for i, child := range node.Children {
		name := child.Name.Local
		k := indexOf(el.particles, name)
		if k < 0 {
			v.report(path, "unexpected element <%s> in <%s>", name, el.name)
			continue
		}

		p := el.particles[k]
		if p.max != Unbounded && counts[name] >= p.max {
			v.report(path, "element <%s> occurs more than %d times in <%s>", name, p.max, el.name)
			continue
		}
		counts[name]++
		accepted[i] = true
	}

	for _, p := range el.particles {
		v.missing(el, p, counts[p.name], path)
	}

	return accepted
}

func (v *validation) missing(el *element, p particle, count int, path string) {
	if count >= p.min {
		return
	}
	if p.min == 1 {
		v.report(path, "missing required element <%s> in <%s>", p.name, el.name)
		return
	}
	v.report(path, "element <%s> occurs %d times in <%s>, expected at least %d", p.name, count, el.name, p.min)
}

// childPaths builds the pointer of every child. Siblings sharing a name
// get a 1-based index.
func childPaths(node *feed.Node, path string) []string {
	total := make(map[string]int)
	for _, child := range node.Children {
		total[child.Name.Local]++
	}

	seen := make(map[string]int)
	paths := make([]string, len(node.Children))
	for i, child := range node.Children {
		name := child.Name.Local
		seen[name]++
		if total[name] > 1 {
			paths[i] = fmt.Sprintf("%s/%s[%d]", path, name, seen[name])
		} else {
			paths[i] = path + "/" + name
		}
	}
	return paths
}

func indexOf(particles []particle, name string) int {
	for i, p := range particles {
		if p.name == name {
			return i
		}
	}
	return -1
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
