package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed atf-1.0.yaml
var defaultArtifact []byte

// Unbounded is the max occurrence of a particle without an upper limit.
const Unbounded = -1

// Artifact types

type artifact struct {
	Namespace string                `yaml:"namespace"`
	Root      string                `yaml:"root"`
	Elements  map[string]elementDef `yaml:"elements"`
}

type elementDef struct {
	Attributes map[string]attributeDef `yaml:"attributes"`
	Sequence   []particleDef           `yaml:"sequence"`
	All        []particleDef           `yaml:"all"`
	Text       *textDef                `yaml:"text"`
}

type particleDef struct {
	Name string  `yaml:"name"`
	Min  *int    `yaml:"min"`
	Max  *Occurs `yaml:"max"`
}

type attributeDef struct {
	Required bool     `yaml:"required"`
	Enum     []string `yaml:"enum"`
	Pattern  string   `yaml:"pattern"`
}

type textDef struct {
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
	Pattern   string `yaml:"pattern"`
}

// Occurs is a particle's max occurrence: a non-negative count or "unbounded".
type Occurs int

func (o *Occurs) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "unbounded" {
		*o = Unbounded
		return nil
	}
	n, err := strconv.Atoi(value.Value)
	if err != nil || n < 0 {
		return fmt.Errorf("line %d: max must be a non-negative integer or \"unbounded\", got %q", value.Line, value.Value)
	}
	*o = Occurs(n)
	return nil
}

// Compiled types

type contentModel int

const (
	modelEmpty contentModel = iota
	modelSequence
	modelAll
	modelText
)

type particle struct {
	name string
	min  int
	max  int
}

type attribute struct {
	name     string
	required bool
	enum     []string
	pattern  *regexp.Regexp
}

type element struct {
	name       string
	model      contentModel
	particles  []particle
	attributes []attribute // sorted by name
	minLength  int
	maxLength  int
	pattern    *regexp.Regexp
}

func (e *element) attribute(name string) *attribute {
	for i := range e.attributes {
		if e.attributes[i].name == name {
			return &e.attributes[i]
		}
	}
	return nil
}

// Schema is a compiled schema artifact. It is read-only after compilation
// and safe for concurrent use.
type Schema struct {
	namespace string
	root      string
	elements  map[string]*element
}

func (s *Schema) Namespace() string {
	return s.namespace
}

func (s *Schema) Root() string {
	return s.root
}

// Load reads and compiles the schema artifact at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	s, err := Compile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
	}

	return s, nil
}

// Default compiles the embedded ATF 1.0 artifact.
func Default() (*Schema, error) {
	return Compile(defaultArtifact)
}

// DefaultArtifact returns a copy of the embedded ATF 1.0 artifact.
func DefaultArtifact() []byte {
	return append([]byte(nil), defaultArtifact...)
}

func Compile(data []byte) (*Schema, error) {
	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if a.Root == "" {
		return nil, fmt.Errorf("root element is required")
	}
	if _, ok := a.Elements[a.Root]; !ok {
		return nil, fmt.Errorf("root element %q is not declared", a.Root)
	}

	s := &Schema{
		namespace: a.Namespace,
		root:      a.Root,
		elements:  make(map[string]*element, len(a.Elements)),
	}

	// sorted for deterministic error messages
	names := make([]string, 0, len(a.Elements))
	for name := range a.Elements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		el, err := compileElement(name, a.Elements[name])
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", name, err)
		}
		s.elements[name] = el
	}

	for _, name := range names {
		for _, p := range s.elements[name].particles {
			if _, ok := s.elements[p.name]; !ok {
				return nil, fmt.Errorf("element %s: particle references undeclared element %q", name, p.name)
			}
		}
	}

	return s, nil
}

func compileElement(name string, def elementDef) (*element, error) {
	el := &element{name: name}

	models := 0
	if def.Sequence != nil {
		models++
		el.model = modelSequence
	}
	if def.All != nil {
		models++
		el.model = modelAll
	}
	if def.Text != nil {
		models++
		el.model = modelText
	}
	if models > 1 {
		return nil, fmt.Errorf("only one of sequence, all or text may be declared")
	}

	var err error
	switch el.model {
	case modelSequence:
		el.particles, err = compileParticles(def.Sequence, false)
	case modelAll:
		el.particles, err = compileParticles(def.All, true)
	case modelText:
		el.minLength = def.Text.MinLength
		el.maxLength = def.Text.MaxLength
		if el.minLength < 0 || el.maxLength < 0 {
			return nil, fmt.Errorf("text lengths must be non-negative")
		}
		if el.maxLength > 0 && el.minLength > el.maxLength {
			return nil, fmt.Errorf("min_length %d exceeds max_length %d", el.minLength, el.maxLength)
		}
		if def.Text.Pattern != "" {
			el.pattern, err = compilePattern(def.Text.Pattern)
		}
	}
	if err != nil {
		return nil, err
	}

	for attrName, attrDef := range def.Attributes {
		attr := attribute{
			name:     attrName,
			required: attrDef.Required,
			enum:     attrDef.Enum,
		}
		if attrDef.Pattern != "" {
			if attr.pattern, err = compilePattern(attrDef.Pattern); err != nil {
				return nil, fmt.Errorf("attribute %s: %w", attrName, err)
			}
		}
		el.attributes = append(el.attributes, attr)
	}
	sort.Slice(el.attributes, func(i, j int) bool {
		return el.attributes[i].name < el.attributes[j].name
	})

	return el, nil
}

func compileParticles(defs []particleDef, unordered bool) ([]particle, error) {
	seen := make(map[string]bool, len(defs))
	particles := make([]particle, 0, len(defs))

	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("particle %d has no name", i+1)
		}
		if unordered && seen[def.Name] {
			return nil, fmt.Errorf("particle %s declared twice in all group", def.Name)
		}
		seen[def.Name] = true

		p := particle{name: def.Name, min: 1, max: 1}
		if def.Min != nil {
			p.min = *def.Min
		}
		if def.Max != nil {
			p.max = int(*def.Max)
		}
		if p.min < 0 {
			return nil, fmt.Errorf("particle %s: min must be non-negative", def.Name)
		}
		if p.max != Unbounded && p.min > p.max {
			return nil, fmt.Errorf("particle %s: min %d exceeds max %d", def.Name, p.min, p.max)
		}
		particles = append(particles, p)
	}

	return particles, nil
}

// compilePattern anchors pattern so that it must match the whole value.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}
