package validator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/atf-feed/app/config"
	"github.com/lysyi3m/atf-feed/app/feed"
	"github.com/lysyi3m/atf-feed/app/rules"
	"github.com/lysyi3m/atf-feed/app/schema"
)

// Validator runs the full validation pipeline over raw documents. It holds
// no per-call state and is safe for concurrent use.
type Validator struct {
	parser *feed.Parser
	schema *schema.Schema
	engine *rules.Engine
	differ *feed.Differ
}

// New builds a Validator. maxSize <= 0 selects feed.DefaultMaxSize.
func New(s *schema.Schema, policy rules.Policy, maxSize int64) (*Validator, error) {
	if s == nil {
		return nil, fmt.Errorf("schema is required")
	}

	parser := feed.NewParser(maxSize)
	return &Validator{
		parser: parser,
		schema: s,
		engine: rules.NewEngine(policy),
		differ: feed.NewDiffer(parser),
	}, nil
}

// NewFromFiles loads the schema artifact and policy file and builds a
// Validator from them. Empty paths select the built-in schema and the
// default policy.
func NewFromFiles(schemaPath, policyPath string) (*Validator, error) {
	var (
		s   *schema.Schema
		err error
	)
	if schemaPath == "" {
		s, err = schema.Default()
	} else {
		s, err = schema.Load(schemaPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	policy, err := config.NewLoader(policyPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	return New(s, policy.RulePolicy(), policy.MaxSizeBytes)
}

// Validate returns every defect of data as seen at now. It never fails: an
// oversized or unparsable buffer yields exactly one error. The result is
// empty, not nil, for a conformant document.
func (v *Validator) Validate(data []byte, now time.Time) []feed.ValidationError {
	start := time.Now()

	doc, err := v.parser.Run(data)
	if err != nil {
		slog.Debug("Feed rejected", "kind", feed.Kind(err), "size", len(data), "error", err)
		return []feed.ValidationError{{Kind: feed.Kind(err), Message: err.Error()}}
	}

	errs := v.ValidateDocument(doc, now)

	slog.Debug("Feed validated", "items", len(doc.Items), "errors", len(errs), "duration", time.Since(start))

	return errs
}

// ValidateDocument runs the structural and semantic checks on an already
// parsed document. The structural check needs the raw tree and is skipped
// for documents built in memory.
func (v *Validator) ValidateDocument(doc *feed.Document, now time.Time) []feed.ValidationError {
	errs := []feed.ValidationError{}
	if doc.Root != nil {
		errs = append(errs, v.schema.Validate(doc.Root)...)
	}
	errs = append(errs, v.engine.Run(doc, now)...)
	return errs
}

// Diff parses both buffers and compares them by item link. A parse failure
// on either side is returned as a *feed.DiffFailure.
func (v *Validator) Diff(first, second []byte) (*feed.Diff, error) {
	return v.differ.Run(first, second)
}

func (v *Validator) Checksum(data []byte) string {
	return feed.Checksum(data)
}

// Parse exposes the size-guarded parser the Validator was built with.
func (v *Validator) Parse(data []byte) (*feed.Document, error) {
	return v.parser.Run(data)
}

func (v *Validator) MaxSize() int64 {
	return v.parser.MaxSize()
}
