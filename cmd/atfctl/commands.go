package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/atf-feed/app/feed"
	"github.com/lysyi3m/atf-feed/app/validator"
)

type validatorOptions struct {
	Schema string `long:"schema" env:"SCHEMA_PATH" description:"Schema artifact (YAML); built-in ATF 1.0 schema when empty"`
	Policy string `long:"policy" env:"POLICY_PATH" description:"Validation policy file (YAML); defaults when empty"`
}

func (o validatorOptions) build() (*validator.Validator, error) {
	return validator.NewFromFiles(o.Schema, o.Policy)
}

type validateCommand struct {
	cli *cli
	validatorOptions

	JSON        bool   `long:"json" description:"Print results as JSON"`
	Concurrency int    `short:"j" long:"concurrency" default:"4" description:"Number of documents validated in parallel"`
	At          string `long:"at" description:"Reference time (RFC 3339) for date checks; now when empty"`

	Args struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

type fileResult struct {
	File     string                 `json:"file"`
	IsValid  bool                   `json:"is_valid"`
	Checksum string                 `json:"checksum"`
	Errors   []feed.ValidationError `json:"errors"`
}

func (cmd *validateCommand) Execute(_ []string) error {
	if cmd.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if err := singleStdin(cmd.Args.Files...); err != nil {
		return err
	}

	now, err := cmd.referenceTime()
	if err != nil {
		return err
	}

	v, err := cmd.build()
	if err != nil {
		return err
	}

	results := make([]fileResult, len(cmd.Args.Files))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cmd.Concurrency)

	for i, path := range cmd.Args.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := cmd.cli.readInput(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			errs := v.Validate(data, now)
			results[i] = fileResult{
				File:     path,
				IsValid:  len(errs) == 0,
				Checksum: v.Checksum(data),
				Errors:   errs,
			}
			slog.Debug("Document validated", "file", path, "errors", len(errs))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if err := cmd.print(results); err != nil {
		return err
	}

	for _, r := range results {
		if !r.IsValid {
			return errInvalid
		}
	}
	return nil
}

func (cmd *validateCommand) referenceTime() (time.Time, error) {
	if cmd.At == "" {
		return cmd.cli.now(), nil
	}
	at, err := time.Parse(time.RFC3339, cmd.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value: %w", err)
	}
	return at, nil
}

func (cmd *validateCommand) print(results []fileResult) error {
	out := cmd.cli.stdout

	if cmd.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		if r.IsValid {
			fmt.Fprintf(out, "%s: valid\n", r.File)
			continue
		}
		fmt.Fprintf(out, "%s: invalid (%d errors)\n", r.File, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(out, "  %s\n", e.Error())
		}
	}
	return nil
}

type compareCommand struct {
	cli *cli
	validatorOptions

	JSON bool `long:"json" description:"Print the diff as JSON"`

	Args struct {
		First  string `positional-arg-name:"FIRST" required:"yes"`
		Second string `positional-arg-name:"SECOND" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *compareCommand) Execute(_ []string) error {
	if err := singleStdin(cmd.Args.First, cmd.Args.Second); err != nil {
		return err
	}

	v, err := cmd.build()
	if err != nil {
		return err
	}

	first, err := cmd.cli.readInput(cmd.Args.First)
	if err != nil {
		return err
	}
	second, err := cmd.cli.readInput(cmd.Args.Second)
	if err != nil {
		return err
	}

	diff, err := v.Diff(first, second)
	if err != nil {
		return err
	}

	out := cmd.cli.stdout
	if cmd.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diff); err != nil {
			return err
		}
	} else {
		printDiff(cmd.cli, diff)
	}

	if !diff.IsEmpty() {
		return errInvalid
	}
	return nil
}

func printDiff(c *cli, diff *feed.Diff) {
	out := c.stdout

	if diff.IsEmpty() {
		fmt.Fprintln(out, "No differences")
		return
	}

	for _, title := range diff.Added {
		fmt.Fprintf(out, "Added: %s\n", title)
	}
	for _, title := range diff.Removed {
		fmt.Fprintf(out, "Removed: %s\n", title)
	}
	for _, m := range diff.Modified {
		fmt.Fprintf(out, "Modified: %s\n", m.Title)
		for _, field := range []string{"title", "description", "pubDate"} {
			change, ok := m.Changes[field]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %s:\n", field)
			for _, line := range change.Diff {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}
}

type checksumCommand struct {
	cli *cli

	Args struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

func (cmd *checksumCommand) Execute(_ []string) error {
	if err := singleStdin(cmd.Args.Files...); err != nil {
		return err
	}

	for _, path := range cmd.Args.Files {
		data, err := cmd.cli.readInput(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.cli.stdout, "%s  %s\n", feed.Checksum(data), path)
	}
	return nil
}

type readCommand struct {
	cli *cli

	JSON    bool  `long:"json" description:"Print the summary as JSON"`
	MaxSize int64 `long:"max-size" description:"Maximum document size in bytes"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *readCommand) Execute(_ []string) error {
	data, err := cmd.cli.readInput(cmd.Args.File)
	if err != nil {
		return err
	}

	doc, err := feed.NewParser(cmd.MaxSize).Run(data)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	if cmd.JSON {
		return feed.WriteJSON(cmd.cli.stdout, doc)
	}
	return feed.WriteText(cmd.cli.stdout, doc)
}
