package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/atf-feed/app/feed"
)

type generateCommand struct {
	cli *cli

	Output string `short:"o" long:"output" description:"Output file; stdout when empty"`

	Args struct {
		Config string `positional-arg-name:"CONFIG" required:"yes" description:"Generator configuration (JSON)"`
	} `positional-args:"yes"`
}

func (cmd *generateCommand) Execute(_ []string) error {
	data, err := cmd.cli.readInput(cmd.Args.Config)
	if err != nil {
		return err
	}

	var config feed.GeneratorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse generator config: %w", err)
	}

	doc, err := feed.BuildDocument(config, cmd.cli.now())
	if err != nil {
		return err
	}

	return cmd.cli.render(doc, cmd.Output)
}

type importCommand struct {
	cli *cli

	Output        string   `short:"o" long:"output" description:"Output file; stdout when empty"`
	Language      string   `long:"language" description:"Language when the source declares none"`
	Categories    []string `long:"category" description:"Category for items without one (repeatable)"`
	Summary       string   `long:"summary" description:"Impact summary for every item; item title when empty"`
	AffectedUsers string   `long:"affected-users" description:"Affected users percentage for every item"`

	Args struct {
		Source string `positional-arg-name:"SOURCE" required:"yes" description:"RSS or Atom feed file"`
	} `positional-args:"yes"`
}

func (cmd *importCommand) Execute(_ []string) error {
	data, err := cmd.cli.readInput(cmd.Args.Source)
	if err != nil {
		return err
	}

	importer := feed.NewImporter(feed.ImportOptions{
		Language:      cmd.Language,
		Categories:    cmd.Categories,
		Summary:       cmd.Summary,
		AffectedUsers: cmd.AffectedUsers,
	})

	doc, err := importer.Run(data, cmd.cli.now())
	if err != nil {
		return err
	}

	slog.Debug("Feed imported", "source", cmd.Args.Source, "items", len(doc.Items))

	return cmd.cli.render(doc, cmd.Output)
}

type updateCommand struct {
	cli *cli

	Output  string `short:"o" long:"output" description:"Output file; stdout when empty"`
	Updates string `short:"u" long:"updates" required:"yes" description:"Update list (JSON array of {type, item_id, data})"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *updateCommand) Execute(_ []string) error {
	if err := singleStdin(cmd.Args.File, cmd.Updates); err != nil {
		return err
	}

	data, err := cmd.cli.readInput(cmd.Args.File)
	if err != nil {
		return err
	}

	doc, err := feed.NewParser(0).Run(data)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	raw, err := cmd.cli.readInput(cmd.Updates)
	if err != nil {
		return err
	}

	var updates []feed.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return fmt.Errorf("failed to parse updates: %w", err)
	}

	updated, err := feed.ApplyUpdates(doc, updates, cmd.cli.now())
	if err != nil {
		return err
	}

	slog.Debug("Updates applied", "count", len(updates), "items", len(updated.Items))

	return cmd.cli.render(updated, cmd.Output)
}

func (c *cli) render(doc *feed.Document, output string) error {
	content, err := feed.NewGenerator().Run(doc)
	if err != nil {
		return err
	}
	return c.writeOutput(output, content)
}
