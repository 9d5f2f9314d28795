// Command atfctl validates, compares, authors, signs and archives
// Algorithmic Transparency Feed documents from the command line.
//
// Exit status is 0 when every checked document is valid (or identical for
// compare), 1 when a document is invalid or differs, and 2 on any other
// failure.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/atf-feed/app/cfg"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitError   = 2
)

// errInvalid marks a negative but successfully computed outcome.
var errInvalid = errors.New("check failed")

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

type options struct {
	Verbose bool `short:"v" long:"verbose" description:"Enable debug logging"`
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, now: time.Now}
	os.Exit(c.run(os.Args[1:]))
}

func (c *cli) run(args []string) int {
	var opts options

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "atfctl"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		c.setupLogging(opts.Verbose)
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	if err := c.register(parser); err != nil {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return exitError
	}

	_, err := parser.ParseArgs(args)

	var flagsErr *flags.Error
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
		fmt.Fprintln(c.stdout, flagsErr.Message)
		return exitOK
	case errors.Is(err, errInvalid):
		return exitInvalid
	default:
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return exitError
	}
}

func (c *cli) register(parser *flags.Parser) error {
	commands := []struct {
		name, short, long string
		data              any
	}{
		{"validate", "Validate ATF documents", "Validate one or more ATF documents against the schema and policy.", &validateCommand{cli: c}},
		{"compare", "Compare two ATF documents", "Report items added, removed and modified between two documents.", &compareCommand{cli: c}},
		{"checksum", "Print SHA-256 checksums", "Print the SHA-256 checksum of each file.", &checksumCommand{cli: c}},
		{"read", "Summarize an ATF document", "Print a human readable or JSON summary of a document.", &readCommand{cli: c}},
		{"generate", "Generate a document from a JSON config", "Build an ATF document from a generator configuration.", &generateCommand{cli: c}},
		{"import", "Convert an RSS or Atom feed", "Convert an RSS or Atom feed into an ATF skeleton.", &importCommand{cli: c}},
		{"update", "Apply updates to a document", "Apply add, modify and remove operations to a document.", &updateCommand{cli: c}},
		{"keygen", "Generate a signing key pair", "Write private.pem and public.pem to a directory.", &keygenCommand{cli: c}},
		{"sign", "Sign a document", "Print the hex RSA-PSS signature of a file.", &signCommand{cli: c}},
		{"verify", "Verify a document signature", "Check a hex RSA-PSS signature against a public key.", &verifyCommand{cli: c}},
	}

	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, cmd.long, cmd.data); err != nil {
			return fmt.Errorf("failed to register %s command: %w", cmd.name, err)
		}
	}

	archive, err := parser.AddCommand("archive", "Manage the feed archive", "Store, list, show and verify archived feed versions.", &struct{}{})
	if err != nil {
		return fmt.Errorf("failed to register archive command: %w", err)
	}

	archiveCommands := []struct {
		name, short, long string
		data              any
	}{
		{"store", "Validate and archive a document", "Validate a document and store it as a new archive version.", &archiveStoreCommand{cli: c}},
		{"list", "List archived versions", "List archived versions, newest first.", &archiveListCommand{cli: c}},
		{"show", "Show one archive", "Print an archive record as JSON.", &archiveShowCommand{cli: c}},
		{"verify", "Verify archive integrity", "Recompute every archive checksum and flag tampered rows.", &archiveVerifyCommand{cli: c}},
	}

	for _, cmd := range archiveCommands {
		if _, err := archive.AddCommand(cmd.name, cmd.short, cmd.long, cmd.data); err != nil {
			return fmt.Errorf("failed to register archive %s command: %w", cmd.name, err)
		}
	}

	return nil
}

func (c *cli) setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level})))
	slog.Debug("atfctl starting", "version", cfg.GetVersion())
}

// singleStdin rejects inputs that name stdin more than once.
func singleStdin(paths ...string) error {
	seen := false
	for _, path := range paths {
		if path != "-" {
			continue
		}
		if seen {
			return fmt.Errorf("stdin (-) may be given only once")
		}
		seen = true
	}
	return nil
}

func (c *cli) readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (c *cli) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := c.stdout.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	slog.Debug("Output written", "path", path, "size", len(data))
	return nil
}
