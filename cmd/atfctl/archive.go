package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/lysyi3m/atf-feed/app/database"
	"github.com/lysyi3m/atf-feed/app/security"
)

type dbOptions struct {
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/atf.db" description:"SQLite database file for the feed archive"`
}

// open returns a migrated archive repository and a close function.
func (o dbOptions) open() (*database.ArchiveRepository, func(), error) {
	db, err := database.Open(o.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := database.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return database.NewArchiveRepository(db), func() { db.Close() }, nil
}

type archiveStoreCommand struct {
	cli *cli
	dbOptions
	validatorOptions

	Version string `long:"version" required:"yes" description:"Version label of the archived document"`
	Key     string `short:"k" long:"key" description:"PEM private key; the archive is signed when set"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *archiveStoreCommand) Execute(_ []string) error {
	v, err := cmd.build()
	if err != nil {
		return err
	}

	data, err := cmd.cli.readInput(cmd.Args.File)
	if err != nil {
		return err
	}

	if errs := v.Validate(data, cmd.cli.now()); len(errs) > 0 {
		fmt.Fprintf(cmd.cli.stdout, "%s: invalid (%d errors), not archived\n", cmd.Args.File, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.cli.stdout, "  %s\n", e.Error())
		}
		return errInvalid
	}

	var signature string
	if cmd.Key != "" {
		key, err := security.LoadPrivateKey(cmd.Key)
		if err != nil {
			return err
		}
		if signature, err = security.NewSigner(key).Sign(data); err != nil {
			return err
		}
	}

	repo, closeDB, err := cmd.open()
	if err != nil {
		return err
	}
	defer closeDB()

	archive, err := repo.CreateArchive(cmd.Version, data, signature, cmd.cli.now())
	if errors.Is(err, database.ErrDuplicateArchive) {
		fmt.Fprintf(cmd.cli.stdout, "Already archived as %s (version %s)\n", archive.ID, archive.Version)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.cli.stdout, "Archived %s as %s (checksum %s)\n", cmd.Version, archive.ID, archive.Checksum)
	return nil
}

type archiveListCommand struct {
	cli *cli
	dbOptions

	Limit int  `short:"n" long:"limit" default:"100" description:"Maximum number of archives"`
	JSON  bool `long:"json" description:"Print archives as JSON"`
}

func (cmd *archiveListCommand) Execute(_ []string) error {
	repo, closeDB, err := cmd.open()
	if err != nil {
		return err
	}
	defer closeDB()

	archives, err := repo.ListArchives(cmd.Limit)
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(cmd.cli.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(archives)
	}

	w := tabwriter.NewWriter(cmd.cli.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tCREATED\tSIZE\tSIGNED\tTAMPERED")
	for _, a := range archives {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\n",
			a.ID, a.Version, a.CreatedAt.Format(time.RFC3339), a.SizeBytes, a.Signature != "", a.Tampered)
	}
	return w.Flush()
}

type archiveShowCommand struct {
	cli *cli
	dbOptions

	Content bool `long:"content" description:"Print only the archived document"`

	Args struct {
		ID string `positional-arg-name:"ID" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *archiveShowCommand) Execute(_ []string) error {
	repo, closeDB, err := cmd.open()
	if err != nil {
		return err
	}
	defer closeDB()

	archive, err := repo.GetArchive(cmd.Args.ID)
	if err != nil {
		return err
	}

	if cmd.Content {
		_, err := fmt.Fprint(cmd.cli.stdout, archive.Content)
		return err
	}

	enc := json.NewEncoder(cmd.cli.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(archive)
}

type archiveVerifyCommand struct {
	cli *cli
	dbOptions
}

func (cmd *archiveVerifyCommand) Execute(_ []string) error {
	repo, closeDB, err := cmd.open()
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := repo.VerifyIntegrity(cmd.cli.now())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.cli.stdout, "Checked %d archives, %d tampered\n", report.Checked, len(report.Tampered))
	for _, id := range report.Tampered {
		fmt.Fprintf(cmd.cli.stdout, "  tampered: %s\n", id)
	}

	if len(report.Tampered) > 0 {
		return errInvalid
	}
	return nil
}
