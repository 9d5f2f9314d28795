package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/atf-feed/app/feed"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	c := &cli{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		now:    func() time.Time { return testNow },
	}
	code := c.run(args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func TestHelpAndUsageErrors(t *testing.T) {
	r := runCLI(t, "--help")
	assert.Equal(t, exitOK, r.code)
	assert.Contains(t, r.stdout, "validate")

	r = runCLI(t, "frobnicate")
	assert.Equal(t, exitError, r.code)
	assert.Contains(t, r.stderr, "error:")

	r = runCLI(t, "validate")
	assert.Equal(t, exitError, r.code)
}

func TestValidate(t *testing.T) {
	r := runCLI(t, "validate", testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Equal(t, testdata("feed.xml")+": valid\n", r.stdout)

	r = runCLI(t, "validate", testdata("feed.xml"), testdata("invalid.xml"))
	assert.Equal(t, exitInvalid, r.code, r.stderr)
	assert.Contains(t, r.stdout, testdata("invalid.xml")+": invalid (")
	assert.Contains(t, r.stdout, "LANGUAGE_UNSUPPORTED")

	r = runCLI(t, "validate", "--json", "-j", "1", testdata("invalid.xml"), testdata("feed.xml"))
	assert.Equal(t, exitInvalid, r.code)
	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &results))
	require.Len(t, results, 2)
	assert.Equal(t, testdata("invalid.xml"), results[0].File)
	assert.False(t, results[0].IsValid)
	assert.True(t, results[1].IsValid)

	r = runCLI(t, "validate", testdata("missing.xml"))
	assert.Equal(t, exitError, r.code)

	r = runCLI(t, "validate", "--concurrency", "0", testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)
}

func TestStdinGivenOnce(t *testing.T) {
	r := runCLI(t, "validate", "-", "-")
	assert.Equal(t, exitError, r.code)
	assert.Contains(t, r.stderr, "stdin (-) may be given only once")

	r = runCLI(t, "compare", "-", "-")
	assert.Equal(t, exitError, r.code)
	assert.Contains(t, r.stderr, "only once")

	r = runCLI(t, "checksum", testdata("feed.xml"), "-", "-")
	assert.Equal(t, exitError, r.code)
	assert.Empty(t, r.stdout)

	r = runCLI(t, "checksum", "-")
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855  -\n", r.stdout)
}

func TestValidateReferenceTime(t *testing.T) {
	// The newest item is from 2025-04-15 and the build date from 2025-05-30.
	r := runCLI(t, "validate", "--at", "2025-01-01T00:00:00Z", testdata("feed.xml"))
	assert.Equal(t, exitInvalid, r.code)
	assert.Contains(t, r.stdout, "DATE_FUTURE")

	r = runCLI(t, "validate", "--at", "yesterday", testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)
}

func TestCompare(t *testing.T) {
	r := runCLI(t, "compare", testdata("feed.xml"), testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Equal(t, "No differences\n", r.stdout)

	original, err := os.ReadFile(testdata("feed.xml"))
	require.NoError(t, err)
	modified := filepath.Join(t.TempDir(), "modified.xml")
	changed := strings.Replace(string(original), "Search ranking update", "Search ranking refresh", 1)
	require.NoError(t, os.WriteFile(modified, []byte(changed), 0o644))

	r = runCLI(t, "compare", testdata("feed.xml"), modified)
	assert.Equal(t, exitInvalid, r.code)
	assert.Contains(t, r.stdout, "Modified: Search ranking refresh")
	assert.Contains(t, r.stdout, "- Search ranking update")

	r = runCLI(t, "compare", "--json", testdata("feed.xml"), modified)
	var diff feed.Diff
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &diff))
	assert.Len(t, diff.Modified, 1)

	broken := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte("<atf"), 0o644))
	r = runCLI(t, "compare", broken, testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)
	assert.Contains(t, r.stderr, "first document")
}

func TestChecksum(t *testing.T) {
	data, err := os.ReadFile(testdata("feed.xml"))
	require.NoError(t, err)

	r := runCLI(t, "checksum", testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code)
	assert.Equal(t, feed.Checksum(data)+"  "+testdata("feed.xml")+"\n", r.stdout)
}

func TestRead(t *testing.T) {
	r := runCLI(t, "read", testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Example Platform Algorithm Changes")

	r = runCLI(t, "read", "--json", testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &summary))

	r = runCLI(t, "read", "--max-size", "10", testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)
}

func TestGenerate(t *testing.T) {
	output := filepath.Join(t.TempDir(), "generated.xml")

	r := runCLI(t, "generate", "-o", output, testdata("generator.json"))
	require.Equal(t, exitOK, r.code, r.stderr)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	doc, err := feed.NewParser(0).Run(data)
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "Enhanced privacy protections for ad reporting", doc.Items[0].Impact.Summary)
	assert.Equal(t, "2025-06-01T00:00:00Z", doc.Channel.LastBuildDate)
}

func TestImport(t *testing.T) {
	r := runCLI(t, "import", "--summary", "Classifier change", testdata("source.rss"))
	require.Equal(t, exitOK, r.code, r.stderr)

	doc, err := feed.NewParser(0).Run([]byte(r.stdout))
	require.NoError(t, err)
	assert.Equal(t, "en-us", doc.Channel.Language)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "https://example.com/blog/spam-filter", doc.Items[0].Link)
	assert.Equal(t, "2024-03-05T10:00:00Z", doc.Items[0].PubDate)
	assert.Equal(t, "Classifier change", doc.Items[0].Impact.Summary)
}

func TestUpdate(t *testing.T) {
	updates := filepath.Join(t.TempDir(), "updates.json")
	require.NoError(t, os.WriteFile(updates, []byte(`[
		{"type": "remove", "item_id": "https://example.com/transparency/2023-ranking"},
		{"type": "modify", "item_id": "https://example.com/transparency/2025-privacy", "data": {"title": "Differential privacy v2"}}
	]`), 0o644))

	r := runCLI(t, "update", "-u", updates, testdata("feed.xml"))
	require.Equal(t, exitOK, r.code, r.stderr)

	doc, err := feed.NewParser(0).Run([]byte(r.stdout))
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "Differential privacy v2", doc.Items[0].Title)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"type": "remove", "item_id": "https://example.com/none"}]`), 0o644))
	r = runCLI(t, "update", "-u", bad, testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)
}

func TestKeygenSignVerify(t *testing.T) {
	dir := t.TempDir()

	r := runCLI(t, "keygen", "--dir", dir)
	require.Equal(t, exitOK, r.code, r.stderr)
	privateKey := filepath.Join(dir, "private.pem")
	publicKey := filepath.Join(dir, "public.pem")

	r = runCLI(t, "sign", "-k", privateKey, testdata("feed.xml"))
	require.Equal(t, exitOK, r.code, r.stderr)
	signature := strings.TrimSpace(r.stdout)
	assert.Len(t, signature, 512)

	r = runCLI(t, "verify", "-k", publicKey, "-s", signature, testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "signature valid")

	sigFile := filepath.Join(dir, "feed.sig")
	require.NoError(t, os.WriteFile(sigFile, []byte(signature+"\n"), 0o644))
	r = runCLI(t, "verify", "-k", publicKey, "--signature-file", sigFile, testdata("invalid.xml"))
	assert.Equal(t, exitInvalid, r.code)
	assert.Contains(t, r.stdout, "signature invalid")

	r = runCLI(t, "verify", "-k", publicKey, testdata("feed.xml"))
	assert.Equal(t, exitError, r.code)

	r = runCLI(t, "keygen", "--dir", dir, "--bits", "1024")
	assert.Equal(t, exitError, r.code)
}

func TestArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "atf.db")

	r := runCLI(t, "archive", "store", "--db-path", dbPath, "--version", "2025.06", testdata("feed.xml"))
	require.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Archived 2025.06 as ")

	r = runCLI(t, "archive", "store", "--db-path", dbPath, "--version", "2025.07", testdata("feed.xml"))
	assert.Equal(t, exitOK, r.code)
	assert.Contains(t, r.stdout, "Already archived")

	r = runCLI(t, "archive", "store", "--db-path", dbPath, "--version", "bad", testdata("invalid.xml"))
	assert.Equal(t, exitInvalid, r.code)
	assert.Contains(t, r.stdout, "not archived")

	r = runCLI(t, "archive", "list", "--db-path", dbPath, "--json")
	require.Equal(t, exitOK, r.code, r.stderr)
	var archives []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &archives))
	require.Len(t, archives, 1)
	id, _ := archives[0]["id"].(string)

	r = runCLI(t, "archive", "list", "--db-path", dbPath)
	assert.Contains(t, r.stdout, "VERSION")
	assert.Contains(t, r.stdout, id)

	original, err := os.ReadFile(testdata("feed.xml"))
	require.NoError(t, err)
	r = runCLI(t, "archive", "show", "--db-path", dbPath, "--content", id)
	assert.Equal(t, exitOK, r.code)
	assert.Equal(t, string(original), r.stdout)

	r = runCLI(t, "archive", "show", "--db-path", dbPath, "missing")
	assert.Equal(t, exitError, r.code)

	r = runCLI(t, "archive", "verify", "--db-path", dbPath)
	assert.Equal(t, exitOK, r.code, r.stderr)
	assert.Equal(t, "Checked 1 archives, 0 tampered\n", r.stdout)
}
