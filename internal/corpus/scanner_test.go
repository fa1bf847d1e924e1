package corpus

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chai-assistant/internal/config"
	"chai-assistant/internal/logger"
	"chai-assistant/internal/model"
)

func testCorpusConfig() config.CorpusConfig {
	return config.CorpusConfig{
		Extensions: []string{".md", ".txt", ".adoc", ".jsonl"},
		EnablePDF:  true,
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func ids(docs []model.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestScan_PlainFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "Beta")
	writeFile(t, dir, "a.md", "Alpha")
	writeFile(t, dir, "nested/c.TXT", "Gamma")
	writeFile(t, dir, "image.png", "not text")

	s := NewScanner(testCorpusConfig(), logger.Nop())
	docs := slices.Collect(s.Scan(dir))

	assert.Equal(t, []string{"a.md", "b.md", "c.TXT"}, ids(docs))
	assert.Equal(t, "Alpha", docs[0].Content)
	assert.Equal(t, map[string]string{"filename": "a.md"}, docs[0].Metadata)
	assert.Equal(t, model.MimeTextPlain, docs[0].MimeType)
}

func TestScan_JSONLLineAddressing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.jsonl",
		`{"text":"one"}`+"\n"+
			`{"text":"two","metadata":{"source":"wiki","page":3,"draft":false}}`+"\n"+
			`{"text":"three","metadata":{"filename":"orig.md"}}`+"\n")

	s := NewScanner(testCorpusConfig(), logger.Nop())
	docs := slices.Collect(s.Scan(dir))

	require.Equal(t, []string{"file.jsonl#1", "file.jsonl#2", "file.jsonl#3"}, ids(docs))
	assert.Equal(t, map[string]string{"filename": "file.jsonl"}, docs[0].Metadata)
	assert.Equal(t, map[string]string{"source": "wiki", "page": "3", "draft": "false"}, docs[1].Metadata, "supplied metadata is not enriched")
	assert.Equal(t, "orig.md", docs[2].Metadata["filename"])
	assert.Equal(t, "three", docs[2].Content)
}

func TestScan_FailSoft(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "Alpha")
	writeFile(t, dir, "b.md", "Beta")
	writeFile(t, dir, "broken.jsonl", "{not json\n")

	s := NewScanner(testCorpusConfig(), logger.Nop())
	docs := slices.Collect(s.Scan(dir))

	assert.Equal(t, []string{"a.md", "b.md"}, ids(docs))
}

func TestScan_JSONLSkipsBadLinesKeepsNumbering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mixed.jsonl",
		`{"text":"ok"}`+"\n"+
			"\n"+
			`{"metadata":{}}`+"\n"+
			`{"text":42}`+"\n"+
			`[1,2]`+"\n"+
			`{"text":"last"}`)

	s := NewScanner(testCorpusConfig(), logger.Nop())
	docs := slices.Collect(s.Scan(dir))

	assert.Equal(t, []string{"mixed.jsonl#1", "mixed.jsonl#6"}, ids(docs))
}

func TestScan_InvalidUTF8Skipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.txt", string([]byte{0xff, 0xfe, 0xfd}))
	writeFile(t, dir, "good.txt", "fine")

	s := NewScanner(testCorpusConfig(), logger.Nop())
	assert.Equal(t, []string{"good.txt"}, ids(slices.Collect(s.Scan(dir))))
}

func TestScan_MissingRoot(t *testing.T) {
	s := NewScanner(testCorpusConfig(), logger.Nop())
	docs := slices.Collect(s.Scan(filepath.Join(t.TempDir(), "absent")))
	assert.Empty(t, docs)
}

func TestScan_PDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.pdf", "%PDF-fake")
	writeFile(t, dir, "broken.pdf", "%PDF-broken")

	extract := func(r io.Reader) (string, error) {
		raw, _ := io.ReadAll(r)
		if string(raw) == "%PDF-broken" {
			return "", errors.New("corrupt")
		}
		return "page one\npage two", nil
	}

	s := NewScanner(testCorpusConfig(), logger.Nop(), WithPDFExtractor(extract))
	docs := slices.Collect(s.Scan(dir))

	require.Len(t, docs, 1)
	assert.Equal(t, "guide.pdf", docs[0].ID)
	assert.Equal(t, model.MimePDF, docs[0].MimeType)
	assert.Equal(t, "page one\npage two", docs[0].Content)
}

func TestScan_PDFDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.pdf", "%PDF-fake")
	writeFile(t, dir, "a.md", "Alpha")

	cfg := testCorpusConfig()
	cfg.EnablePDF = false
	cfg.Extensions = append(cfg.Extensions, ".pdf")

	s := NewScanner(cfg, logger.Nop())
	assert.False(t, s.Supports("guide.pdf"))
	assert.Equal(t, []string{"a.md"}, ids(slices.Collect(s.Scan(dir))))
}

func TestScan_StopsEarly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "Alpha")
	writeFile(t, dir, "b.md", "Beta")
	writeFile(t, dir, "c.jsonl", `{"text":"x"}`+"\n"+`{"text":"y"}`)

	s := NewScanner(testCorpusConfig(), logger.Nop())
	var seen []string
	for doc := range s.Scan(dir) {
		seen = append(seen, doc.ID)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a.md", "b.md"}, seen)
}
