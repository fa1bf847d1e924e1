package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"chai-assistant/internal/config"
	"chai-assistant/internal/model"
	"chai-assistant/internal/pkg/pdfextract"
)

const (
	extJSONL = ".jsonl"
	extPDF   = ".pdf"

	maxLineBytes = 16 * 1024 * 1024
)

var errMissingText = errors.New(`missing string field "text"`)

// Scanner turns a directory tree into document records.
type Scanner struct {
	extensions map[string]struct{}
	extractPDF func(io.Reader) (string, error)
	logger     *slog.Logger
}

type Option func(*Scanner)

// WithPDFExtractor replaces the PDF text extractor.
func WithPDFExtractor(fn func(io.Reader) (string, error)) Option {
	return func(s *Scanner) {
		s.extractPDF = fn
	}
}

func NewScanner(cfg config.CorpusConfig, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		extensions: make(map[string]struct{}, len(cfg.Extensions)+1),
		extractPDF: pdfextract.ExtractText,
		logger:     logger,
	}
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extensions[ext] = struct{}{}
	}

	if cfg.EnablePDF {
		s.extensions[extPDF] = struct{}{}
	} else {
		delete(s.extensions, extPDF)
		logger.Warn("pdf extraction disabled, .pdf files will be skipped")
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports reports whether a path has an allowed extension.
func (s *Scanner) Supports(path string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks root in lexical order and yields one record per file, or one per
// line for .jsonl files. Unreadable files and lines are logged and skipped.
func (s *Scanner) Scan(root string) iter.Seq[model.Document] {
	return func(yield func(model.Document) bool) {
		if _, err := os.Stat(root); err != nil {
			s.logger.Warn("corpus directory not found, nothing to scan", "root", root, "error", err)
			return
		}

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("walk corpus entry failed", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !s.Supports(path) {
				return nil
			}

			var keepGoing bool
			switch strings.ToLower(filepath.Ext(path)) {
			case extJSONL:
				keepGoing = s.scanJSONL(path, yield)
			case extPDF:
				keepGoing = s.emitFile(path, model.MimePDF, s.readPDF, yield)
			default:
				keepGoing = s.emitFile(path, model.MimeTextPlain, readText, yield)
			}
			if !keepGoing {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (s *Scanner) emitFile(
	path, mimeType string,
	read func(string) (string, error),
	yield func(model.Document) bool,
) bool {
	content, err := read(path)
	if err != nil {
		s.logger.Warn("skipping unreadable document", "path", path, "error", err)
		return true
	}

	name := filepath.Base(path)
	s.logger.Debug("prepared document", "path", path)
	return yield(model.Document{
		ID:       name,
		Content:  content,
		Metadata: map[string]string{"filename": name},
		MimeType: mimeType,
	})
}

func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("decode %s: invalid utf-8", filepath.Base(path))
	}
	return string(raw), nil
}

func (s *Scanner) readPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.extractPDF(f)
}

func (s *Scanner) scanJSONL(path string, yield func(model.Document) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("skipping unreadable document", "path", path, "error", err)
		return true
	}
	defer f.Close()

	name := filepath.Base(path)
	lines := bufio.NewScanner(f)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for lines.Scan() {
		lineNo++
		line := bytes.TrimSpace(lines.Bytes())
		if len(line) == 0 {
			continue
		}

		doc, err := parseJSONLine(name, lineNo, line)
		if err != nil {
			s.logger.Warn("skipping malformed jsonl line", "path", path, "line", lineNo, "error", err)
			continue
		}
		if !yield(doc) {
			return false
		}
	}
	if err := lines.Err(); err != nil {
		s.logger.Warn("reading jsonl stopped early", "path", path, "line", lineNo+1, "error", err)
	}
	return true
}

func parseJSONLine(filename string, lineNo int, line []byte) (model.Document, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return model.Document{}, err
	}

	rawText, ok := obj["text"]
	if !ok {
		return model.Document{}, errMissingText
	}
	var text string
	if err := json.Unmarshal(rawText, &text); err != nil {
		return model.Document{}, errMissingText
	}

	// Supplied metadata is kept as given; only a missing object gets the default.
	var metadata map[string]string
	if rawMeta, ok := obj["metadata"]; ok {
		var meta map[string]any
		if err := json.Unmarshal(rawMeta, &meta); err == nil && meta != nil {
			metadata = make(map[string]string, len(meta))
			for k, v := range meta {
				metadata[k] = model.Stringify(v)
			}
		}
	}
	if metadata == nil {
		metadata = map[string]string{"filename": filename}
	}

	return model.Document{
		ID:       filename + "#" + strconv.Itoa(lineNo),
		Content:  text,
		Metadata: metadata,
		MimeType: model.MimeTextPlain,
	}, nil
}
