// Package extractor converts raw uploaded files into normalized plain text.
// It dispatches by extension to a type-specific reader and never touches the
// vector store.
package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat indicates a file type outside the allowed set.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed indicates a corrupt or unreadable file of a
	// supported type.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrNoText indicates a non-empty file that yielded no extractable text.
	// Distinct from ErrExtractionFailed: the file was readable but carries
	// nothing to index.
	ErrNoText = errors.New("no extractable text")

	// ErrFileTooLarge indicates the upload exceeds the configured size cap.
	ErrFileTooLarge = errors.New("file too large")
)

// DefaultExtensions is the default allowed set, comma-separated for config.
const DefaultExtensions = "txt,md,pdf,docx,rtf,csv,json,pptx"

// DefaultMaxBytes caps uploads at 15 MiB.
const DefaultMaxBytes = 15 << 20

// Extractor dispatches files to type-specific readers.
type Extractor struct {
	maxBytes int64
	allowed  map[string]bool
}

// New creates an extractor. extensions is a comma-separated list without dots
// (e.g. "txt,md,pdf"); zero values fall back to the defaults.
func New(maxBytes int64, extensions string) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if extensions == "" {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool)
	for _, ext := range strings.Split(extensions, ",") {
		ext = strings.TrimSpace(ext)
		if ext != "" {
			allowed["."+strings.ToLower(ext)] = true
		}
	}
	return &Extractor{maxBytes: maxBytes, allowed: allowed}
}

// Extract converts file bytes into normalized plain text. It fails with
// ErrUnsupportedFormat for disallowed types, ErrExtractionFailed for corrupt
// input and ErrNoText when a non-empty file produces empty output.
func (e *Extractor) Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !e.allowed[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		text = decodeText(data)
	case ".md":
		text, err = extractMarkdown(data)
	case ".pdf":
		text, err = extractPDF(data)
	case ".docx":
		text, err = extractDOCX(data)
	case ".pptx":
		text, err = extractPPTX(data)
	case ".rtf":
		text, err = extractRTF(data)
	case ".csv":
		text, err = extractCSV(data)
	case ".json":
		text, err = extractJSON(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}

	text = normalizeWhitespace(text)
	if text == "" && len(data) > 0 {
		return "", fmt.Errorf("%w: %s", ErrNoText, filename)
	}
	return text, nil
}

var (
	crlfRe = regexp.MustCompile(`\r\n?`)
	wsRe   = regexp.MustCompile(`[ \t\f\v]+`)
)

// normalizeWhitespace folds line endings to \n, collapses runs of horizontal
// whitespace and trims the result. Blank-line structure is preserved so the
// chunker can still see paragraph boundaries.
func normalizeWhitespace(s string) string {
	s = crlfRe.ReplaceAllString(s, "\n")
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// decodeText interprets bytes as UTF-8, falling back to Latin-1 so that
// legacy text files still yield something usable.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
