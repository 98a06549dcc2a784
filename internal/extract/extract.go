// Package extract turns uploaded files into documents. Files that cannot be
// read as text still yield a document whose text is a bracketed diagnostic,
// so the pipeline always has something to plan over.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/xiaot623/settle/internal/domain"
)

// DefaultMaxBytes bounds the size of a single file.
const DefaultMaxBytes = 10 << 20

// Extractor converts one file into a document. It never fails: problems are
// reported inside the returned document.
type Extractor interface {
	Extract(name string, r io.Reader) domain.Document
}

// extensionTypes pins media types the system mime table may not know.
var extensionTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var textApplicationTypes = map[string]bool{
	"application/json": true,
	"application/xml":  true,
	"application/yaml": true,
}

// TextExtractor reads text-like files. UTF-16 files with a byte order mark are
// transcoded, and text that is not valid UTF-8 is read as Windows-1252.
type TextExtractor struct {
	MaxBytes int64
}

// Ensure TextExtractor implements Extractor.
var _ Extractor = (*TextExtractor)(nil)

// NewTextExtractor creates an extractor with the default size limit.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{MaxBytes: DefaultMaxBytes}
}

// Extract reads r fully and returns its text.
func (e *TextExtractor) Extract(name string, r io.Reader) domain.Document {
	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return failed(name, "", fmt.Sprintf("read error: %v", err))
	}
	mediaType := detectType(name, data)
	if int64(len(data)) > limit {
		return failed(name, mediaType, fmt.Sprintf("file exceeds %s", humanize.IBytes(uint64(limit))))
	}
	if !isText(mediaType) {
		return failed(name, mediaType, fmt.Sprintf("unsupported file type %s", mediaType))
	}

	text, err := decodeText(data)
	if err != nil {
		return failed(name, mediaType, fmt.Sprintf("decode error: %v", err))
	}
	return domain.Document{
		Filename:  name,
		MediaType: mediaType,
		Text:      text,
	}
}

// ExtractFile opens path and extracts it under its base name.
func ExtractFile(e Extractor, path string) domain.Document {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return failed(name, "", err.Error())
	}
	defer f.Close()
	return e.Extract(name, f)
}

// ExtractFiles extracts every path in order.
func ExtractFiles(e Extractor, paths []string) []domain.Document {
	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		docs = append(docs, ExtractFile(e, p))
	}
	return docs
}

func failed(name, mediaType, reason string) domain.Document {
	return domain.Document{
		Filename:         name,
		MediaType:        mediaType,
		Text:             fmt.Sprintf("[Extraction failed for %s: %s]", name, reason),
		ExtractionFailed: true,
	}
}

func detectType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t)
	}
	return baseType(http.DetectContentType(data))
}

func baseType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

func isText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") || textApplicationTypes[mediaType]
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

func decodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf16LEBOM) || bytes.HasPrefix(data, utf16BEBOM) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
