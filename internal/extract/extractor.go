// Package extract provides text extraction from uploaded document files.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

// FileError reports an extraction failure for a single named file.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Extractor extracts plain text from uploaded document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractAll extracts text from every file in order and returns the
// concatenated result, files separated by a newline. A failure on any one
// file aborts the whole extraction and returns a *FileError naming it; no
// partial result is returned.
func (e *Extractor) ExtractAll(files []models.DocumentFile) (string, error) {
	var b strings.Builder
	for _, f := range files {
		text, err := e.ExtractBytes(f.Content, strings.ToLower(filepath.Ext(f.Name)))
		if err != nil {
			return "", &FileError{Name: f.Name, Err: err}
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are
// treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", "":
		return extractPlain(content)
	default:
		return extractPlain(content)
	}
}
