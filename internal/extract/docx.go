package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// docxDocumentXML is the conventional path of the document body inside a .docx zip.
const docxDocumentXML = "word/document.xml"

// wtText matches <w:t> nodes with or without attributes
// (e.g. <w:t xml:space="preserve">).
var wtText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// extractDOCX extracts text from .docx bytes. DOCX is a ZIP containing
// word/document.xml; all <w:t> text nodes are collected and joined with
// newlines at paragraph boundaries so the chunker's separator still applies.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXML {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		docXML, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("%s not found", docxDocumentXML)
	}

	var b strings.Builder
	for _, para := range strings.Split(string(docXML), "</w:p>") {
		parts := wtText.FindAllStringSubmatch(para, -1)
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		for _, p := range parts {
			// Text nodes carry XML entities (&amp;, &lt;) that must not
			// leak into chunks.
			b.WriteString(html.UnescapeString(p[1]))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
