package knowledge

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether the document starts with the PDF header.
func IsPDF(document []byte) bool {
	return bytes.HasPrefix(document, pdfMagic)
}

// ExtractText returns the plain text of a PDF or UTF-8 text document.
// A document that yields no text is reported as an EmptyDocumentError.
func ExtractText(document []byte) (string, error) {
	if len(document) == 0 {
		return "", &EmptyDocumentError{Reason: "zero bytes"}
	}

	var (
		text string
		err  error
	)
	switch {
	case IsPDF(document):
		text, err = extractPDF(document)
		if err != nil {
			return "", err
		}
	case utf8.Valid(document):
		text = string(document)
	default:
		return "", &EmptyDocumentError{Reason: "unsupported document format (expected PDF or UTF-8 text)"}
	}

	text = normalizeText(text)
	if text == "" {
		return "", &EmptyDocumentError{Reason: "document contains no extractable text"}
	}
	return text, nil
}

func extractPDF(document []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}

// normalizeText unifies line endings, trims trailing spaces and collapses
// runs of blank lines to a single paragraph break.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
