// Package extract converts uploaded script files (.txt, .docx, .pdf) into
// plain text for the parse pipeline.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUnsupportedFormat marks files the extractor cannot handle. Callers use
// this to reject an upload outright instead of retrying.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ExtractText converts file data into plain text. The format is chosen by
// the extension of nameHint; a missing extension is treated as plain text.
func ExtractText(data []byte, nameHint string) (string, error) {
	switch strings.ToLower(filepath.Ext(nameHint)) {
	case "", ".txt":
		return extractPlainText(data)
	case ".docx":
		return extractDocx(data)
	case ".pdf":
		return extractPDF(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(nameHint))
	}
}

// extractPlainText strips a UTF-8 BOM and rejects non-UTF-8 content.
func extractPlainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnsupportedFormat)
	}
	return string(data), nil
}

// extractDocx pulls paragraph text out of word/document.xml.
func extractDocx(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a valid docx archive", ErrUnsupportedFormat)
	}

	var document *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrUnsupportedFormat)
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	return docxToText(rc)
}

// docxToText walks the document XML, collecting character data and turning
// paragraph ends into newlines and tabs into tabs.
func docxToText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var out strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			out.Write(t)
		case xml.StartElement:
			if t.Name.Local == "tab" {
				out.WriteByte('\t')
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				out.WriteByte('\n')
			}
		}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// pdfTextOp matches literal strings in Tj/TJ text-showing operators.
var pdfTextOp = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)

// extractPDF extracts the page content streams and scrapes text-showing
// operators out of them. Good enough for digitally produced scripts; scanned
// PDFs come out empty and are reported as unsupported.
func extractPDF(data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "offbook-pdf-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}

	f, err := os.Open(inFile)
	if err != nil {
		return "", fmt.Errorf("failed to open temp pdf: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("%w: not a readable pdf", ErrUnsupportedFormat)
	}
	if pageCount == 0 {
		return "", fmt.Errorf("%w: pdf has no pages", ErrUnsupportedFormat)
	}

	contentDir := filepath.Join(tmpDir, "content")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create content dir: %w", err)
	}
	if err := api.ExtractContentFile(inFile, contentDir, nil, nil); err != nil {
		return "", fmt.Errorf("failed to extract pdf content: %w", err)
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return "", fmt.Errorf("failed to read content dir: %w", err)
	}

	var out strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(contentDir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read page content: %w", err)
		}
		page := scrapeContentStream(raw)
		if page != "" {
			out.WriteString(page)
			out.WriteByte('\n')
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("%w: pdf contains no extractable text (scanned document?)", ErrUnsupportedFormat)
	}
	return text, nil
}

// scrapeContentStream pulls literal strings out of a page content stream.
// Text-positioning operators between strings become line breaks.
func scrapeContentStream(raw []byte) string {
	var out strings.Builder
	for _, line := range bytes.Split(raw, []byte("\n")) {
		matches := pdfTextOp.FindAllSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			out.WriteString(unescapePDFString(string(m[1])))
		}
		out.WriteByte('\n')
	}
	return strings.TrimSpace(out.String())
}

// unescapePDFString handles the escape sequences allowed in PDF literal
// strings.
func unescapePDFString(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			out.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r', 'f', 'b':
			// Ignore
		default:
			out.WriteByte(s[i])
		}
	}
	return out.String()
}
