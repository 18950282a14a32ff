package source

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

// extractPlain returns content as a string, replacing invalid UTF-8
// sequences with the replacement character.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	return string(content), nil
}

// extractWithCat extracts ODT and RTF through lu4p/cat, which detects the
// format by extension.
func extractWithCat(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Ext(path), err)
	}
	return text, nil
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

func extractXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// OOXML and OpenDocument formats are ZIP containers holding XML; text lives
// in a handful of element types per format. The regexes tolerate arbitrary
// attributes on the opening tag.
var (
	wtTag    = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	atTag    = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	textP    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	textSpan = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	textH    = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	// Writers occasionally store the body as word/document2.xml or similar,
	// so fall back to a prefix scan.
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
		if body == nil && strings.HasPrefix(f.Name, "word/document") && strings.HasSuffix(f.Name, ".xml") {
			body = f
		}
	}
	if body == nil {
		return "", fmt.Errorf("extract DOCX: no document xml found")
	}
	xml, err := readZipFile(body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return joinTagText(xml, wtTag), nil
}

func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	var buf strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		slide, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		if text := joinTagText(slide, atTag); text != "" {
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(text)
		}
	}
	return buf.String(), nil
}

func extractODS(content []byte) (string, error) {
	xml, err := zipEntry(content, "content.xml")
	if err != nil {
		return "", fmt.Errorf("extract ODS: %w", err)
	}
	return joinTagText(xml, textP, textSpan), nil
}

func extractODP(content []byte) (string, error) {
	xml, err := zipEntry(content, "content.xml")
	if err != nil {
		return "", fmt.Errorf("extract ODP: %w", err)
	}
	return joinTagText(xml, textP, textSpan, textH), nil
}

// zipEntry returns the named file from a ZIP held in memory.
func zipEntry(content []byte, name string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		return readZipFile(f)
	}
	return "", fmt.Errorf("%s not found", name)
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return buf.String(), nil
}

// joinTagText collects the inner text of every match of the given tag
// patterns, space-joined in document order per pattern.
func joinTagText(xml string, tags ...*regexp.Regexp) string {
	var b strings.Builder
	for _, tag := range tags {
		for _, m := range tag.FindAllStringSubmatch(xml, -1) {
			part := strings.TrimSpace(m[1])
			if part == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(part)
		}
	}
	return b.String()
}
