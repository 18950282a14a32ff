package source

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

// zipWith builds an in-memory zip holding the given name→content entries.
func zipWith(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPlain(t *testing.T) {
	got, err := extractPlain([]byte("Hello world\nLine 2"))
	if err != nil {
		t.Fatalf("extractPlain: %v", err)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractPlain_InvalidUTF8(t *testing.T) {
	got, err := extractPlain([]byte("hello\x80world"))
	if err != nil {
		t.Fatalf("extractPlain: %v", err)
	}
	if got != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractDOCX(t *testing.T) {
	content := zipWith(t, map[string]string{
		"word/document.xml": `<w:document><w:body><w:p><w:r><w:t>Quarterly report</w:t></w:r><w:r><w:t xml:space="preserve">for review</w:t></w:r></w:p></w:body></w:document>`,
	})
	got, err := extractDOCX(content)
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != "Quarterly report for review" {
		t.Errorf("got %q", got)
	}
}

func TestExtractDOCX_AlternateDocumentName(t *testing.T) {
	content := zipWith(t, map[string]string{
		"word/document2.xml": `<w:document><w:body><w:p><w:r><w:t>alternate body</w:t></w:r></w:p></w:body></w:document>`,
	})
	got, err := extractDOCX(content)
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != "alternate body" {
		t.Errorf("got %q", got)
	}
}

func TestExtractDOCX_NotAZip(t *testing.T) {
	if _, err := extractDOCX([]byte("plain bytes")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestExtractPPTX(t *testing.T) {
	content := zipWith(t, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><a:t>Slide one</a:t></p:sld>`,
		"ppt/slides/slide2.xml": `<p:sld><a:t xml:space="preserve">Slide two</a:t></p:sld>`,
	})
	got, err := extractPPTX(content)
	if err != nil {
		t.Fatalf("extractPPTX: %v", err)
	}
	if got != "Slide one Slide two" && got != "Slide two Slide one" {
		t.Errorf("got %q", got)
	}
}

func TestExtractODS(t *testing.T) {
	content := zipWith(t, map[string]string{
		"content.xml": `<office:body><text:p>cell a</text:p><text:span style="x">cell b</text:span></office:body>`,
	})
	got, err := extractODS(content)
	if err != nil {
		t.Fatalf("extractODS: %v", err)
	}
	if got != "cell a cell b" {
		t.Errorf("got %q", got)
	}
}

func TestExtractODP(t *testing.T) {
	content := zipWith(t, map[string]string{
		"content.xml": `<office:body><text:h>Heading</text:h><text:p>Body line</text:p></office:body>`,
	})
	got, err := extractODP(content)
	if err != nil {
		t.Fatalf("extractODP: %v", err)
	}
	// text:p matches run before text:h matches.
	if got != "Body line Heading" {
		t.Errorf("got %q", got)
	}
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := extractXLSX(buf.Bytes())
	if err != nil {
		t.Fatalf("extractXLSX: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestParseHTML(t *testing.T) {
	page := `<html><head><title>Docs Home</title><style>body{}</style></head>` +
		`<body><h1>Welcome</h1><script>var x=1;</script><p>Read the <b>guide</b>.</p></body></html>`
	title, text, err := parseHTML(page)
	if err != nil {
		t.Fatalf("parseHTML: %v", err)
	}
	if title != "Docs Home" {
		t.Errorf("title = %q", title)
	}
	if text != "Welcome Read the guide ." {
		t.Errorf("text = %q", text)
	}
}
