package extract

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromFilename(t *testing.T) {
	cases := map[string]Format{
		"book.txt":         PlainText,
		"Book.TXT":         PlainText,
		"novel.epub":       Epub,
		"paper.final.pdf":  Pdf,
		"dir/sub/file.Pdf": Pdf,
	}
	for name, want := range cases {
		got, err := FormatFromFilename(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
		assert.NotNil(t, got.Extractor(), name)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	for _, name := range []string{"book.docx", "notes", "archive.txt.zip"} {
		_, err := File(name, []byte("irrelevant"))
		var unsupported *UnsupportedFormatError
		require.True(t, errors.As(err, &unsupported), name)
		assert.Equal(t, "Unsupported file type. Only .txt, .epub and .pdf files are supported.", err.Error())
	}
}

func TestPlainTextStripsBOM(t *testing.T) {
	text, err := File("a.txt", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Hello. World")...))
	require.NoError(t, err)
	assert.Equal(t, "Hello. World", text)
}

func TestPlainTextRejectsInvalidUTF8(t *testing.T) {
	_, err := File("a.txt", []byte{0xff, 0xfe, 0x00, 'a'})
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestPdfRejectsGarbage(t *testing.T) {
	_, err := File("a.pdf", []byte("%PDF-1.4 but not really"))
	assert.Error(t, err)
}

func buildEpub(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testPackage = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

func TestEpubFollowsSpineAndSkipsInvisibleText(t *testing.T) {
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      testPackage,
		"OEBPS/style.css":        "body { color: red }",
		"OEBPS/text/ch1.xhtml":   `<html><head><title>Ignored</title></head><body><p>Chapter one.</p><script>var x = 1;</script></body></html>`,
		"OEBPS/text/ch2.xhtml":   `<html><body><h1>Two</h1><p>Chapter <em>two</em>.</p></body></html>`,
	}
	data := buildEpub(t, files, []string{"mimetype", "META-INF/container.xml", "OEBPS/content.opf", "OEBPS/style.css", "OEBPS/text/ch2.xhtml", "OEBPS/text/ch1.xhtml"})

	text, err := File("book.epub", data)
	require.NoError(t, err)
	assert.Equal(t, "Chapter one.\nTwoChapter two.", text)
}

func TestEpubWithoutContainer(t *testing.T) {
	data := buildEpub(t, map[string]string{"mimetype": "application/epub+zip"}, []string{"mimetype"})
	_, err := File("book.epub", data)
	assert.Error(t, err)
}

func TestEpubRejectsNonZip(t *testing.T) {
	_, err := File("book.epub", []byte("plain text pretending"))
	assert.Error(t, err)
}
