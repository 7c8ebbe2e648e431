package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	e := NewExtractor()

	text, err := e.Extract(".txt", []byte("Закупки регулируются законом."))
	require.NoError(t, err)
	assert.Equal(t, "Закупки регулируются законом.", text)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract(".exe", []byte{0x4d, 0x5a})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.Extract("", []byte("text"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractExtensionIsCaseInsensitive(t *testing.T) {
	e := NewExtractor()

	text, err := e.Extract(".TXT", []byte("привет"))
	require.NoError(t, err)
	assert.Equal(t, "привет", text)
}

// buildDOCX は word/document.xml だけを含む最小のDOCXアーカイブを作る
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractDOCXParagraphs(t *testing.T) {
	e := NewExtractor()

	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Первый абзац.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Второй </w:t></w:r><w:r><w:t>абзац.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

	text, err := e.Extract(".docx", buildDOCX(t, docXML))
	require.NoError(t, err)
	assert.Equal(t, "Первый абзац.\nВторой абзац.", text)
}

func TestExtractDOCXMissingDocumentXML(t *testing.T) {
	e := NewExtractor()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = e.Extract(".docx", buf.Bytes())
	assert.Error(t, err)
}

func TestExtractDOCXInvalidArchive(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract(".docx", []byte("not a zip"))
	assert.Error(t, err)
}

func TestSupportedExtensions(t *testing.T) {
	e := NewExtractor()
	assert.ElementsMatch(t, []string{".txt", ".pdf", ".docx"}, e.SupportedExtensions())
}
