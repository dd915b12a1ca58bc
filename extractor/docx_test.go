package extractor

import (
	"archive/zip"
	"bytes"
	"html"
	"strings"
	"testing"

	"articlehub/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`

// buildDocx assembles a minimal .docx container around a document.xml body.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	return buildZip(t, map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		documentPart:          documentHeader + "<w:body>" + body + "</w:body></w:document>",
	})
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func paragraphs(texts ...string) string {
	var sb strings.Builder
	for _, text := range texts {
		if text == "" {
			sb.WriteString("<w:p/>")
			continue
		}
		sb.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + html.EscapeString(text) + `</w:t></w:r></w:p>`)
	}
	return sb.String()
}

func TestExtractJoinsParagraphsAndKeepsEmptyOnes(t *testing.T) {
	doc := buildDocx(t, paragraphs("A", "", "B"))

	text, err := Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, "A\n\nB", text)
}

func TestExtractSingleParagraph(t *testing.T) {
	text, err := Docx{}.Extract(buildDocx(t, paragraphs("Hello")))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestExtractIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	doc := buildDocx(t, paragraphs("first", "second & third", "", "<fourth>"))
	original := append([]byte(nil), doc...)

	first, err := Extract(doc)
	require.NoError(t, err)
	second, err := Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "first\nsecond & third\n\n<fourth>", first)
	assert.Equal(t, original, doc)
}

func TestExtractRunsInsideParagraph(t *testing.T) {
	body := `<w:p>
		<w:r><w:t>Hello</w:t></w:r>
		<w:r><w:tab/><w:t xml:space="preserve"> big </w:t></w:r>
		<w:hyperlink><w:r><w:t>world</w:t></w:r></w:hyperlink>
		<w:r><w:br/><w:t>next</w:t><w:br w:type="page"/></w:r>
		<w:r><w:t>!</w:t></w:r>
		<w:del><w:r><w:delText>gone</w:delText></w:r></w:del>
	</w:p>`

	text, err := Extract(buildDocx(t, body))
	require.NoError(t, err)
	assert.Equal(t, "Hello\t big world\nnext!", text)
}

func TestExtractSkipsRunsOutsideHyperlinks(t *testing.T) {
	body := `<w:p>
		<w:r><w:t>kept</w:t></w:r>
		<w:ins><w:r><w:t>inserted</w:t></w:r></w:ins>
		<w:smartTag><w:r><w:t>tagged</w:t></w:r></w:smartTag>
		<w:fldSimple w:instr="PAGE"><w:r><w:t>1</w:t></w:r></w:fldSimple>
	</w:p>`

	text, err := Extract(buildDocx(t, body))
	require.NoError(t, err)
	assert.Equal(t, "kept", text)
}

func TestExtractSkipsTablesAndTextBoxes(t *testing.T) {
	body := paragraphs("before") +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>outer</w:t></w:r><w:r><w:drawing><a:graphic><w:txbxContent><w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></a:graphic></w:drawing></w:r></w:p>` +
		paragraphs("after")

	text, err := Extract(buildDocx(t, body))
	require.NoError(t, err)
	assert.Equal(t, "before\nouter\nafter", text)
}

func TestExtractIgnoresForeignNamespaceText(t *testing.T) {
	body := `<w:p><w:r><w:t>kept</w:t></w:r><w:r><a:t>dropped</a:t></w:r></w:p>`

	text, err := Extract(buildDocx(t, body))
	require.NoError(t, err)
	assert.Equal(t, "kept", text)
}

func TestExtractEmptyBody(t *testing.T) {
	text, err := Extract(buildDocx(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestExtractFailures(t *testing.T) {
	cases := []struct {
		name string
		doc  []byte
		want error
	}{
		{"not a zip", []byte("plain text, not a document"), types.ErrUnsupportedFormat},
		{"empty input", nil, types.ErrUnsupportedFormat},
		{"zip without document part", buildZip(t, map[string]string{"readme.txt": "hi"}), types.ErrUnsupportedFormat},
		{"document without body", buildZip(t, map[string]string{documentPart: documentHeader + "</w:document>"}), types.ErrUnsupportedFormat},
		{"truncated xml", buildZip(t, map[string]string{documentPart: documentHeader + "<w:body><w:p><w:r><w:t>cut"}), types.ErrCorrupt},
		{"malformed xml", buildZip(t, map[string]string{documentPart: documentHeader + "<w:body><w:p></w:r></w:body></w:document>"}), types.ErrCorrupt},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Extract(c.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, c.want)
		})
	}
}
