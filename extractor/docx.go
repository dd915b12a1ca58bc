// Package extractor turns uploaded rich-text documents into plain text.
package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"articlehub/types"
)

const (
	documentPart = "word/document.xml"

	// maxDocumentPart bounds the decompressed size of document.xml.
	maxDocumentPart = 64 << 20

	wordNamespace       = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	strictWordNamespace = "http://purl.oclc.org/ooxml/wordprocessingml/main"
)

// Containers a run may sit in and still belong to the paragraph's text.
// Runs under tracked insertions, smart tags and simple fields are skipped.
var runContainers = map[string]bool{
	"hyperlink": true,
}

// Docx extracts paragraph text from Office Open XML word-processing documents.
type Docx struct{}

// Extract implements the ingestion extractor contract.
func (Docx) Extract(doc []byte) (string, error) {
	return Extract(doc)
}

// Extract returns the document's top-level body paragraphs joined by "\n".
// Empty paragraphs are kept as empty lines. The input slice is never modified.
func Extract(doc []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("%w: not a zip container: %v", types.ErrUnsupportedFormat, err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("%w: missing %s", types.ErrUnsupportedFormat, documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", types.ErrCorrupt, documentPart, err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(io.LimitReader(rc, maxDocumentPart+1))
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

// paragraphWalker tracks the element stack while streaming document.xml.
type paragraphWalker struct {
	stack      []string
	sawBody    bool
	paraDepth  int // stack depth of the open top-level paragraph, 0 when none
	capture    bool
	current    strings.Builder
	paragraphs []string
}

func readParagraphs(r io.Reader) ([]string, error) {
	counter := &countingReader{r: r}
	dec := xml.NewDecoder(counter)
	w := &paragraphWalker{}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if counter.n > maxDocumentPart {
				return nil, fmt.Errorf("%w: %s exceeds %d bytes", types.ErrCorrupt, documentPart, maxDocumentPart)
			}
			return nil, fmt.Errorf("%w: %v", types.ErrCorrupt, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			if w.capture {
				w.current.Write(t)
			}
		}
	}

	if !w.sawBody {
		return nil, fmt.Errorf("%w: %s has no document body", types.ErrUnsupportedFormat, documentPart)
	}
	if len(w.stack) != 0 {
		return nil, fmt.Errorf("%w: unexpected end of %s", types.ErrCorrupt, documentPart)
	}
	return w.paragraphs, nil
}

func (w *paragraphWalker) start(el xml.StartElement) {
	name := wordLocal(el.Name)
	parent := w.top()
	w.stack = append(w.stack, name)

	if name == "body" && parent == "document" {
		w.sawBody = true
		return
	}
	if name == "p" && parent == "body" && w.paraDepth == 0 {
		w.paraDepth = len(w.stack)
		w.current.Reset()
		return
	}
	if w.paraDepth == 0 || parent != "r" || !w.runBelongsToParagraph() {
		return
	}

	switch name {
	case "t":
		w.capture = true
	case "tab":
		w.current.WriteByte('\t')
	case "cr":
		w.current.WriteByte('\n')
	case "br":
		if breakType(el) == "" || breakType(el) == "textWrapping" {
			w.current.WriteByte('\n')
		}
	case "noBreakHyphen":
		w.current.WriteByte('-')
	}
}

func (w *paragraphWalker) end(el xml.EndElement) {
	if len(w.stack) == 0 {
		return
	}
	name := w.stack[len(w.stack)-1]
	if name == "t" {
		w.capture = false
	}
	if name == "p" && len(w.stack) == w.paraDepth {
		w.paragraphs = append(w.paragraphs, w.current.String())
		w.paraDepth = 0
	}
	w.stack = w.stack[:len(w.stack)-1]
}

// runBelongsToParagraph reports whether the run enclosing the current element
// hangs off the open paragraph directly or through a hyperlink.
func (w *paragraphWalker) runBelongsToParagraph() bool {
	// stack: ... p (paraDepth-1) ... containers ... r, <current>
	for _, name := range w.stack[w.paraDepth : len(w.stack)-2] {
		if !runContainers[name] {
			return false
		}
	}
	return true
}

func (w *paragraphWalker) top() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1]
}

// wordLocal returns the local name for WordprocessingML elements and a
// qualified placeholder for anything else, so foreign "t" or "p" elements
// (DrawingML, math) never match.
func wordLocal(n xml.Name) string {
	if n.Space == wordNamespace || n.Space == strictWordNamespace {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func breakType(el xml.StartElement) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == "type" {
			return attr.Value
		}
	}
	return ""
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
