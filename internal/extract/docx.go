package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

const (
	docxDefaultDocumentPath = "word/document.xml"
	contentTypesPath        = "[Content_Types].xml"
	docxMainContentType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// The main part may list PartName before or after ContentType.
	mainPartRes = []*regexp.Regexp{
		regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
		regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
	}
	// Self-closing empty paragraphs do not match.
	paragraphRe = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*[^/>])?>(.*?)</w:p>`)
	// A run piece is either text, a line break or a tab.
	runPieceRe   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|<w:(?:br|cr)\b[^>]*/>|<w:tab/>`)
	headingStyle = regexp.MustCompile(`<w:pStyle w:val="(?:Heading|heading|Заголовок)\s?([1-6])"`)
	titleStyle   = regexp.MustCompile(`<w:pStyle w:val="Title"`)
)

// readZipEntry returns the bytes of the named entry, or nil when it is absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

// docxMainDocumentPath reads the main part name from [Content_Types].xml, falling back to
// word/document.xml.
func docxMainDocumentPath(zr *zip.Reader) string {
	types, err := readZipEntry(zr, contentTypesPath)
	if err != nil || types == nil {
		return docxDefaultDocumentPath
	}
	for _, re := range mainPartRes {
		if m := re.FindSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultDocumentPath
}

// extractDOCX returns one line per paragraph. Heading styles become markdown headings so the
// first heading can title the instruction, and "---" separator paragraphs survive as lines.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := docxMainDocumentPath(zr)
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	paragraphs := paragraphRe.FindAllSubmatch(docXML, -1)
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		lines = append(lines, docxParagraph(p[1]))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func docxParagraph(body []byte) string {
	var line strings.Builder
	for _, piece := range runPieceRe.FindAllSubmatch(body, -1) {
		switch {
		case bytes.HasPrefix(piece[0], []byte("<w:tab")):
			line.WriteByte('\t')
		case bytes.HasPrefix(piece[0], []byte("<w:br")), bytes.HasPrefix(piece[0], []byte("<w:cr")):
			line.WriteByte('\n')
		default:
			line.WriteString(html.UnescapeString(string(piece[1])))
		}
	}
	text := line.String()
	if strings.TrimSpace(text) == "" {
		return text
	}
	if m := headingStyle.FindSubmatch(body); len(m) > 1 {
		level, _ := strconv.Atoi(string(m[1]))
		return strings.Repeat("#", level) + " " + text
	}
	if titleStyle.Match(body) {
		return "# " + text
	}
	return text
}
