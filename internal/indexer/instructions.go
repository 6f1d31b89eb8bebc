package indexer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/spravka/internal/models"
)

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*\s*$`)
	imageRe   = regexp.MustCompile(`\[\[image:\s*([^\]]+?)\s*\]\]`)
)

// ParsedInstruction is one instruction cut out of a file, before chunking.
type ParsedInstruction struct {
	Title          string
	Body           string
	SourceType     models.SourceType
	SeparatorIndex *int
	Images         []models.Image
}

// SplitInstructions cuts extracted file text into instructions. In markdown, plain text and
// DOCX a line consisting of "---" separates instructions; any other format is a single
// instruction.
// Titles come from the first markdown heading, falling back to fileTitle, numbered " (n)"
// when the file holds more than one instruction. Empty parts are dropped.
func SplitInstructions(text, ext, fileTitle string) []*ParsedInstruction {
	parts := []string{text}
	switch strings.ToLower(ext) {
	case ".md", ".txt", ".docx":
		parts = splitOnSeparator(text)
	}

	bodies := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Preprocess(p); p != "" {
			bodies = append(bodies, p)
		}
	}

	multi := len(bodies) > 1
	out := make([]*ParsedInstruction, 0, len(bodies))
	for i, body := range bodies {
		inst := &ParsedInstruction{
			Body:       body,
			SourceType: models.SourceSingleFile,
			Images:     ExtractImages(body),
		}
		title := firstHeading(body)
		if multi {
			idx := i
			inst.SourceType = models.SourceMultiInstruction
			inst.SeparatorIndex = &idx
			if title == "" {
				title = fmt.Sprintf("%s (%d)", fileTitle, i+1)
			}
		}
		if title == "" {
			title = fileTitle
		}
		inst.Title = title
		out = append(out, inst)
	}
	return out
}

func splitOnSeparator(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		parts []string
		cur   []string
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "---" {
			parts = append(parts, strings.Join(cur, "\n"))
			cur = cur[:0]
			continue
		}
		cur = append(cur, line)
	}
	return append(parts, strings.Join(cur, "\n"))
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return m[1]
		}
	}
	return ""
}

// ExtractImages returns the [[image: path]] markers of text in order of appearance.
func ExtractImages(text string) []models.Image {
	matches := imageRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	images := make([]models.Image, len(matches))
	for i, m := range matches {
		images[i] = models.Image{Path: m[1], Index: i, Placeholder: m[0]}
	}
	return images
}
