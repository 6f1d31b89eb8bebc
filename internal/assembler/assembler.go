// Package assembler turns ranked candidates into the grounding context handed to generation,
// together with per-source attribution and the best instruction's images.
package assembler

import (
	"fmt"
	"strings"

	"github.com/hyperjump/spravka/internal/models"
)

const (
	// NoContextText is the context for a question with no candidates.
	NoContextText = "Контекст отсутствует."
	// UnknownFilename labels chunks stored without a filename.
	UnknownFilename = "Неизвестный документ"

	blockSeparator = "\n---\n"
)

// Assemble serializes the first topK candidates in ranked order (all of them when topK <= 0).
// Candidates are grouped by instruction to pick the best instruction, the one with the lowest
// mean distance; the first group seen wins a tie. Only that instruction's images are returned.
// Assemble does not modify its input.
func Assemble(candidates []*models.Candidate, topK int) *models.AssembledContext {
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	if len(candidates) == 0 {
		return &models.AssembledContext{
			ContextText: NoContextText,
			Sources:     []*models.SourceAttribution{},
			ImagePaths:  []string{},
		}
	}

	best := bestGroup(candidates)
	out := &models.AssembledContext{
		Sources:           make([]*models.SourceAttribution, 0, len(candidates)),
		ImagePaths:        []string{},
		BestInstructionID: best,
	}
	blocks := make([]string, 0, len(candidates))
	seenImages := make(map[string]bool)
	for i, c := range candidates {
		chunk := c.Chunk
		if chunk == nil {
			chunk = &models.Chunk{ID: c.ChunkID}
		}
		group := chunk.GroupID()
		filename := chunk.Filename
		if filename == "" {
			filename = UnknownFilename
		}
		title := chunk.Title
		if title == "" {
			title = filename
		}
		images := append([]string{}, chunk.Images...)
		isBest := group == best
		if isBest {
			// Every chunk of an instruction carries its full image list.
			for _, img := range images {
				if !seenImages[img] {
					seenImages[img] = true
					out.ImagePaths = append(out.ImagePaths, img)
				}
			}
		}

		out.Sources = append(out.Sources, &models.SourceAttribution{
			Index:             i + 1,
			ChunkID:           c.ChunkID,
			DocumentID:        chunk.DocumentID,
			InstructionID:     group,
			Filename:          filename,
			Title:             title,
			Distance:          c.Distance,
			Images:            images,
			IsBestInstruction: isBest,
		})
		blocks = append(blocks, fmt.Sprintf("[Document %d: %s]\n%s\n", i+1, filename, chunk.Text))
	}
	out.ContextText = strings.Join(blocks, blockSeparator)
	return out
}

func bestGroup(candidates []*models.Candidate) string {
	type group struct {
		sum   float64
		count int
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for _, c := range candidates {
		id := ""
		if c.Chunk != nil {
			id = c.Chunk.GroupID()
		}
		g, ok := groups[id]
		if !ok {
			g = &group{}
			groups[id] = g
			order = append(order, id)
		}
		g.sum += c.Distance
		g.count++
	}

	best := order[0]
	bestMean := groups[best].sum / float64(groups[best].count)
	for _, id := range order[1:] {
		if mean := groups[id].sum / float64(groups[id].count); mean < bestMean {
			best, bestMean = id, mean
		}
	}
	return best
}
