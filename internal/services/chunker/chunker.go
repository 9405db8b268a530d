// -----------------------------------------------------------------------
// Message Chunker - Transport-safe splitting of generated responses
// -----------------------------------------------------------------------

package chunker

import (
	"fmt"
	"strings"

	"github.com/ikemenltd/gasgen/internal/models"
)

// Split breaks text into frames no longer than maxFrameSize characters.
// Plain text packs greedily on line boundaries; single lines longer than
// the limit break on word boundaries. Fenced code blocks stay atomic when
// they fit; oversized blocks split within the fence on line boundaries,
// each part re-wrapped with fence markers and a part header so syntax
// highlighting survives on the receiving side.
func Split(text string, maxFrameSize int) []models.MessageFrame {
	if maxFrameSize <= 0 || text == "" {
		return nil
	}

	if len(text) <= maxFrameSize {
		return []models.MessageFrame{{Index: 1, Total: 1, Text: text}}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSuffix(current.String(), "\n"))
			current.Reset()
		}
	}

	appendLine := func(line string) {
		if current.Len()+len(line)+1 > maxFrameSize {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	for _, seg := range segment(text) {
		if seg.fenced {
			block := seg.String()
			if len(block) <= maxFrameSize {
				if current.Len()+len(block)+1 > maxFrameSize {
					flush()
				}
				current.WriteString(block)
				current.WriteString("\n")
				continue
			}

			flush()
			chunks = append(chunks, splitFencedBlock(seg, maxFrameSize)...)
			continue
		}

		for _, line := range seg.lines {
			if len(line) >= maxFrameSize {
				flush()
				chunks = append(chunks, splitLongLine(line, maxFrameSize)...)
				continue
			}
			appendLine(line)
		}
	}
	flush()

	frames := make([]models.MessageFrame, len(chunks))
	for i, chunk := range chunks {
		frames[i] = models.MessageFrame{
			Index: i + 1,
			Total: len(chunks),
			Text:  chunk,
		}
	}
	return frames
}

// block is a run of lines, either plain text or one fenced code block
type block struct {
	fenced bool
	fence  string // opening fence line, e.g. "```javascript"
	lines  []string
}

func (b block) String() string {
	if b.fenced {
		return b.fence + "\n" + strings.Join(b.lines, "\n") + "\n```"
	}
	return strings.Join(b.lines, "\n")
}

// segment partitions text into plain and fenced blocks. An unterminated
// fence runs to the end of the text.
func segment(text string) []block {
	lines := strings.Split(text, "\n")

	var blocks []block
	var plain []string
	inFence := false
	var fenceLine string
	var fenceBody []string

	flushPlain := func() {
		if len(plain) > 0 {
			blocks = append(blocks, block{lines: plain})
			plain = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				blocks = append(blocks, block{fenced: true, fence: fenceLine, lines: fenceBody})
				inFence = false
				fenceBody = nil
				continue
			}
			flushPlain()
			inFence = true
			fenceLine = line
			continue
		}

		if inFence {
			fenceBody = append(fenceBody, line)
		} else {
			plain = append(plain, line)
		}
	}

	if inFence {
		blocks = append(blocks, block{fenced: true, fence: fenceLine, lines: fenceBody})
	} else {
		flushPlain()
	}
	return blocks
}

// splitFencedBlock splits an oversized code block on line boundaries.
// Every part is re-wrapped in fence markers and carries a part header
// comment right after the opening fence.
func splitFencedBlock(b block, maxFrameSize int) []string {
	// The header width depends on the part count, which in turn depends
	// on the budget the header leaves. Pack with a guessed width and
	// repack with the real one until it fits; the width only ever grows,
	// so this settles in a couple of rounds.
	headerWidth := len(partHeader(99, 99))
	var groups [][]string
	for {
		budget := maxFrameSize - (len(b.fence) + 1 + headerWidth + 1 + len("\n```"))
		if budget < 1 {
			budget = 1
		}
		groups = packFenceLines(b.lines, budget)

		w := len(partHeader(len(groups), len(groups)))
		if w <= headerWidth {
			break
		}
		headerWidth = w
	}

	total := len(groups)
	parts := make([]string, total)
	for i, g := range groups {
		parts[i] = b.fence + "\n" + partHeader(i+1, total) + "\n" + strings.Join(g, "\n") + "\n```"
	}
	return parts
}

// packFenceLines groups lines greedily so each group's joined body stays
// within budget characters.
func packFenceLines(lines []string, budget int) [][]string {
	var groups [][]string
	var group []string
	size := 0
	for _, line := range lines {
		if len(line) > budget {
			// A single line can exceed even the body budget; break it hard
			for _, piece := range splitLongLine(line, budget) {
				if size+len(piece)+1 > budget && len(group) > 0 {
					groups = append(groups, group)
					group = nil
					size = 0
				}
				group = append(group, piece)
				size += len(piece) + 1
			}
			continue
		}
		if size+len(line)+1 > budget && len(group) > 0 {
			groups = append(groups, group)
			group = nil
			size = 0
		}
		group = append(group, line)
		size += len(line) + 1
	}
	if len(group) > 0 {
		groups = append(groups, group)
	}
	return groups
}

func partHeader(index, total int) string {
	return fmt.Sprintf("// part %d/%d", index, total)
}

// splitLongLine breaks a single oversized line on word boundaries,
// packing words greedily. Words longer than the limit break mid-word.
func splitLongLine(line string, maxFrameSize int) []string {
	words := strings.Split(line, " ")

	var pieces []string
	var current strings.Builder
	for _, word := range words {
		for len(word) > maxFrameSize {
			if current.Len() > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			pieces = append(pieces, word[:maxFrameSize])
			word = word[maxFrameSize:]
		}

		sep := 0
		if current.Len() > 0 {
			sep = 1
		}
		if current.Len()+sep+len(word) > maxFrameSize {
			pieces = append(pieces, current.String())
			current.Reset()
			sep = 0
		}
		if sep == 1 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}
