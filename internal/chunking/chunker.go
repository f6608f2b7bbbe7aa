// Package chunking splits oversized documents into header-bounded segments.
//
// Chunks are contiguous line ranges: ordered by index, the ranges of a
// document's chunks exactly partition [1, lastLine] with no gaps and no
// overlaps. Chunking is deterministic, so re-chunking identical content
// yields an identical chunk set.
package chunking

import (
	"fmt"
	"strings"
)

// Config controls when and how documents are split.
type Config struct {
	// ThresholdChars is the content size below which a document becomes a
	// single chunk. Default: 4096.
	ThresholdChars int

	// MaxHeaderDepth is the deepest heading level that starts a new chunk.
	// Level-2 and level-3 headings bound chunks by default.
	MaxHeaderDepth int

	// FallbackWindowLines is the window size for documents that exceed the
	// threshold but have no headings. Default: 120.
	FallbackWindowLines int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ThresholdChars == 0 {
		c.ThresholdChars = 4096
	}
	if c.MaxHeaderDepth == 0 {
		c.MaxHeaderDepth = 3
	}
	if c.FallbackWindowLines == 0 {
		c.FallbackWindowLines = 120
	}
}

// Segment is one chunk of a split document.
type Segment struct {
	// Index is the zero-based position within the document's chunk sequence.
	Index int

	// HeaderPath records the heading hierarchy leading to this segment,
	// e.g. "Deployment > Rollback". Empty for unheaded content.
	HeaderPath string

	// StartLine and EndLine are 1-based, inclusive. Across a document's
	// segments they form a gapless partition of [1, lastLine].
	StartLine int
	EndLine   int

	// Content is the exact text of the line range.
	Content string
}

// Chunker splits document content into segments.
type Chunker struct {
	config Config
}

// New creates a Chunker with the given configuration.
func New(config Config) *Chunker {
	config.ApplyDefaults()
	return &Chunker{config: config}
}

// Split divides content into segments.
//
// Content below the size threshold becomes a single segment spanning the whole
// document. Larger content splits at level-2/level-3 markdown headings; content
// with no such headings falls back to fixed-size line windows. Either way the
// partition invariant holds.
func (c *Chunker) Split(content string) ([]Segment, error) {
	if content == "" {
		return nil, fmt.Errorf("content cannot be empty")
	}

	lines := splitLines(content)
	last := len(lines)

	if len(content) < c.config.ThresholdChars {
		return []Segment{{
			Index:     0,
			StartLine: 1,
			EndLine:   last,
			Content:   content,
		}}, nil
	}

	boundaries := c.headerBoundaries(lines)
	if len(boundaries) == 0 {
		return c.windowSplit(lines), nil
	}
	return c.headerSplit(lines, boundaries), nil
}

// headerBoundary marks a heading line that starts a new segment.
type headerBoundary struct {
	line  int // 1-based line number of the heading
	level int
	title string
}

// headerBoundaries finds segment-starting headings, skipping fenced code blocks.
func (c *Chunker) headerBoundaries(lines []string) []headerBoundary {
	var boundaries []headerBoundary
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		level, title, ok := parseHeading(trimmed)
		if !ok || level < 2 || level > c.config.MaxHeaderDepth {
			continue
		}
		boundaries = append(boundaries, headerBoundary{line: i + 1, level: level, title: title})
	}
	return boundaries
}

// parseHeading parses an ATX markdown heading.
func parseHeading(line string) (level int, title string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[level+1:])
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// headerSplit cuts the document at heading boundaries. The preamble before the
// first heading, if any, becomes segment zero with an empty header path.
func (c *Chunker) headerSplit(lines []string, boundaries []headerBoundary) []Segment {
	var segments []Segment
	last := len(lines)

	// headerStack[level] holds the active title chain for building paths.
	headerStack := make(map[int]string)

	if boundaries[0].line > 1 {
		segments = append(segments, Segment{
			StartLine: 1,
			EndLine:   boundaries[0].line - 1,
			Content:   joinLines(lines, 1, boundaries[0].line-1),
		})
	}

	for i, b := range boundaries {
		headerStack[b.level] = b.title
		// A new heading invalidates deeper levels.
		for lvl := b.level + 1; lvl <= 6; lvl++ {
			delete(headerStack, lvl)
		}

		end := last
		if i+1 < len(boundaries) {
			end = boundaries[i+1].line - 1
		}

		segments = append(segments, Segment{
			HeaderPath: headerPath(headerStack, b.level),
			StartLine:  b.line,
			EndLine:    end,
			Content:    joinLines(lines, b.line, end),
		})
	}

	for i := range segments {
		segments[i].Index = i
	}
	return segments
}

// headerPath renders the heading chain from level 2 down to level.
func headerPath(stack map[int]string, level int) string {
	var parts []string
	for lvl := 2; lvl <= level; lvl++ {
		if title, ok := stack[lvl]; ok {
			parts = append(parts, title)
		}
	}
	return strings.Join(parts, " > ")
}

// windowSplit falls back to fixed-size line windows for unheaded documents.
func (c *Chunker) windowSplit(lines []string) []Segment {
	window := c.config.FallbackWindowLines
	last := len(lines)

	var segments []Segment
	for start := 1; start <= last; start += window {
		end := start + window - 1
		if end > last {
			end = last
		}
		segments = append(segments, Segment{
			Index:     len(segments),
			StartLine: start,
			EndLine:   end,
			Content:   joinLines(lines, start, end),
		})
	}
	return segments
}

// splitLines splits content into lines without dropping a trailing newline's
// final empty line ambiguity: "a\nb\n" is two lines, "a\nb" is also two.
func splitLines(content string) []string {
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}

// joinLines reassembles the 1-based inclusive line range [start, end].
func joinLines(lines []string, start, end int) string {
	return strings.Join(lines[start-1:end], "\n")
}

// Validate checks that segments form a gapless, non-overlapping partition of
// [1, totalLines]. Used by the indexer before persisting a chunk set.
func Validate(segments []Segment, totalLines int) error {
	if len(segments) == 0 {
		return fmt.Errorf("empty segment set")
	}
	expected := 1
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.StartLine != expected {
			return fmt.Errorf("segment %d starts at line %d, expected %d", i, seg.StartLine, expected)
		}
		if seg.EndLine < seg.StartLine {
			return fmt.Errorf("segment %d ends before it starts (%d < %d)", i, seg.EndLine, seg.StartLine)
		}
		expected = seg.EndLine + 1
	}
	if expected != totalLines+1 {
		return fmt.Errorf("segments cover [1, %d], document has %d lines", expected-1, totalLines)
	}
	return nil
}

// CountLines returns the line count used for partition validation.
func CountLines(content string) int {
	return len(splitLines(content))
}
