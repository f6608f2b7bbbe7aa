package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSmallDocumentSingleChunk(t *testing.T) {
	c := New(Config{ThresholdChars: 4096})

	content := "# Title\n\nShort decision record.\n"
	segments, err := c.Split(content)
	require.NoError(t, err)

	require.Len(t, segments, 1)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, 1, segments[0].StartLine)
	assert.Equal(t, 3, segments[0].EndLine)
	assert.Equal(t, content, segments[0].Content)
}

func TestSplitEmptyContent(t *testing.T) {
	c := New(Config{})
	_, err := c.Split("")
	assert.Error(t, err)
}

func TestSplitAtHeaders(t *testing.T) {
	c := New(Config{ThresholdChars: 10}) // force splitting

	content := strings.Join([]string{
		"intro line one",
		"intro line two",
		"## Deployment",
		"deploy body",
		"### Rollback",
		"rollback body",
		"## Monitoring",
		"monitoring body",
	}, "\n")

	segments, err := c.Split(content)
	require.NoError(t, err)
	require.Len(t, segments, 4)

	assert.Equal(t, "", segments[0].HeaderPath)
	assert.Equal(t, 1, segments[0].StartLine)
	assert.Equal(t, 2, segments[0].EndLine)

	assert.Equal(t, "Deployment", segments[1].HeaderPath)
	assert.Equal(t, 3, segments[1].StartLine)
	assert.Equal(t, 4, segments[1].EndLine)

	assert.Equal(t, "Deployment > Rollback", segments[2].HeaderPath)
	assert.Equal(t, 5, segments[2].StartLine)
	assert.Equal(t, 6, segments[2].EndLine)

	assert.Equal(t, "Monitoring", segments[3].HeaderPath)
	assert.Equal(t, 7, segments[3].StartLine)
	assert.Equal(t, 8, segments[3].EndLine)

	assert.NoError(t, Validate(segments, CountLines(content)))
}

func TestSplitIgnoresHeadingsInCodeFences(t *testing.T) {
	c := New(Config{ThresholdChars: 10})

	content := strings.Join([]string{
		"## Real Section",
		"```",
		"## not a heading",
		"```",
		"after fence",
	}, "\n")

	segments, err := c.Split(content)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "Real Section", segments[0].HeaderPath)
}

func TestSplitFallbackWindows(t *testing.T) {
	c := New(Config{ThresholdChars: 10, FallbackWindowLines: 50})

	var sb strings.Builder
	for i := 1; i <= 130; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	content := sb.String()

	segments, err := c.Split(content)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, 1, segments[0].StartLine)
	assert.Equal(t, 50, segments[0].EndLine)
	assert.Equal(t, 51, segments[1].StartLine)
	assert.Equal(t, 100, segments[1].EndLine)
	assert.Equal(t, 101, segments[2].StartLine)
	assert.Equal(t, 130, segments[2].EndLine)

	assert.NoError(t, Validate(segments, CountLines(content)))
}

func TestSplitDeterministic(t *testing.T) {
	c := New(Config{ThresholdChars: 10})

	content := "## A\nbody a\n## B\nbody b\n"
	first, err := c.Split(content)
	require.NoError(t, err)
	second, err := c.Split(content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// A 900-line document must produce 3+ contiguous, ordered chunks.
func TestSplitLargeDocumentScenario(t *testing.T) {
	c := New(Config{})

	var sb strings.Builder
	for section := 1; section <= 9; section++ {
		fmt.Fprintf(&sb, "## Section %d\n", section)
		for line := 1; line < 100; line++ {
			fmt.Fprintf(&sb, "Section %d content line %d with enough text to clear the size threshold.\n", section, line)
		}
	}
	content := sb.String()
	require.GreaterOrEqual(t, CountLines(content), 900)

	segments, err := c.Split(content)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(segments), 3)
	assert.NoError(t, Validate(segments, CountLines(content)))
}

func TestValidateRejectsGapsAndOverlaps(t *testing.T) {
	gap := []Segment{
		{Index: 0, StartLine: 1, EndLine: 10},
		{Index: 1, StartLine: 12, EndLine: 20},
	}
	assert.Error(t, Validate(gap, 20))

	overlap := []Segment{
		{Index: 0, StartLine: 1, EndLine: 10},
		{Index: 1, StartLine: 10, EndLine: 20},
	}
	assert.Error(t, Validate(overlap, 20))

	short := []Segment{
		{Index: 0, StartLine: 1, EndLine: 10},
	}
	assert.Error(t, Validate(short, 20))

	ok := []Segment{
		{Index: 0, StartLine: 1, EndLine: 10},
		{Index: 1, StartLine: 11, EndLine: 20},
	}
	assert.NoError(t, Validate(ok, 20))
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel int
		wantTitle string
		wantOK    bool
	}{
		{"## Deployment", 2, "Deployment", true},
		{"### Sub Topic", 3, "Sub Topic", true},
		{"# Top", 1, "Top", true},
		{"####### too deep", 0, "", false},
		{"##NoSpace", 0, "", false},
		{"## ", 0, "", false},
		{"plain text", 0, "", false},
	}

	for _, tt := range tests {
		level, title, ok := parseHeading(tt.line)
		assert.Equal(t, tt.wantOK, ok, tt.line)
		if ok {
			assert.Equal(t, tt.wantLevel, level, tt.line)
			assert.Equal(t, tt.wantTitle, title, tt.line)
		}
	}
}
