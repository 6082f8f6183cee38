package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
)

func TestChunk_FlatStrategyPacksWholeParagraphsNoOverlap(t *testing.T) {
	text := strings.Join([]string{
		strings.Repeat("alpha ", 50),
		strings.Repeat("bravo ", 50),
		strings.Repeat("charlie ", 50),
	}, "\n\n")

	out := Chunk(text, domain.DocumentTypeUnstructured, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall})
	chunks := out[domain.SizeSmall]
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, len(chunks), c.Metadata.TotalChunks)
		assert.Equal(t, domain.SizeSmall, c.Metadata.SizeClass)
		assert.LessOrEqual(t, len(c.Text), domain.SizeSmall.TargetChars()+len("charlie ")*50)
	}
	// no overlap: concatenating chunk texts should reproduce disjoint paragraph groups
	for i := 1; i < len(chunks); i++ {
		assert.NotEqual(t, chunks[i-1].Text, chunks[i].Text)
	}
}

func TestChunk_FlatStrategyProducesDenseZeroBasedIndex(t *testing.T) {
	text := strings.Repeat("paragraph one two three four five.\n\n", 30)
	out := Chunk(text, domain.DocumentTypeUnstructured, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall})
	chunks := out[domain.SizeSmall]
	require.True(t, len(chunks) > 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
	}
}

func TestChunk_MultiLevelTracksNearestHeaderAndSectionPath(t *testing.T) {
	md := "# Root\n\n" +
		strings.Repeat("intro text. ", 40) +
		"\n\n## Child\n\n" +
		strings.Repeat("child body text. ", 60)

	out := Chunk(md, domain.DocumentTypeStructured, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall})
	chunks := out[domain.SizeSmall]
	require.NotEmpty(t, chunks)

	var sawChild bool
	for _, c := range chunks {
		if c.Metadata.NearestHeader == "Child" {
			sawChild = true
			assert.Equal(t, []string{"Root"}, c.Metadata.SectionPath)
		}
	}
	assert.True(t, sawChild, "expected at least one chunk under the Child section")
}

func TestChunk_MultiLevelAppliesOverlapBetweenAdjacentChunks(t *testing.T) {
	body := "# Section\n\n" + strings.Repeat("sentence number filler text. ", 200)
	out := Chunk(body, domain.DocumentTypeStructured, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall})
	chunks := out[domain.SizeSmall]
	require.True(t, len(chunks) > 1)

	overlap := domain.SizeSmall.OverlapChars()
	tail := chunks[0].Text
	if len(tail) > overlap {
		tail = tail[len(tail)-overlap:]
	}
	assert.True(t, strings.Contains(chunks[1].Text, tail[:min(20, len(tail))]),
		"expected chunk 1 to repeat a slice of chunk 0's tail due to overlap")
}

func TestChunk_ProducesIndependentIndexPerSizeClass(t *testing.T) {
	text := strings.Repeat(strings.Repeat("word ", 20)+"\n\n", 100)
	out := Chunk(text, domain.DocumentTypeUnstructured, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall, domain.SizeMedium, domain.SizeLarge})

	small := out[domain.SizeSmall]
	large := out[domain.SizeLarge]
	require.NotEmpty(t, small)
	require.NotEmpty(t, large)
	assert.Greater(t, len(small), len(large), "SMALL target is tighter than LARGE so it should produce more chunks")

	for _, set := range out {
		for i, c := range set {
			assert.Equal(t, i, c.Metadata.ChunkIndex)
		}
	}
}

func TestChunk_CodeDocumentSplitsOnFunctionBoundaries(t *testing.T) {
	code := "func One() {\n" + strings.Repeat("  doStuff()\n", 5) + "}\n\n" +
		"func Two() {\n" + strings.Repeat("  doOtherStuff()\n", 5) + "}\n"
	out := Chunk(code, domain.DocumentTypeCode, domain.ChunkMetadata{DocumentID: "doc1"}, []domain.SizeClass{domain.SizeSmall})
	chunks := out[domain.SizeSmall]
	require.NotEmpty(t, chunks)

	var headers []string
	for _, c := range chunks {
		if c.Metadata.NearestHeader != "" {
			headers = append(headers, c.Metadata.NearestHeader)
		}
	}
	assert.Contains(t, strings.Join(headers, " "), "func One()")
	assert.Contains(t, strings.Join(headers, " "), "func Two()")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
