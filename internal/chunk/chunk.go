// Package chunk is the Chunker collaborator: it splits ContentExtractor's
// normalized text into overlapping, structure-aware chunks carrying
// hierarchical header metadata. Two strategies are selected by
// domain.DocumentType, grounded on the teacher's
// internal/rag/chunker/chunker.go SimpleChunker (fixed/markdown/code modes),
// generalized per spec §4.2 into flat-vs-multi-level dispatch with
// size-class-aware targets and sentence-boundary-aware packing.
package chunk

import (
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/util"
)

// sentenceLookback bounds how far packChunks will search backward from a
// target boundary for a sentence terminator before giving up and splitting
// at the raw target offset.
const sentenceLookback = 50

// Chunk produces chunks of text for every size class in sizeClasses,
// dispatching to the flat or multi-level strategy by docType. meta supplies
// the fields common to every emitted Chunk (document id, title, content
// type); ChunkIndex/TotalChunks/SizeClass are filled in per size class.
func Chunk(text string, docType domain.DocumentType, meta domain.ChunkMetadata, sizeClasses []domain.SizeClass) map[domain.SizeClass][]domain.Chunk {
	out := make(map[domain.SizeClass][]domain.Chunk, len(sizeClasses))
	for _, sc := range sizeClasses {
		var texts []packedChunk
		switch docType {
		case domain.DocumentTypeStructured, domain.DocumentTypeCode, domain.DocumentTypeTechnical, domain.DocumentTypeLegal:
			texts = multiLevelChunk(text, sc)
		default:
			texts = flatChunk(text, sc)
		}
		chunks := make([]domain.Chunk, 0, len(texts))
		for i, pc := range texts {
			m := meta
			m.DocumentType = docType
			m.ChunkIndex = i
			m.TotalChunks = len(texts)
			m.SizeClass = sc
			m.NearestHeader = pc.nearestHeader
			m.SectionPath = pc.sectionPath
			m.WordCount = wordCount(pc.text)
			chunks = append(chunks, domain.Chunk{Text: pc.text, Metadata: m})
		}
		out[sc] = chunks
	}
	return out
}

type packedChunk struct {
	text          string
	nearestHeader string
	sectionPath   []string
}

// flatChunk splits unstructured text by paragraph, greedily accumulating
// whole paragraphs until the next would exceed the size class's target.
// No overlap is introduced, per spec §4.2.
func flatChunk(text string, sc domain.SizeClass) []packedChunk {
	target := sc.TargetChars()
	paragraphs := splitParagraphs(text)
	var out []packedChunk
	var buf strings.Builder
	for _, p := range paragraphs {
		if buf.Len() > 0 && buf.Len()+2+len(p) > target {
			out = append(out, packedChunk{text: strings.TrimSpace(buf.String())})
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		out = append(out, packedChunk{text: s})
	}
	return out
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// multiLevelChunk parses headers to delimit sections, then packs paragraphs
// within each section into chunks with per-size-class overlap, preferring
// to split at the last sentence terminator within a sentenceLookback
// window, per spec §4.2.
func multiLevelChunk(text string, sc domain.SizeClass) []packedChunk {
	sections := splitSections(text)
	target := sc.TargetChars()
	overlap := sc.OverlapChars()
	var out []packedChunk
	for _, sec := range sections {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			continue
		}
		for _, piece := range packWithOverlap(body, target, overlap) {
			out = append(out, packedChunk{
				text:          piece,
				nearestHeader: sec.nearestHeader,
				sectionPath:   sec.ancestors,
			})
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		for _, piece := range packWithOverlap(strings.TrimSpace(text), target, overlap) {
			out = append(out, packedChunk{text: piece})
		}
	}
	return out
}

type section struct {
	nearestHeader string
	ancestors     []string
	body          string
}

// splitSections scans for "#"-prefix markdown headers or code-style
// function/class signatures, emitting one section per header whose body
// runs until the next same-or-higher-level header.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")
	type hdr struct {
		level int
		text  string
		line  int
	}
	var headers []hdr
	for i, ln := range lines {
		if lvl, txt, ok := parseHeaderLine(ln); ok {
			headers = append(headers, hdr{level: lvl, text: txt, line: i})
		}
	}
	if len(headers) == 0 {
		return []section{{body: text}}
	}

	var sections []section
	var stack []hdr
	for hi, h := range headers {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		ancestors := make([]string, 0, len(stack))
		for _, a := range stack {
			ancestors = append(ancestors, a.text)
		}
		stack = append(stack, h)

		end := len(lines)
		if hi+1 < len(headers) {
			end = headers[hi+1].line
		}
		bodyLines := lines[h.line+1 : end]
		sections = append(sections, section{
			nearestHeader: h.text,
			ancestors:     ancestors,
			body:          strings.Join(bodyLines, "\n"),
		})
	}
	if headers[0].line > 0 {
		preamble := strings.Join(lines[:headers[0].line], "\n")
		if strings.TrimSpace(preamble) != "" {
			sections = append([]section{{body: preamble}}, sections...)
		}
	}
	return sections
}

func parseHeaderLine(line string) (level int, text string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		lvl := 0
		for lvl < len(trimmed) && trimmed[lvl] == '#' {
			lvl++
		}
		if lvl > 0 && lvl <= 6 && lvl < len(trimmed) && trimmed[lvl] == ' ' {
			return lvl, strings.TrimSpace(trimmed[lvl:]), true
		}
	}
	if sig, isCode := codeSignature(trimmed); isCode {
		return 1, sig, true
	}
	return 0, "", false
}

// codeSignature recognizes function/class definitions as level-1 "headers"
// for the code document type, matching the teacher's codeSplitRe heuristic.
func codeSignature(line string) (string, bool) {
	for _, prefix := range []string{"func ", "class ", "def "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

// packWithOverlap packs body into target-sized pieces, each overlapping the
// previous by up to overlap characters, preferring a sentence-terminator
// split point within the last sentenceLookback characters of the window.
func packWithOverlap(body string, target, overlap int) []string {
	if target <= 0 {
		target = 1
	}
	var out []string
	start := 0
	for start < len(body) {
		end := start + target
		if end >= len(body) {
			end = len(body)
		} else {
			end = sentenceBoundary(body, start, end)
		}
		piece := strings.TrimSpace(body[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end >= len(body) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// sentenceBoundary looks back up to sentenceLookback characters from end
// for the last sentence terminator (".", "!", "?", newline) and splits
// there if found; otherwise splits at end.
func sentenceBoundary(text string, start, end int) int {
	lookbackStart := end - sentenceLookback
	if lookbackStart < start {
		lookbackStart = start
	}
	window := text[lookbackStart:end]
	best := -1
	for i, r := range window {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			best = i
		}
	}
	if best >= 0 {
		return lookbackStart + best + 1
	}
	return end
}

func wordCount(text string) int {
	return util.CountTokens(text)
}
