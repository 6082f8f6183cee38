package rag

import (
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// sizeClassBoostFactor is the multiplier applied when a chunk's size class
// matches the query's classified intent, per spec §4.12 step 5.
const sizeClassBoostFactor = 1.2

// docTypeBoostFactor is the multiplier applied when a chunk's document type
// matches a query keyword (e.g. a "code" query against a code document).
const docTypeBoostFactor = 1.3

// sectionKeywordIncrement is the per-matched-keyword increment applied when
// a query keyword also appears in a chunk's section_path or nearest_header.
const sectionKeywordIncrement = 0.1

// docTypeKeywords maps a DocumentType to the query keywords that should
// boost it, grounded on spec §4.12's own example ("code" query + code
// document).
var docTypeKeywords = map[string][]string{
	"code":       {"code", "function", "class", "method", "api", "implementation"},
	"legal":      {"contract", "clause", "legal", "agreement", "liability"},
	"technical":  {"spec", "technical", "architecture", "protocol", "configuration"},
	"structured": {"table", "section", "chapter", "appendix"},
}

// boosted pairs a retrieval result with its post-boost score, keeping the
// pre-boost score around for provenance.
type boosted struct {
	result        vectorindex.Result
	originalScore float64
	score         float64
}

// applyBoost multiplies each result's score by the size-class, document-type,
// and section-keyword-overlap factors spec §4.12 step 5 defines, then sorts
// descending and keeps the top keptChunks.
func (r *Retriever) applyBoost(query string, intent Intent, results []vectorindex.Result) []boosted {
	keywords := queryKeywords(query)
	out := make([]boosted, len(results))
	for i, res := range results {
		factor := sizeClassBoost(res.Metadata["size_class"], intent) *
			docTypeBoost(res.Metadata["document_type"], keywords) *
			sectionKeywordBoost(keywords, res.Metadata["section_path"], res.Metadata["nearest_header"])
		out[i] = boosted{result: res, originalScore: res.Score, score: res.Score * factor}
	}
	sortBoostedDescending(out)
	if len(out) > keptChunks {
		out = out[:keptChunks]
	}
	return out
}

func sizeClassBoost(sizeClass string, intent Intent) float64 {
	switch intent {
	case IntentFactoid, IntentDefinition:
		if sizeClass == string(domain.SizeSmall) {
			return sizeClassBoostFactor
		}
	case IntentExplanation, IntentAnalysis:
		if sizeClass == string(domain.SizeLarge) {
			return sizeClassBoostFactor
		}
	}
	return 1.0
}

func docTypeBoost(documentType string, keywords map[string]bool) float64 {
	for _, kw := range docTypeKeywords[documentType] {
		if keywords[kw] {
			return docTypeBoostFactor
		}
	}
	return 1.0
}

func sectionKeywordBoost(keywords map[string]bool, sectionPath, nearestHeader string) float64 {
	haystack := strings.ToLower(sectionPath + " " + nearestHeader)
	k := 0
	for kw := range keywords {
		if strings.Contains(haystack, kw) {
			k++
		}
	}
	return 1.0 + sectionKeywordIncrement*float64(k)
}

// queryKeywords tokenizes query into a lowercased, stopword-filtered set.
func queryKeywords(query string) map[string]bool {
	out := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(query)) {
		word := strings.Trim(field, ".,?!:;\"'()")
		if word == "" || stopwords[word] {
			continue
		}
		out[word] = true
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true,
	"to": true, "and": true, "in": true, "for": true, "on": true, "what": true,
	"how": true, "why": true, "do": true, "does": true, "i": true, "me": true,
}

func sortBoostedDescending(items []boosted) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
