package rag

import (
	"context"
	"regexp"
	"strings"

	"github.com/docbrain/docbrain/internal/llmclient"
)

// Intent is the query-intent taxonomy spec §4.12 step 5 boosts chunk scores
// against.
type Intent string

const (
	IntentFactoid     Intent = "FACTOID"
	IntentComparison  Intent = "COMPARISON"
	IntentExplanation Intent = "EXPLANATION"
	IntentList        Intent = "LIST"
	IntentProcedural  Intent = "PROCEDURAL"
	IntentDefinition  Intent = "DEFINITION"
	IntentCauseEffect Intent = "CAUSE_EFFECT"
	IntentAnalysis    Intent = "ANALYSIS"
	IntentUnknown     Intent = "UNKNOWN"
)

var intentPatterns = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentDefinition, regexp.MustCompile(`(?i)^\s*(what is|what are|define|meaning of)\b`)},
	{IntentComparison, regexp.MustCompile(`(?i)\b(versus|vs\.?|compare|difference between)\b`)},
	{IntentCauseEffect, regexp.MustCompile(`(?i)\b(why does|why did|what causes|because of)\b`)},
	{IntentProcedural, regexp.MustCompile(`(?i)\b(how do i|how to|steps to|walk me through)\b`)},
	{IntentList, regexp.MustCompile(`(?i)\b(list|enumerate|what are all|which ones)\b`)},
	{IntentFactoid, regexp.MustCompile(`(?i)^\s*(who|when|where|how many|how much)\b`)},
	{IntentAnalysis, regexp.MustCompile(`(?i)\b(analyze|evaluate|assess|pros and cons)\b`)},
	{IntentExplanation, regexp.MustCompile(`(?i)\b(explain|describe|elaborate on)\b`)},
}

// classifyIntentByRegex applies the fast regex-pattern table; it returns
// IntentUnknown (and false) when nothing matches, signaling the caller to
// fall back to the LLM classifier.
func classifyIntentByRegex(query string) (Intent, bool) {
	for _, p := range intentPatterns {
		if p.pattern.MatchString(query) {
			return p.intent, true
		}
	}
	return IntentUnknown, false
}

var validIntents = map[string]Intent{
	"FACTOID": IntentFactoid, "COMPARISON": IntentComparison, "EXPLANATION": IntentExplanation,
	"LIST": IntentList, "PROCEDURAL": IntentProcedural, "DEFINITION": IntentDefinition,
	"CAUSE_EFFECT": IntentCauseEffect, "ANALYSIS": IntentAnalysis, "UNKNOWN": IntentUnknown,
}

// classifyIntent tries the regex table first and only calls the LLM when no
// pattern matches, per spec §4.12 step 5 ("first by regex patterns then by
// an LLM classification fallback").
func (r *Retriever) classifyIntent(ctx context.Context, query string) Intent {
	if intent, ok := classifyIntentByRegex(query); ok {
		return intent
	}
	rendered := r.prompts.Get("synthesis", "intent", map[string]any{"user_query": query})
	completion, err := r.llm.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		return IntentUnknown
	}
	label := strings.ToUpper(strings.TrimSpace(completion.Content))
	if intent, ok := validIntents[label]; ok {
		return intent
	}
	return IntentUnknown
}
