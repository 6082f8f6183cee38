// Package document is the DocumentIngestionPipeline collaborator: it takes a
// document id off the queue and carries it through
// extract -> chunk -> embed -> upsert -> summarize -> PROCESSED, per spec
// §4.9. Grounded on the teacher's internal/orchestrator task-handler shape
// (one handler function per Kafka topic, status columns mutated in place)
// and internal/rag/ingest's extract-then-chunk-then-embed ordering.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/chunk"
	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/errs"
	"github.com/docbrain/docbrain/internal/extract"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/objectstore"
	"github.com/docbrain/docbrain/internal/obs"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// TaskName is the queue topic/task-name this pipeline subscribes to.
const TaskName = "document.ingest"

// defaultSizeClasses are the size classes every document is chunked and
// indexed at when a pipeline caller does not override SizeClasses.
var defaultSizeClasses = []domain.SizeClass{domain.SizeSmall, domain.SizeMedium, domain.SizeLarge}

// canonicalSizeClass is the size class whose chunk count is recorded as a
// document's ProcessedChunkCount, resolving an otherwise ambiguous "how
// many chunks does a multi-size-class document have" question in favor of
// the size class most representative of typical retrieval (Open Question
// decision: MEDIUM).
const canonicalSizeClass = domain.SizeMedium

// Payload is the queue message body for TaskName.
type Payload struct {
	DocumentID string `json:"document_id"`
}

// Pipeline wires the collaborators DocumentIngestionPipeline needs.
type Pipeline struct {
	Documents   store.DocumentStore
	Objects     objectstore.ObjectStore
	Extractors  *extract.Registry
	Embedder    embedclient.Embedder
	Index       *vectorindex.Index
	Prompts     *prompts.Registry
	LLM         llmclient.Provider
	SizeClasses []domain.SizeClass
}

func (p *Pipeline) sizeClasses() []domain.SizeClass {
	if len(p.SizeClasses) == 0 {
		return defaultSizeClasses
	}
	return p.SizeClasses
}

// Handle adapts Pipeline to jobqueue.Handler.
func (p *Pipeline) Handle(ctx context.Context, task jobqueue.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal document ingest payload: %w", err)
	}
	return p.Ingest(ctx, payload.DocumentID)
}

// Ingest runs the full pipeline for documentID. A nil return covers both
// "succeeded" and "failed terminally and already persisted FAILED" — only
// a non-nil return signals the queue should retry, per spec §4.9's
// steps-3-8-retried contract and Design Note 9 (the queue owns retry
// semantics, the handler owns terminal-failure persistence).
func (p *Pipeline) Ingest(ctx context.Context, documentID string) error {
	doc, err := p.Documents.Get(ctx, documentID)
	if err != nil {
		return err
	}

	proceed, err := p.claimProcessing(ctx, &doc)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	raw, err := p.resolveBytes(ctx, doc)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("resolve document bytes: %w", err))
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = extract.SniffContentType(raw)
	}

	extractCtx, extractSpan := obs.StartSpan(ctx, "document.extract")
	extracted, err := p.Extractors.Extract(extractCtx, documentID, contentType, raw)
	extractSpan.End()
	if err != nil {
		return p.fail(ctx, documentID, err)
	}

	meta := domain.ChunkMetadata{
		DocumentID:    documentID,
		ContentType:   contentType,
		DocumentTitle: firstNonEmpty(doc.Title, extracted.Metadata.Title),
	}
	text := extracted.Text
	if extracted.Markdown != "" {
		text = extracted.Markdown
	}
	_, chunkSpan := obs.StartSpan(ctx, "document.chunk")
	bySizeClass := chunk.Chunk(text, extracted.Metadata.DocumentType, meta, p.sizeClasses())
	chunkSpan.End()

	embedCtx, embedSpan := obs.StartSpan(ctx, "document.embed_upsert")
	err = p.embedAndUpsert(embedCtx, doc.KnowledgeBaseID, bySizeClass)
	embedSpan.End()
	if err != nil {
		return err
	}

	summarizeCtx, summarizeSpan := obs.StartSpan(ctx, "document.summarize")
	summary := p.summarize(summarizeCtx, doc, extracted)
	summarizeSpan.End()

	patch := store.DocumentPatch{
		ProcessedChunkCount: intPtr(len(bySizeClass[canonicalSizeClass])),
		Summary:             &summary,
	}
	if _, err := p.Documents.UpdateStatus(ctx, documentID, domain.DocumentProcessing, domain.DocumentProcessed, patch); err != nil {
		if errors.Is(err, errs.ErrPreconditionFailed) {
			log.Warn().Str("document_id", documentID).Msg("document_already_transitioned_past_processing")
			return nil
		}
		return err
	}
	return nil
}

// claimProcessing attempts the PENDING->PROCESSING precondition-guarded
// transition. If another attempt of this same task already made that
// transition (the queue re-invokes the whole handler on retry, per
// jobqueue's retry loop), the current status is re-read: PROCESSING means
// this is a retry in flight and processing should continue (steps 3-9 are
// idempotent via deterministic vector ids); any terminal status means a
// prior attempt already finished and this call is a no-op.
func (p *Pipeline) claimProcessing(ctx context.Context, doc *domain.Document) (proceed bool, err error) {
	updated, err := p.Documents.UpdateStatus(ctx, doc.ID, domain.DocumentPending, domain.DocumentProcessing, store.DocumentPatch{})
	if err == nil {
		*doc = updated
		return true, nil
	}
	if !errors.Is(err, errs.ErrPreconditionFailed) {
		return false, err
	}
	current, gerr := p.Documents.Get(ctx, doc.ID)
	if gerr != nil {
		return false, gerr
	}
	*doc = current
	return current.Status == domain.DocumentProcessing, nil
}

// resolveBytes returns a document's raw bytes, preferring the inline body
// and falling back to the object store handle.
func (p *Pipeline) resolveBytes(ctx context.Context, doc domain.Document) ([]byte, error) {
	if len(doc.RawInline) > 0 {
		return doc.RawInline, nil
	}
	if doc.RawStorageHandle == "" {
		return nil, fmt.Errorf("document %s has neither inline bytes nor a storage handle", doc.ID)
	}
	rc, _, err := p.Objects.Get(ctx, doc.RawStorageHandle)
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", doc.RawStorageHandle, err)
	}
	defer rc.Close()
	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, rc); err != nil {
		return nil, fmt.Errorf("read object %s: %w", doc.RawStorageHandle, err)
	}
	return buf.Bytes(), nil
}

// embedAndUpsert embeds every chunk across every size class and upserts the
// resulting vector records, grouping size classes so a transient failure on
// one still leaves previously-upserted size classes in place (idempotent
// to retry via deterministic ids).
func (p *Pipeline) embedAndUpsert(ctx context.Context, namespace string, bySizeClass map[domain.SizeClass][]domain.Chunk) error {
	for sc, chunks := range bySizeClass {
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := p.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		records := make([]domain.VectorRecord, len(chunks))
		for i, c := range chunks {
			records[i] = domain.VectorRecord{
				ID:       recordID(c.Metadata.DocumentID, c.Metadata.ChunkIndex, sc),
				Vector:   vectors[i],
				Metadata: chunkMetadataMap(c.Metadata, c.Text),
			}
		}
		if err := p.Index.UpsertBatch(ctx, namespace, records); err != nil {
			return err
		}
	}
	return nil
}

// summarize asks the LLM for a short document summary. Failure here is
// non-fatal per spec §4.9's resilience intent: an ingested-but-unsummarized
// document is still fully queryable, so a summarization error is logged and
// an empty summary persisted rather than failing the whole document.
func (p *Pipeline) summarize(ctx context.Context, doc domain.Document, extracted extract.Extracted) string {
	preview := extracted.Text
	if len(preview) > 4000 {
		preview = preview[:4000]
	}
	rendered := p.Prompts.Get("documents", "summarize", map[string]any{
		"document_title":   firstNonEmpty(doc.Title, extracted.Metadata.Title),
		"document_preview": preview,
	})
	completion, err := p.LLM.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("document_summarize_failed")
		return ""
	}
	return completion.Content
}

// fail persists a document as FAILED with cause's message and swallows the
// error (returns nil) so the queue does not retry a non-retryable failure.
func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) error {
	msg := cause.Error()
	_, err := p.Documents.UpdateStatus(ctx, documentID, domain.DocumentProcessing, domain.DocumentFailed, store.DocumentPatch{ErrorMessage: &msg})
	if err != nil && !errors.Is(err, errs.ErrPreconditionFailed) {
		log.Error().Err(err).Str("document_id", documentID).Msg("document_fail_transition_failed")
	}
	log.Warn().Err(cause).Str("document_id", documentID).Msg("document_ingest_failed")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intPtr(v int) *int { return &v }

// recordID deterministically identifies one chunk's vector record so
// repeated ingestion attempts replace rather than duplicate it.
func recordID(documentID string, chunkIndex int, sc domain.SizeClass) string {
	return documentID + "_" + strconv.Itoa(chunkIndex) + "_" + string(sc)
}

// chunkMetadataMap flattens a ChunkMetadata (plus the chunk's own text,
// needed by the retriever for snippet display) into the string-only
// metadata map VectorRecord requires.
func chunkMetadataMap(m domain.ChunkMetadata, text string) map[string]string {
	out := map[string]string{
		"record_type":    "chunk",
		"document_id":    m.DocumentID,
		"chunk_index":    strconv.Itoa(m.ChunkIndex),
		"total_chunks":   strconv.Itoa(m.TotalChunks),
		"size_class":     string(m.SizeClass),
		"content_type":   string(m.ContentType),
		"document_type":  string(m.DocumentType),
		"document_title": m.DocumentTitle,
		"nearest_header": m.NearestHeader,
		"word_count":     strconv.Itoa(m.WordCount),
		"text":           text,
	}
	if len(m.SectionPath) > 0 {
		out["section_path"] = joinSectionPath(m.SectionPath)
	}
	return out
}

func joinSectionPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " > "
		}
		out += p
	}
	return out
}
