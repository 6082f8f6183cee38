// Package domain holds the core entity types shared across DocBrain's
// ingestion and query pipelines. The metadata store and vector index own
// the durable representations; these types are the in-process shapes the
// pipelines pass between stages.
package domain

import "time"

// ContentType is the closed set of document MIME variants ContentExtractor
// dispatches on.
type ContentType string

const (
	ContentTypePDF      ContentType = "pdf"
	ContentTypeDOCX     ContentType = "docx"
	ContentTypePPTX     ContentType = "pptx"
	ContentTypeHTML     ContentType = "html"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeCSV      ContentType = "csv"
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
)

// DocumentType drives which Chunker strategy applies. It is derived from
// ContentType plus, for text-like content, a lightweight structure sniff.
type DocumentType string

const (
	DocumentTypeUnstructured DocumentType = "unstructured"
	DocumentTypeStructured   DocumentType = "structured"
	DocumentTypeCode         DocumentType = "code"
	DocumentTypeTechnical    DocumentType = "technical"
	DocumentTypeLegal        DocumentType = "legal"
)

// DocumentStatus is the document lifecycle state. PROCESSED is the sole
// canonical terminal success state; COMPLETED never appears (Open Question b).
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentProcessed  DocumentStatus = "PROCESSED"
	DocumentFailed     DocumentStatus = "FAILED"
)

// QuestionStatus is the curated Q&A lifecycle state.
type QuestionStatus string

const (
	QuestionPending   QuestionStatus = "PENDING"
	QuestionIngesting QuestionStatus = "INGESTING"
	QuestionCompleted QuestionStatus = "COMPLETED"
	QuestionFailed    QuestionStatus = "FAILED"
)

// AnswerKind distinguishes a curated answer meant for direct display from
// one meant to be run as a SQL query against the TAG execution service.
type AnswerKind string

const (
	AnswerDirect   AnswerKind = "DIRECT"
	AnswerSQLQuery AnswerKind = "SQL_QUERY"
)

// MessageStatus is the assistant-message lifecycle state.
type MessageStatus string

const (
	MessageReceived   MessageStatus = "RECEIVED"
	MessageProcessing MessageStatus = "PROCESSING"
	MessageProcessed  MessageStatus = "PROCESSED"
	MessageFailed     MessageStatus = "FAILED"
)

// SizeClass is the target chunk-length bucket. A document may be indexed
// simultaneously at multiple size classes.
type SizeClass string

const (
	SizeSmall  SizeClass = "SMALL"
	SizeMedium SizeClass = "MEDIUM"
	SizeLarge  SizeClass = "LARGE"
)

// TargetChars returns the approximate target chunk length in characters for
// the size class, matching spec.md's SMALL≈1000 / MEDIUM≈2000 / LARGE≈4000.
func (c SizeClass) TargetChars() int {
	switch c {
	case SizeSmall:
		return 1000
	case SizeLarge:
		return 4000
	default:
		return 2000
	}
}

// OverlapChars returns the overlap (in characters) applied between
// consecutive chunks of this size class in the multi-level strategy.
func (c SizeClass) OverlapChars() int {
	switch c {
	case SizeSmall:
		return 50
	case SizeLarge:
		return 200
	default:
		return 100
	}
}

// KnowledgeBase is a logical grouping of documents and curated questions.
type KnowledgeBase struct {
	ID        string
	Owner     string
	Name      string
	ACL       map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is one uploaded file tracked through the ingestion pipeline.
type Document struct {
	ID                 string
	KnowledgeBaseID    string
	Title               string
	ContentType        ContentType
	// Exactly one of RawInline/RawStorageHandle is set.
	RawInline          []byte
	RawStorageHandle   string
	Status             DocumentStatus
	ProcessedChunkCount int
	Summary            string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Question is a curated author-provided Q&A pair.
type Question struct {
	ID              string
	KnowledgeBaseID string
	QuestionText    string
	AnswerText      string
	AnswerKind      AnswerKind
	Status          QuestionStatus
	UserID          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChunkMetadata carries the structural context attached to a Chunk.
type ChunkMetadata struct {
	DocumentID      string
	ChunkIndex      int
	TotalChunks     int
	SizeClass       SizeClass
	ContentType     ContentType
	DocumentType    DocumentType
	DocumentTitle   string
	SectionPath     []string
	NearestHeader   string
	WordCount       int
}

// Chunk is a transient unit of retrieval text produced by the Chunker. It is
// never persisted in the metadata store; it is handed off by value between
// the chunker and the embedding/upsert stages.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}

// VectorRecord is the unit persisted into the vector index.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// RoutingInfo records the QueryRouter's decision for provenance.
type RoutingInfo struct {
	Service    string
	Confidence float64
	Reasoning  string
	Fallback   bool
}

// Source is one provenance entry attached to a query answer.
type Source struct {
	Service     string
	Score       float64
	Content     string
	DocumentID  string
	Title       string
	ChunkIndex  int
	QuestionID  string
	Question    string
	Answer      string
	AnswerKind  AnswerKind
}

// Message is the pre-created placeholder for an assistant reply that the
// core mutates in place (status, content, sources, routing metadata).
type Message struct {
	ID             string
	ConversationID string
	Status         MessageStatus
	Content        string
	Sources        []Source
	Routing        RoutingInfo
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
