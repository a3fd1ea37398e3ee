// Package model holds the Librarian's shared data model (§3 of the spec):
// version descriptors, functions, modules, files, knowledge edges, context
// packs, cache entries, watch state, and the bootstrap consistency marker.
// These are plain structs shared by internal/store, internal/cache,
// internal/retrieval, internal/feedback, and internal/assembler.
package model

import (
	"strconv"
	"time"
)

// QualityTier is the indexer quality level.
type QualityTier string

const (
	QualityMVP  QualityTier = "mvp"
	QualityFull QualityTier = "full"
)

// Version describes the index version. Any change in Major, Minor,
// QualityTier, or IndexerVersion invalidates all cached queries and forces
// re-bootstrap (§3).
type Version struct {
	Major          int         `json:"major"`
	Minor          int         `json:"minor"`
	Patch          int         `json:"patch"`
	IndexedAt      time.Time   `json:"indexedAt"`
	QualityTier    QualityTier `json:"qualityTier"`
	IndexerVersion string      `json:"indexerVersion"`
	Features       []string    `json:"features"`
}

// RetrievalKey returns the subset of the version that affects retrieval and
// therefore participates in the cache key (§4.C).
func (v Version) RetrievalKey() string {
	return v.shortKey()
}

func (v Version) shortKey() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + string(v.QualityTier) + "." + v.IndexerVersion
}

// FunctionRecord is a function-level knowledge record (§3).
type FunctionRecord struct {
	ID               string    `json:"id"`
	FilePath         string    `json:"filePath"`
	Name             string    `json:"name"`
	Signature        string    `json:"signature"`
	Purpose          string    `json:"purpose"`
	StartLine        int       `json:"startLine"`
	EndLine          int       `json:"endLine"`
	Confidence       float64   `json:"confidence"`
	AccessCount      int       `json:"accessCount"`
	LastAccessed     time.Time `json:"lastAccessed"`
	ValidationCount  int       `json:"validationCount"`
	OutcomeSuccesses int       `json:"outcomeSuccesses"`
	OutcomeFailures  int       `json:"outcomeFailures"`
}

// ModuleRecord is a module-level knowledge record (§3).
type ModuleRecord struct {
	ID           string   `json:"id"`
	Path         string   `json:"path"`
	Purpose      string   `json:"purpose"`
	Exports      []string `json:"exports"`
	Dependencies []string `json:"dependencies"`
	Confidence   float64  `json:"confidence"`
}

// FileRecord is a file-level knowledge record (§3).
type FileRecord struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	RelativePath  string    `json:"relativePath"`
	Name          string    `json:"name"`
	Extension     string    `json:"extension"`
	Category      string    `json:"category"`
	Purpose       string    `json:"purpose"`
	Role          string    `json:"role"`
	Summary       string    `json:"summary"`
	KeyExports    []string  `json:"keyExports"`
	LineCount     int       `json:"lineCount"`
	FunctionCount int       `json:"functionCount"`
	ImportCount   int       `json:"importCount"`
	Imports       []string  `json:"imports"`
	ImportedBy    []string  `json:"importedBy"`
	Directory     string    `json:"directory"`
	Complexity    float64   `json:"complexity"`
	HasTests      bool      `json:"hasTests"`
	Checksum      string    `json:"checksum"`
	Confidence    float64   `json:"confidence"`
	LastIndexed   time.Time `json:"lastIndexed"`
	LastModified  time.Time `json:"lastModified"`
}

// EdgeType enumerates knowledge graph edge kinds (§3). Closed tagged
// variant per §9 design note — exhaustive switches should list every case.
type EdgeType string

const (
	EdgeCoChanged      EdgeType = "co_changed"
	EdgePartOf         EdgeType = "part_of"
	EdgeReturnsSchema  EdgeType = "returns_schema"
	EdgeDependsOn      EdgeType = "depends_on"
	EdgeSemanticRelate EdgeType = "semantic_relates_to"
)

// EntityType enumerates the kinds of entities edges/packs can reference.
type EntityType string

const (
	EntityFunction EntityType = "function"
	EntityModule   EntityType = "module"
	EntityFile     EntityType = "file"
	EntityPack     EntityType = "pack"
)

// KnowledgeEdge is a directional, typed, weighted graph edge (§3).
type KnowledgeEdge struct {
	ID         string                 `json:"id"`
	SourceID   string                 `json:"sourceId"`
	SourceType EntityType             `json:"sourceType"`
	TargetID   string                 `json:"targetId"`
	TargetType EntityType             `json:"targetType"`
	EdgeType   EdgeType               `json:"edgeType"`
	Weight     float64                `json:"weight"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata"`
	ComputedAt time.Time              `json:"computedAt"`
}

// PackType enumerates context pack kinds (§3). Closed tagged variant.
type PackType string

const (
	PackFunctionContext      PackType = "function_context"
	PackModuleContext        PackType = "module_context"
	PackDocContext           PackType = "doc_context"
	PackCallFlow             PackType = "call_flow"
	PackChangeImpact         PackType = "change_impact"
	PackPatternContext       PackType = "pattern_context"
	PackProjectUnderstanding PackType = "project_understanding"
	PackRelatedFunction      PackType = "related_function"
	PackTestContext          PackType = "test_context"
)

// Outcome is the last recorded feedback outcome for a pack.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// CodeSnippet is one cited code excerpt inside a context pack.
type CodeSnippet struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Language  string `json:"language"`
	Content   string `json:"content"`
}

// MinConfidence and MaxConfidence bound pack confidence after any feedback
// update (§3 invariant, §8 testable property).
const (
	MinConfidence = 0.10
	MaxConfidence = 0.95
)

// ContextPack is the atomic retrieval unit (§3).
type ContextPack struct {
	PackID             string                 `json:"packId"`
	PackType           PackType               `json:"packType"`
	TargetID           string                 `json:"targetId"`
	Summary            string                 `json:"summary"`
	KeyFacts           []string               `json:"keyFacts"`
	CodeSnippets       []CodeSnippet          `json:"codeSnippets"`
	RelatedFiles       []string               `json:"relatedFiles"`
	Confidence         float64                `json:"confidence"`
	CreatedAt          time.Time              `json:"createdAt"`
	AccessCount        int                    `json:"accessCount"`
	LastOutcome        Outcome                `json:"lastOutcome"`
	SuccessCount       int                    `json:"successCount"`
	FailureCount       int                    `json:"failureCount"`
	Version            Version                `json:"version"`
	InvalidationTriggers []string             `json:"invalidationTriggers"`

	// Retrieval-time fields, not persisted, populated during scoring stages.
	Scores map[string]float64 `json:"-"`
}

// ClampConfidence enforces the [0.10, 0.95] invariant.
func ClampConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// QueryCacheEntry is a persisted cache row (§3).
type QueryCacheEntry struct {
	QueryHash   string    `json:"queryHash"`
	QueryParams string    `json:"queryParams"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	AccessCount int       `json:"accessCount"`
}

// WatchCursorKind distinguishes git-HEAD tracking from plain fs reconcile
// tracking for workspaces without git.
type WatchCursorKind string

const (
	CursorGit WatchCursorKind = "git"
	CursorFS  WatchCursorKind = "fs"
)

// WatchCursor is the watch state's position marker (§3).
type WatchCursor struct {
	Kind                   WatchCursorKind `json:"kind"`
	LastIndexedCommitSha   string          `json:"lastIndexedCommitSha,omitempty"`
	LastReconcileCompleted time.Time       `json:"lastReconcileCompletedAt,omitempty"`
}

// WatchState is the persisted watcher state blob (§3).
type WatchState struct {
	SchemaVersion        int         `json:"schema_version"`
	WorkspaceRoot        string      `json:"workspace_root"`
	WatchLastHeartbeatAt time.Time   `json:"watch_last_heartbeat_at,omitempty"`
	SuspectedDead        bool        `json:"suspected_dead,omitempty"`
	NeedsCatchup         bool        `json:"needs_catchup"`
	StorageAttached      bool        `json:"storage_attached,omitempty"`
	Cursor               WatchCursor `json:"cursor"`
}

// ConsistencyStatus enumerates bootstrap consistency marker states (§3).
type ConsistencyStatus string

const (
	ConsistencyInProgress ConsistencyStatus = "in_progress"
	ConsistencyComplete   ConsistencyStatus = "complete"
	ConsistencyFailed     ConsistencyStatus = "failed"
)

// ArtifactEvidence describes one on-disk artifact referenced by the marker.
type ArtifactEvidence struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	MtimeMs  int64  `json:"mtime_ms,omitempty"`
}

// BootstrapConsistencyMarker is the on-disk consistency marker (§3, §6).
type BootstrapConsistencyMarker struct {
	Kind          string            `json:"kind"` // "BootstrapConsistencyState.v1"
	SchemaVersion int               `json:"schema_version"`
	Workspace     string            `json:"workspace"`
	GenerationID  string            `json:"generation_id"`
	Status        ConsistencyStatus `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Artifacts     struct {
		Librarian string           `json:"librarian"`
		Knowledge string           `json:"knowledge"`
		Evidence  ArtifactEvidence `json:"evidence"`
	} `json:"artifacts"`
}

// BackupFileEntry is one original/backup path pair.
type BackupFileEntry struct {
	OriginalPath string `json:"original_path"`
	BackupPath   string `json:"backup_path"`
}

// ArtifactBackupState is the on-disk artifact backup marker (§3, §6).
type ArtifactBackupState struct {
	Kind         string            `json:"kind"` // "BootstrapArtifactBackupState.v1"
	Workspace    string            `json:"workspace"`
	GenerationID string            `json:"generation_id"`
	CreatedAt    time.Time         `json:"created_at"`
	Files        []BackupFileEntry `json:"files"`
}

// IngestionItem is a generic ownership/ingestion-scoped fact (§3).
type IngestionItem struct {
	ID      string      `json:"id"` // e.g. "ownership:<relativePath>"
	Payload interface{} `json:"payload"`
}

// OwnershipPayload is the payload of an ownership ingestion item.
type OwnershipPayload struct {
	Path          string    `json:"path"`
	PrimaryOwner  string    `json:"primaryOwner"`
	Contributors  []string  `json:"contributors"`
	LastTouchedAt time.Time `json:"lastTouchedAt"`
}

// RetrievalLogRecord is one JSONL retrieval confidence/escalation log line (§3).
type RetrievalLogRecord struct {
	QueryHash           string    `json:"query_hash"`
	Intent              string    `json:"intent,omitempty"`
	ConfidenceScore     float64   `json:"confidence_score"`
	RetrievalEntropy    float64   `json:"retrieval_entropy"`
	ReturnedPackIDs     []string  `json:"returned_pack_ids"`
	Timestamp           time.Time `json:"timestamp"`
	RoutedStrategy      string    `json:"routed_strategy,omitempty"`
	FromDepth           string    `json:"from_depth,omitempty"`
	ToDepth             string    `json:"to_depth,omitempty"`
	EscalationReason    string    `json:"escalation_reason,omitempty"`
	Attempt             int       `json:"attempt,omitempty"`
	MaxEscalationDepth  int       `json:"max_escalation_depth,omitempty"`
}

// ConfidenceEvent records one feedback-driven confidence adjustment,
// persisted so the bandit and audit trail survive restarts.
type ConfidenceEvent struct {
	ID          string    `json:"id"`
	QueryID     string    `json:"queryId"`
	PackID      string    `json:"packId"`
	Relevant    bool      `json:"relevant"`
	Usefulness  float64   `json:"usefulness"`
	OldConfidence float64 `json:"oldConfidence"`
	NewConfidence float64 `json:"newConfidence"`
	CreatedAt   time.Time `json:"createdAt"`
}

// QueryAccessLogRecord is one row of the query access log used to seed
// Direct Packs retrieval from prior matching intents (§4.E.2).
type QueryAccessLogRecord struct {
	NormalizedIntent string    `json:"normalizedIntent"`
	TargetIDs        []string  `json:"targetIds"`
	Timestamp        time.Time `json:"timestamp"`
}

// FeedbackTokenBinding is the persisted {feedbackToken -> packIds} mapping
// (§3) so a restart can still resolve feedback submissions.
type FeedbackTokenBinding struct {
	FeedbackToken string   `json:"feedbackToken"`
	PackIDs       []string `json:"packIds"`
}
