package model

// EnrichmentStatus is the dataset lifecycle state.
type EnrichmentStatus string

const (
	StatusMinimal   EnrichmentStatus = "minimal"   // seeded with bulk data only
	StatusPending   EnrichmentStatus = "pending"   // queued for detail hydration
	StatusEnriching EnrichmentStatus = "enriching" // an attempt is in flight
	StatusEnriched  EnrichmentStatus = "enriched"  // full metadata present
	StatusFailed    EnrichmentStatus = "failed"    // attempts exhausted, deactivated
	StatusSkipped   EnrichmentStatus = "skipped"   // excluded by operator decision
)

// EnrichmentStage identifies the pipeline step an attempt belongs to.
type EnrichmentStage string

const (
	StageAPIMetadata    EnrichmentStage = "api_metadata"
	StageEmbedding      EnrichmentStage = "embedding"
	StageStaticScore    EnrichmentStage = "static_score"
	StageLinkValidation EnrichmentStage = "link_validation"
)

// EnrichmentResult is the outcome of a single attempt.
type EnrichmentResult string

const (
	ResultSuccess     EnrichmentResult = "success"
	ResultFailed      EnrichmentResult = "failed"
	ResultRateLimited EnrichmentResult = "rate_limited"
	ResultSkipped     EnrichmentResult = "skipped"
)

// Known source names.
const (
	SourceHuggingFace = "huggingface"
	SourceKaggle      = "kaggle"
)
