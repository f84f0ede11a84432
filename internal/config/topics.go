package config

const (
	// TopicIngestEmbed is the NSQ topic for chunk embedding tasks.
	TopicIngestEmbed = "ingest.embed"

	// TopicIngestResult is the NSQ topic for embedding outcomes (success/failure).
	TopicIngestResult = "ingest.result"
)
