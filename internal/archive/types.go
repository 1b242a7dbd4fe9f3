package archive

import "time"

// Record is one closed conversation as archived to S3. Messages follow the
// ShareGPT chat layout so transcripts can be fed to fine-tuning tools as is.
type Record struct {
	Version         string    `json:"version"`
	ConversationKey string    `json:"conversation_key"`
	Channel         string    `json:"channel"`
	ArchivedAt      time.Time `json:"archived_at"`
	DurationSeconds int       `json:"duration_seconds"`
	MessageCount    int       `json:"message_count"`
	Outcome         string    `json:"outcome"`
	Booking         Booking   `json:"booking"`
	Messages        []Message `json:"messages"`
}

// Booking holds the agreed facts.
type Booking struct {
	Place   string `json:"place"`
	Time    string `json:"time"`
	Payment string `json:"payment"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConversationKey string `json:"conversation_key"`
	S3Key           string `json:"s3_key"`
	Channel         string `json:"channel"`
	ArchivedAt      string `json:"archived_at"`
	MessageCount    int    `json:"message_count"`
	Outcome         string `json:"outcome"`
}
