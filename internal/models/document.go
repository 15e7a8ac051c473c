package models

// PageText is the extracted text of one non-empty document page.
// Page is the 1-based physical page index.
type PageText struct {
	Text string
	Page int
}

// ChunkMetadata identifies where a chunk came from
type ChunkMetadata struct {
	Page   int    `json:"page"`
	Source string `json:"source"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Source is a citation for one retrieved chunk
type Source struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
