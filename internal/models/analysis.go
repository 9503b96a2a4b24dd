package models

import "time"

type VideoSource string

const (
	SourceUpload  VideoSource = "upload"
	SourceYouTube VideoSource = "youtube"
)

// AnalysisResult is immutable once produced; a new analysis replaces it wholesale.
type AnalysisResult struct {
	ID        string      `bson:"id" json:"id"`
	Source    VideoSource `bson:"source" json:"source"`
	SourceRef string      `bson:"source_ref" json:"source_ref"` // file name or video URL
	Query     string      `bson:"query" json:"query"`
	Text      string      `bson:"text" json:"text"` // markdown

	Model      string    `bson:"model" json:"model"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	DurationMS int64     `bson:"duration_ms" json:"duration_ms"`
}
