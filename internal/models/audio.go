package models

import "time"

type AudioArtifact struct {
	AnalysisID string    `bson:"analysis_id" json:"analysis_id"`
	Script     string    `bson:"script" json:"script"`
	VoiceID    string    `bson:"voice_id" json:"voice_id"`
	VoiceName  string    `bson:"voice_name" json:"voice_name"`
	MIMEType   string    `bson:"mime_type" json:"mime_type"`
	Bytes      []byte    `bson:"bytes" json:"bytes,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

type Voice struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Language string            `json:"language,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}
