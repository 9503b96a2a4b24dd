package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4

	Analysis *AnalysisResult `bson:"analysis,omitempty" json:"analysis,omitempty"`
	Audio    *AudioArtifact  `bson:"audio,omitempty" json:"audio,omitempty"`
	Flags    UIFlags         `bson:"flags" json:"flags"`

	// Notice is the last user-facing message (error or warning) shown on the page.
	Notice *Notice `bson:"notice,omitempty" json:"notice,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

type UIFlags struct {
	ShowAnalysis   bool `bson:"show_analysis" json:"show_analysis"`
	ShowAudioPanel bool `bson:"show_audio_panel" json:"show_audio_panel"`
	ShowScript     bool `bson:"show_script" json:"show_script"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `bson:"level" json:"level"`
	Message string      `bson:"message" json:"message"`
}

// SetAnalysis makes r the current analysis. Audio derived from the previous
// analysis no longer matches and is dropped.
func (s *Session) SetAnalysis(r *AnalysisResult) {
	s.Analysis = r
	s.Audio = nil
	s.Flags.ShowAnalysis = true
	s.Flags.ShowAudioPanel = false
	s.Notice = nil
}

func (s *Session) SetAudio(a *AudioArtifact) {
	s.Audio = a
	s.Flags.ShowAudioPanel = true
	s.Notice = nil
}

// Reset clears everything the user produced but keeps the session identity.
func (s *Session) Reset() {
	s.Analysis = nil
	s.Audio = nil
	s.Flags = UIFlags{}
	s.Notice = nil
}
