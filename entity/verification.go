package entity

import (
	"context"
	"io"
	"time"
)

type AnalyzeRequest struct {
	File1   *UploadedAudio
	File2   *UploadedAudio
	UserID  string
	SoundID string
}

type VerificationResult struct {
	Score  float64 `json:"similarity_score"`
	IsSame bool    `json:"is_same"`
}

// Analysis is the outcome of one successful pipeline run.
type Analysis struct {
	RequestID string
	Result    VerificationResult
	Stored    StoredAudioFile
}

// Verifier scores two mono signals for same-speaker likelihood.
// Implementations must not return a result together with an error.
type Verifier interface {
	Verify(ctx context.Context, a, b MonoBuffer) (VerificationResult, error)
}

type VerificationUsecase interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error)
	Archive(ctx context.Context, userID string, compressed bool, w io.Writer) error
	ArchiveFormat(compressed bool) (ext, contentType string)
}

// VerificationEvent is published after every successful analysis.
type VerificationEvent struct {
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	SoundID    string    `json:"sound_id"`
	Score      float64   `json:"similarity_score"`
	IsSame     bool      `json:"is_same"`
	StoredName string    `json:"stored_name"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
}

type EventPublisher interface {
	PublishVerification(ctx context.Context, ev VerificationEvent) error
}

// VerificationRecord is the worker's persisted copy of a VerificationEvent.
type VerificationRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	RequestID  string    `gorm:"type:varchar(64);uniqueIndex"`
	UserID     string    `gorm:"type:varchar(255);index:idx_identity"`
	SoundID    string    `gorm:"type:varchar(255);index:idx_identity"`
	Score      float64
	IsSame     bool
	StoredName string    `gorm:"type:varchar(1024)"`
	Location   string    `gorm:"type:varchar(2048)"`
	VerifiedAt time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (VerificationRecord) TableName() string {
	return "verification_records"
}

type VerificationRecordRepository interface {
	Create(ctx context.Context, rec *VerificationRecord) error
}
