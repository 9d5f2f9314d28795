package api

import (
	"crypto/rsa"
	"time"

	"github.com/lysyi3m/atf-feed/app/database"
	"github.com/lysyi3m/atf-feed/app/feed"
	"github.com/lysyi3m/atf-feed/app/security"
	"github.com/lysyi3m/atf-feed/app/tasks"
	"github.com/lysyi3m/atf-feed/app/validator"
)

type GeneratorInterface interface {
	Run(doc *feed.Document) ([]byte, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	validator   *validator.Validator
	generator   GeneratorInterface
	archiveRepo database.ArchiveStore
	scheduler   tasks.TaskSchedulerInterface
	signer      *security.Signer
	publicKey   *rsa.PublicKey
	tokens      *security.TokenManager
	metrics     *Metrics
	now         func() time.Time
}

type ValidateRequest struct {
	Content   string `json:"content" binding:"required"`
	Signature string `json:"signature"`
}

type ValidateResponse struct {
	IsValid  bool                   `json:"is_valid"`
	Errors   []feed.ValidationError `json:"errors"`
	Checksum string                 `json:"checksum"`
}

type CompareRequest struct {
	Feed1 string `json:"feed1" binding:"required"`
	Feed2 string `json:"feed2" binding:"required"`
}

type CompareResponse struct {
	Identical bool `json:"identical"`
	*feed.Diff
}

type ChecksumResponse struct {
	Checksum  string `json:"checksum"`
	SizeBytes int    `json:"size_bytes"`
}

type CreateFeedResponse struct {
	ID         string           `json:"id"`
	Version    string           `json:"version"`
	Content    string           `json:"content"`
	Checksum   string           `json:"checksum"`
	Signature  string           `json:"signature,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	Validation ValidateResponse `json:"validation"`
}

type ArchiveRequest struct {
	Content   string `json:"content" binding:"required"`
	Version   string `json:"version" binding:"required"`
	Signature string `json:"signature"`
}

type ArchiveResponse struct {
	TaskID   string `json:"task_id"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Status   string `json:"status"`
}

type TokenRequest struct {
	Subject string `json:"subject" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
