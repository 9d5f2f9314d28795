package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lysyi3m/atf-feed/app/database"
	"github.com/lysyi3m/atf-feed/app/feed"
	"github.com/lysyi3m/atf-feed/app/security"
	"github.com/lysyi3m/atf-feed/app/tasks"
	"github.com/lysyi3m/atf-feed/app/validator"
)

// versionLayout names generated feed versions.
const versionLayout = "20060102T150405Z"

// NewHandler wires the API handlers. signer and tokens may be nil when no
// signing key is configured.
func NewHandler(v *validator.Validator, archiveRepo database.ArchiveStore,
	scheduler tasks.TaskSchedulerInterface, signer *security.Signer,
	tokens *security.TokenManager, metrics *Metrics) *Handler {
	h := &Handler{
		validator:   v,
		generator:   feed.NewGenerator(),
		archiveRepo: archiveRepo,
		scheduler:   scheduler,
		signer:      signer,
		tokens:      tokens,
		metrics:     metrics,
		now:         time.Now,
	}
	if signer != nil {
		h.publicKey = signer.PublicKey()
	}
	return h
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().In(time.Local).Format(time.RFC3339),
		"signing":   h.signer != nil,
	}

	if count, err := h.archiveRepo.GetArchiveCount(); err == nil {
		health["archives"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetReady(c *gin.Context) {
	if _, err := h.archiveRepo.GetArchiveCount(); err != nil {
		slog.Error("Readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "Archive store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) GetLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *Handler) APIValidateFeed(c *gin.Context) {
	var req ValidateRequest
	if !bindJSON(c, &req) {
		return
	}

	content := []byte(req.Content)
	errs := h.validate(content)

	if req.Signature != "" {
		if sigErr := h.verifySignature(content, req.Signature); sigErr != nil {
			errs = append(errs, *sigErr)
		}
	}

	c.JSON(http.StatusOK, ValidateResponse{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Checksum: h.validator.Checksum(content),
	})
}

func (h *Handler) APICompareFeeds(c *gin.Context) {
	var req CompareRequest
	if !bindJSON(c, &req) {
		return
	}

	diff, err := h.validator.Diff([]byte(req.Feed1), []byte(req.Feed2))
	if err != nil {
		var failure *feed.DiffFailure
		if errors.As(err, &failure) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "Failed to parse feed",
				"side":    failure.Side,
				"code":    failure.Kind,
				"details": failure.Err.Error(),
			})
			return
		}
		slog.Error("Feed comparison failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Comparison failed"})
		return
	}

	c.JSON(http.StatusOK, CompareResponse{Identical: diff.IsEmpty(), Diff: diff})
}

func (h *Handler) APIChecksum(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.validator.MaxSize())

	data, err := c.GetRawData()
	if err != nil {
		if !abortTooLarge(c, err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		}
		return
	}

	c.JSON(http.StatusOK, ChecksumResponse{
		Checksum:  h.validator.Checksum(data),
		SizeBytes: len(data),
	})
}

func (h *Handler) APICreateFeed(c *gin.Context) {
	var config feed.GeneratorConfig
	if !bindJSON(c, &config) {
		return
	}

	now := h.now().UTC()
	doc, err := feed.BuildDocument(config, now)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid feed configuration", "details": err.Error()})
		return
	}

	content, err := h.generator.Run(doc)
	if err != nil {
		slog.Error("Feed generation error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate feed"})
		return
	}

	resp := CreateFeedResponse{
		ID:        uuid.NewString(),
		Version:   now.Format(versionLayout),
		Content:   string(content),
		Checksum:  h.validator.Checksum(content),
		CreatedAt: now,
	}

	if h.signer != nil {
		resp.Signature, err = h.signer.Sign(content)
		if err != nil {
			slog.Error("Feed signing error", "id", resp.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign feed"})
			return
		}
	}

	errs := h.validate(content)
	resp.Validation = ValidateResponse{IsValid: len(errs) == 0, Errors: errs, Checksum: resp.Checksum}

	slog.Info("Feed generated", "id", resp.ID, "version", resp.Version, "items", len(doc.Items), "errors", len(errs))

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) APIArchiveFeed(c *gin.Context) {
	var req ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}

	content := []byte(req.Content)
	errs := h.validate(content)
	if req.Signature != "" {
		if sigErr := h.verifySignature(content, req.Signature); sigErr != nil {
			errs = append(errs, *sigErr)
		}
	}

	if len(errs) > 0 {
		h.metrics.IncrementArchive("rejected")
		c.JSON(http.StatusUnprocessableEntity, ValidateResponse{
			IsValid:  false,
			Errors:   errs,
			Checksum: h.validator.Checksum(content),
		})
		return
	}

	task := tasks.NewArchiveFeedTask(req.Version, content, req.Signature, h.archiveRepo)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		h.metrics.IncrementArchive("failed")
		slog.Error("Error enqueueing archive task", "version", req.Version, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue archive task",
			"details": err.Error(),
		})
		return
	}

	h.metrics.IncrementArchive("queued")
	c.JSON(http.StatusAccepted, ArchiveResponse{
		TaskID:   task.ID,
		Version:  req.Version,
		Checksum: h.validator.Checksum(content),
		Status:   "queued",
	})
}

func (h *Handler) APIListArchives(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	archives, err := h.archiveRepo.ListArchives(limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_archives", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"archives": archives,
		"total":    len(archives),
	})
}

func (h *Handler) APIGetArchive(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing archive id parameter"})
		return
	}

	archive, err := h.archiveRepo.GetArchive(id)
	if errors.Is(err, database.ErrArchiveNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_archive", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, archive)
}

func (h *Handler) APIIssueToken(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Token issuing requires a signing key"})
		return
	}
	// Tokens cannot mint further tokens.
	if c.GetString(authMethodKey) == authMethodJWT {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token issuing requires the API key"})
		return
	}

	var req TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	now := h.now()
	token, err := h.tokens.Issue(req.Subject, now)
	if err != nil {
		slog.Error("Token issuing error", "subject", req.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: now.Add(security.DefaultTokenTTL).UTC()})
}

func (h *Handler) validate(content []byte) []feed.ValidationError {
	start := time.Now()
	errs := h.validator.Validate(content, h.now())
	h.metrics.ObserveValidation(errs, time.Since(start))
	return errs
}

func (h *Handler) verifySignature(content []byte, signature string) *feed.ValidationError {
	if h.publicKey == nil {
		e := feed.NewError(feed.KindSignatureInvalid, "", "no verification key configured")
		return &e
	}
	if err := security.Verify(h.publicKey, content, signature); err != nil {
		e := feed.NewError(feed.KindSignatureInvalid, "", "signature does not match content")
		return &e
	}
	return nil
}

// bindJSON decodes the request body into obj, answering 413 when the body
// limit was hit and 400 for any other decode failure.
func bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	if !abortTooLarge(c, err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
	}
	return false
}

func abortTooLarge(c *gin.Context, err error) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Content exceeds maximum size", "max_bytes": tooLarge.Limit})
	return true
}
