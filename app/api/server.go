package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/atf-feed/app/security"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health/live", "/metrics"},
	}))

	r.Use(gin.Recovery())
	r.Use(securityHeaders())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, gatherer)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, gatherer prometheus.Gatherer) {
	r.GET("/health", handler.GetHealth)
	r.GET("/health/ready", handler.GetReady)
	r.GET("/health/live", handler.GetLive)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(bodyLimit(requestBodyLimit(handler.validator.MaxSize())))
	if apiAccessKey != "" || handler.tokens != nil {
		api.Use(authMiddleware(apiAccessKey, handler.tokens))
		slog.Info("API endpoints enabled with authentication", "api_key", apiAccessKey != "", "jwt", handler.tokens != nil)
	} else {
		slog.Warn("API authentication disabled (API_ACCESS_KEY and SIGNING_KEY_PATH not set)")
	}
	{
		api.POST("/feeds/validate", handler.APIValidateFeed)
		api.POST("/feeds/compare", handler.APICompareFeeds)
		api.POST("/feeds/checksum", handler.APIChecksum)
		api.POST("/feeds", handler.APICreateFeed)
		api.POST("/feeds/archive", handler.APIArchiveFeed)
		api.GET("/archives", handler.APIListArchives)
		api.GET("/archives/:id", handler.APIGetArchive)
		api.POST("/tokens", handler.APIIssueToken)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "ATF Feed",
			"description": "Algorithmic Transparency Feed validation, diff and archive service",
			"endpoints": map[string]string{
				"health":   "/health",
				"metrics":  "/metrics",
				"validate": "/api/feeds/validate (POST)",
				"compare":  "/api/feeds/compare (POST)",
				"checksum": "/api/feeds/checksum (POST)",
				"generate": "/api/feeds (POST)",
				"archive":  "/api/feeds/archive (POST)",
				"archives": "/api/archives",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "" || handler.tokens != nil,
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

const (
	authMethodKey    = "auth_method"
	subjectKey       = "subject"
	authMethodAPIKey = "api_key"
	authMethodJWT    = "jwt"
)

// jsonEscapeFactor bounds how much JSON string escaping can grow a document
// ("<" encodes as \u003c).
const (
	jsonEscapeFactor  = 6
	jsonEnvelopeBytes = 64 * 1024
	maxDocsPerRequest = 2
)

// requestBodyLimit is the largest body an /api request may carry: two
// fully escaped documents of the feed size limit plus the JSON envelope.
func requestBodyLimit(maxFeedSize int64) int64 {
	return maxFeedSize*maxDocsPerRequest*jsonEscapeFactor + jsonEnvelopeBytes
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// authMiddleware accepts the static API key (X-API-Key or Bearer) or, when
// tokens is set, a bearer JWT it issued.
func authMiddleware(apiAccessKey string, tokens *security.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if apiAccessKey != "" && subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiAccessKey)) == 1 {
			c.Set(authMethodKey, authMethodAPIKey)
			c.Next()
			return
		}

		if tokens != nil {
			claims, err := tokens.Verify(providedKey)
			if err == nil {
				c.Set(authMethodKey, authMethodJWT)
				c.Set(subjectKey, claims.Subject)
				c.Next()
				return
			}
			slog.Debug("Bearer token rejected", "error", err)
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Invalid API key",
			"message": "The provided API key or token is not valid",
		})
		c.Abort()
	}
}
