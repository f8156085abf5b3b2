package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/imaging"
	"github.com/example/facegate/internal/verify"
)

// MaxUploadSize bounds accepted image payloads.
const MaxUploadSize = 8 << 20

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc *verify.Service, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", authMiddleware)

	authed.POST("/verify", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authenticated subject"})
			return
		}

		data, status, err := readImagePayload(c)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		claimed := strings.TrimSpace(c.PostForm("claimed_identity"))
		if claimed == "" {
			claimed = userID
		}

		result, err := svc.Verify(c.Request.Context(), userID, claimed, data)
		if err != nil {
			var decodeErr *imaging.DecodeError
			if errors.As(err, &decodeErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": decodeErr.Reason})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":        result.Success,
			"identity":       result.Identity,
			"confidence":     result.Confidence,
			"reason":         result.Reason(),
			"correlation_id": result.CorrelationID,
		})
	})

	authed.GET("/result/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authenticated subject"})
			return
		}

		correlationID := c.Param("id")
		if correlationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := svc.GetResult(c.Request.Context(), userID, correlationID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"correlation_id": log.CorrelationID,
			"state":          log.State,
			"success":        log.Success,
			"identity":       log.MatchedIdentity,
			"confidence":     log.Confidence,
			"reasons":        log.Reasons,
			"created_at":     log.CreatedAt,
		})
	})

	authed.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// readImagePayload accepts either a multipart "image" file or an
// "image_base64" form field. It returns the raw image bytes or the
// HTTP status and error describing why the payload was refused.
func readImagePayload(c *gin.Context) ([]byte, int, error) {
	if encoded := c.PostForm("image_base64"); encoded != "" {
		if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
			encoded = encoded[idx+1:]
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid base64 image payload")
		}
		if len(data) > MaxUploadSize {
			return nil, http.StatusRequestEntityTooLarge, errors.New("image exceeds upload limit")
		}
		return data, 0, nil
	}

	file, err := c.FormFile("image")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("image file or image_base64 field is required")
	}
	if file.Size > MaxUploadSize {
		return nil, http.StatusRequestEntityTooLarge, errors.New("image exceeds upload limit")
	}
	if contentType := file.Header.Get("Content-Type"); contentType != "" && !allowedContentTypes[contentType] {
		return nil, http.StatusUnsupportedMediaType, errors.New("unsupported image content type")
	}

	src, err := file.Open()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("unable to open image")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		return nil, http.StatusInternalServerError, errors.New("failed to read image")
	}
	if len(data) > MaxUploadSize {
		return nil, http.StatusRequestEntityTooLarge, errors.New("image exceeds upload limit")
	}
	return data, 0, nil
}
