package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/middleware"
)

// HeaderIdempotencyKey is the request header carrying the key
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderReplayed marks a response served from the store
const HeaderReplayed = "Idempotent-Replayed"

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// A concurrent duplicate gets 409 and a different body under the same key
// gets 422. 5xx responses are not stored so the caller can retry.
func Middleware(config *Config) gin.HandlerFunc {
	logger := config.Logger.WithComponent("idempotency")

	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.ErrValidation(ErrKeyRequired.Error()))
				return
			}
			c.Next()
			return
		}

		if err := ValidateKeyWithMaxLength(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.ErrValidation(fmt.Sprintf("invalid %s header: %v", HeaderIdempotencyKey, err)))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		now := time.Now().UTC()
		record := &IdempotencyKey{
			Key:                key,
			ServiceID:          config.ServiceName,
			RequestPath:        c.FullPath(),
			RequestMethod:      c.Request.Method,
			RequestFingerprint: ComputeFingerprint(body),
			CreatedAt:          now,
			ExpiresAt:          now.Add(config.RetentionPeriod),
		}
		if config.OwnerExtractor != nil {
			record.OwnerID = config.OwnerExtractor(c)
		}

		ctx := c.Request.Context()
		stored, created, err := config.Repository.AcquireLock(ctx, record)
		if err != nil {
			logger.WithError(err).Error("Failed to acquire idempotency lock", "key", key, "path", record.RequestPath)
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store"))
			return
		}

		if !created {
			switch {
			case stored.RequestFingerprint != record.RequestFingerprint:
				logger.Warn("Idempotency key reused with different parameters", "key", key, "path", record.RequestPath)
				middleware.AbortWithAppError(c, errors.NewAppError("IDEMPOTENCY_PARAMETER_MISMATCH",
					"Request parameters differ from the original request with this idempotency key",
					http.StatusUnprocessableEntity))
			case stored.IsCompleted():
				logger.Info("Replaying idempotent response", "key", key, "path", record.RequestPath, "statusCode", stored.ResponseCode)
				config.Metrics.RecordIdempotentReplay()
				c.Header(HeaderReplayed, "true")
				c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
				c.Abort()
			default:
				logger.Warn("Concurrent request with same idempotency key", "key", key, "path", record.RequestPath)
				middleware.AbortWithAppError(c, errors.ErrConflict("A request with this idempotency key is currently being processed"))
			}
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError || writer.body.Len() > config.MaxResponseSize {
			if err := config.Repository.ReleaseLock(ctx, record); err != nil {
				logger.WithError(err).Warn("Failed to release idempotency lock", "key", key)
			}
			return
		}

		record.ResponseCode = status
		record.ResponseBody = writer.body.Bytes()
		if err := config.Repository.StoreResponse(ctx, record); err != nil {
			logger.WithError(err).Error("Failed to store idempotency response", "key", key)
		}
	}
}

func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
