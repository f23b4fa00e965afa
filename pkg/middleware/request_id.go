package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"inventory-service/internal/domain"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey = "request_id"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "X-Idempotent-Replay"

	redisKeyPrefix = "idempotency:"
)

var (
	ErrRequestIDNotFound = errors.New("request ID not found")
	// ErrRequestInProgress is returned by Get while the first request with
	// the key is still being served.
	ErrRequestInProgress = errors.New("request ID in progress")
)

// StoredResponse is a captured 2xx response. A zero Status marks a key that
// is reserved but not yet answered.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// RequestIDStore keeps responses of completed write requests, keyed by
// request ID, for replay.
type RequestIDStore interface {
	// Reserve claims key for one in-flight request. It reports false when
	// the key is already reserved or answered.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Store answers a reserved key.
	Store(ctx context.Context, key string, response StoredResponse, ttl time.Duration) error
	// Release drops a reservation that will not be answered.
	Release(ctx context.Context, key string) error
	// Get returns ErrRequestIDNotFound for unknown or expired keys and
	// ErrRequestInProgress for reserved ones.
	Get(ctx context.Context, key string) (StoredResponse, error)
}

// InMemoryRequestIDStore is the single-process fallback when Redis is not
// configured.
type InMemoryRequestIDStore struct {
	mu      sync.Mutex
	entries map[string]requestIDEntry
	now     func() time.Time
}

type requestIDEntry struct {
	response  StoredResponse
	expiresAt time.Time
}

func NewInMemoryRequestIDStore() *InMemoryRequestIDStore {
	return &InMemoryRequestIDStore{
		entries: make(map[string]requestIDEntry),
		now:     time.Now,
	}
}

// evict drops expired entries. Callers hold mu.
func (s *InMemoryRequestIDStore) evict(now time.Time) {
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *InMemoryRequestIDStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = requestIDEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryRequestIDStore) Store(ctx context.Context, key string, response StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)
	s.entries[key] = requestIDEntry{response: response, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryRequestIDStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.response.Status == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (s *InMemoryRequestIDStore) Get(ctx context.Context, key string) (StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return StoredResponse{}, ErrRequestIDNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return StoredResponse{}, ErrRequestIDNotFound
	}
	if entry.response.Status == 0 {
		return StoredResponse{}, ErrRequestInProgress
	}
	return entry.response, nil
}

// RedisRequestIDStore shares replayable responses across API instances.
type RedisRequestIDStore struct {
	client *redis.Client
}

func NewRedisRequestIDStore(client *redis.Client) *RedisRequestIDStore {
	return &RedisRequestIDStore{client: client}
}

// releaseScript deletes the key only while it still holds the reservation.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var reservedPayload = []byte(`{"status":0}`)

func (s *RedisRequestIDStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, redisKeyPrefix+key, reservedPayload, ttl).Result()
}

func (s *RedisRequestIDStore) Store(ctx context.Context, key string, response StoredResponse, ttl time.Duration) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err()
}

func (s *RedisRequestIDStore) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, reservedPayload).Err()
}

func (s *RedisRequestIDStore) Get(ctx context.Context, key string) (StoredResponse, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredResponse{}, ErrRequestIDNotFound
	}
	if err != nil {
		return StoredResponse{}, err
	}
	var response StoredResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return StoredResponse{}, err
	}
	if response.Status == 0 {
		return StoredResponse{}, ErrRequestInProgress
	}
	return response, nil
}

// RequestIDMiddleware extracts or generates X-Request-ID header
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}

func isWrite(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return false
	}
	return true
}

// reservationTTL bounds how long a crashed request blocks its retries.
const reservationTTL = time.Minute

// idempotencyKey scopes a client request ID to the caller and the route, so
// one caller can never be served another caller's response.
func idempotencyKey(c *gin.Context, requestID string) string {
	scope := "anonymous"
	if p := GetPrincipal(c); p.UserID != uuid.Nil {
		scope = p.UserID.String()
	}
	return scope + " " + c.Request.Method + " " + c.Request.URL.Path + " " + requestID
}

// IdempotencyMiddleware replays the stored response of a write request whose
// client-supplied X-Request-ID was already served, and stores 2xx responses
// of new ones. A duplicate that arrives while the first request is still
// running gets 409. Generated request IDs are never stored. Store errors fail
// open. Mount it after AuthMiddleware on protected routes.
func IdempotencyMiddleware(store RequestIDStore, logger *zap.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !isWrite(c.Request.Method) || requestID == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := idempotencyKey(c, requestID)

		reserved, err := store.Reserve(ctx, key, reservationTTL)
		if err != nil {
			logger.Warn("Error reserving idempotency key",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !reserved {
			replay(c, store, key, requestID, logger)
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		// Errors attached with c.Error are written later by ErrorHandler.
		status := writer.Status()
		if status < 200 || status >= 300 || len(c.Errors) > 0 {
			if err := store.Release(ctx, key); err != nil {
				logger.Warn("Failed to release idempotency key",
					zap.String("request_id", requestID),
					zap.Error(err),
				)
			}
			return
		}
		response := StoredResponse{
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body,
		}
		if err := store.Store(ctx, key, response, ttl); err != nil {
			logger.Warn("Failed to store response for idempotency",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			return
		}
		logger.Debug("Stored response for idempotency",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
		)
	}
}

func replay(c *gin.Context, store RequestIDStore, key, requestID string, logger *zap.Logger) {
	cached, err := store.Get(c.Request.Context(), key)
	if err == nil {
		logger.Info("Duplicate request detected, returning cached response",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.Header(ReplayedHeader, "true")
		c.Data(cached.Status, cached.ContentType, cached.Body)
		c.Abort()
		return
	}
	if !errors.Is(err, ErrRequestInProgress) && !errors.Is(err, ErrRequestIDNotFound) {
		logger.Warn("Error reading idempotency store",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
	logger.Info("Duplicate request while the first is in progress",
		zap.String("request_id", requestID),
		zap.String("path", c.Request.URL.Path),
	)
	stdErr := apperrors.NewStandardError(string(domain.KindVersionConflict),
		"request with this ID is already in progress", "Header: "+RequestIDHeader)
	c.AbortWithStatusJSON(stdErr.HTTPStatus(), stdErr)
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
