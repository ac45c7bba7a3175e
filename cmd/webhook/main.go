package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Standalone mock webhook sink for local development: it plays the role of
// the club's mail/chat bridge that receives reminder notifications. It acks
// a configurable share of requests and fails the rest, so retry and DLQ
// behavior can be exercised end to end.

// NotifyRequest is the payload posted by the notifier.
type NotifyRequest struct {
	RequestID int64  `json:"request_id" binding:"required"`
	MemberID  int64  `json:"member_id" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Amount    string `json:"amount"`
	DueDate   string `json:"due_date"`
	Kind      string `json:"kind"`
}

type NotifyResponse struct {
	RequestID   int64     `json:"request_id"`
	SinkID      string    `json:"sink_id"`
	AcceptedAt  time.Time `json:"accepted_at"`
	ErrorCode   string    `json:"error_code,omitempty"`
	ErrorMsg    string    `json:"error_message,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	SinkID    string    `json:"sink_id"`
	Timestamp time.Time `json:"timestamp"`
	AckRate   float64   `json:"ack_rate"`
}

// MockSink simulates a notification channel with latency and failures.
type MockSink struct {
	ackRate  float64
	minDelay time.Duration
	maxDelay time.Duration
	sinkID   string
	rng      *rand.Rand
}

func NewMockSink(ackRate float64, minDelay, maxDelay time.Duration) *MockSink {
	return &MockSink{
		ackRate:  ackRate,
		minDelay: minDelay,
		maxDelay: maxDelay,
		sinkID:   "MOCK_SINK_" + uuid.New().String()[:8],
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockSink) handle(req *NotifyRequest) (*NotifyResponse, bool) {
	time.Sleep(m.randomDelay())

	response := &NotifyResponse{
		RequestID:   req.RequestID,
		SinkID:      m.sinkID,
		ProcessedAt: time.Now(),
	}

	if m.rng.Float64() < m.ackRate {
		response.AcceptedAt = time.Now()

		log.Info().
			Int64("request_id", req.RequestID).
			Int64("member_id", req.MemberID).
			Str("kind", req.Kind).
			Msg("Reminder accepted")
		return response, true
	}

	response.ErrorCode = m.randomErrorCode()
	response.ErrorMsg = m.errorMessage(response.ErrorCode)

	log.Warn().
		Int64("request_id", req.RequestID).
		Int64("member_id", req.MemberID).
		Str("error_code", response.ErrorCode).
		Msg("Reminder rejected")
	return response, false
}

func (m *MockSink) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockSink) randomErrorCode() string {
	errorCodes := []string{
		"CHANNEL_UNAVAILABLE",
		"RATE_LIMITED",
		"TIMEOUT",
		"RECIPIENT_UNKNOWN",
	}
	return errorCodes[m.rng.Intn(len(errorCodes))]
}

func (m *MockSink) errorMessage(code string) string {
	messages := map[string]string{
		"CHANNEL_UNAVAILABLE": "Downstream channel is unavailable",
		"RATE_LIMITED":        "Too many notifications, slow down",
		"TIMEOUT":             "Notification delivery timed out",
		"RECIPIENT_UNKNOWN":   "No delivery address on file for the member",
	}
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Unknown error occurred"
}

type Handler struct {
	sink *MockSink
}

func NewHandler(sink *MockSink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) Notify(c *gin.Context) {
	var req NotifyRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	response, ok := h.sink.handle(&req)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		SinkID:    h.sink.sinkID,
		Timestamp: time.Now(),
		AckRate:   h.sink.ackRate,
	})
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	port := os.Getenv("WEBHOOK_PORT")
	if port == "" {
		port = "9090"
	}
	ackRate := 0.95
	if v := os.Getenv("WEBHOOK_ACK_RATE"); v != "" {
		fmt.Sscanf(v, "%f", &ackRate)
	}

	sink := NewMockSink(ackRate, 10*time.Millisecond, 200*time.Millisecond)
	handler := NewHandler(sink)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/notify", handler.Notify)
	r.GET("/health", handler.Health)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", port).Float64("ack_rate", ackRate).Msg("Mock webhook sink listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info().Msg("Mock webhook sink stopped")
}
