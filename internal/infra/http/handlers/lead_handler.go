package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

const maxLeadBody = 64 << 10

type LeadCapturer interface {
	Execute(ctx context.Context, input usecase.CaptureLeadInput) (*usecase.CaptureLeadOutput, error)
}

type LeadHandler struct {
	CaptureLeadUC LeadCapturer
	rateLimiter   *RateLimiter
}

func NewLeadHandler(uc LeadCapturer, limiter *RateLimiter) *LeadHandler {
	return &LeadHandler{
		CaptureLeadUC: uc,
		rateLimiter:   limiter,
	}
}

type validationErrorResponse struct {
	Success bool                      `json:"success"`
	Code    string                    `json:"code"`
	Error   string                    `json:"error"`
	Fields  []usecase.ValidationError `json:"fields"`
}

func (h *LeadHandler) CaptureLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.rateLimiter != nil && !h.rateLimiter.Allow(getClientIP(r)) {
		writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
		return
	}

	var input usecase.CaptureLeadInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLeadBody)).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	out, err := h.CaptureLeadUC.Execute(ctx, input)
	if err != nil {
		var de *usecase.DomainError
		if errors.As(err, &de) {
			writeJSON(w, http.StatusBadRequest, validationErrorResponse{
				Success: false,
				Code:    de.Code,
				Error:   de.Message,
				Fields:  de.Fields,
			})
			return
		}
		log.Ctx(ctx).Error().Err(err).Str("code", usecase.ErrorCode(err)).Msg("lead capture failed")
		writeErrorResponse(w, http.StatusInternalServerError, usecase.ErrorCode(err), "Failed to capture lead")
		return
	}

	if out.Duplicate {
		middleware.RecordLeadDuplicate()
		writeJSON(w, http.StatusConflict, out)
		return
	}

	middleware.RecordLeadCaptured(out.Temperature, out.Campaign)
	writeJSON(w, http.StatusCreated, out)
}

// getClientIP prefers the first proxy hop, then the peer address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter is a fixed-window counter per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := rl.now()

	if !exists {
		rl.visitors[ip] = &visitor{count: 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}

	v.count++
	return v.count <= rl.limit
}

// Cleanup drops idle visitors every interval until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for ip, v := range rl.visitors {
				if now.Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}
