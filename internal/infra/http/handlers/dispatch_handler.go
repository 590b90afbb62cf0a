package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/worker"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

type DispatchRunner interface {
	RunOnce(ctx context.Context) (*usecase.DispatchOutput, error)
}

// DispatchHandler triggers a dispatch run on demand. It is disabled when no
// secret is configured.
type DispatchHandler struct {
	Runner DispatchRunner
	Secret string
}

func NewDispatchHandler(runner DispatchRunner, secret string) *DispatchHandler {
	return &DispatchHandler{Runner: runner, Secret: secret}
}

func (h *DispatchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid dispatch credentials")
		return
	}

	out, err := h.Runner.RunOnce(r.Context())
	if errors.Is(err, worker.ErrRunInProgress) {
		writeErrorResponse(w, http.StatusConflict, "RUN_IN_PROGRESS", err.Error())
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("manual dispatch failed")
		if out != nil {
			writeJSON(w, http.StatusInternalServerError, out)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, usecase.ErrorCode(err), "dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *DispatchHandler) authorized(r *http.Request) bool {
	if h.Secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) == 1
}
