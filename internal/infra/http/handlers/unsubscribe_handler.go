package handlers

import (
	"context"
	"html/template"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

type LeadUnsubscriber interface {
	Execute(ctx context.Context, input usecase.UnsubscribeInput) (*usecase.UnsubscribeOutput, error)
}

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;background:#f4f5f7;color:#1f2933;">
  <div style="max-width:480px;margin:64px auto;background:#fff;border-radius:6px;padding:32px;text-align:center;">
    <h1 style="font-size:22px;">{{.Title}}</h1>
    <p style="font-size:16px;">{{.Message}}</p>
  </div>
</body>
</html>`))

type unsubscribeView struct {
	Title   string
	Message string
}

// UnsubscribeHandler serves the link in every email (GET) and RFC 8058
// one-click requests from mail clients (POST). The page is friendly in every
// outcome.
type UnsubscribeHandler struct {
	UnsubscribeUC LeadUnsubscriber
	decoder       *schema.Decoder
}

func NewUnsubscribeHandler(uc LeadUnsubscriber) *UnsubscribeHandler {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return &UnsubscribeHandler{UnsubscribeUC: uc, decoder: d}
}

func (h *UnsubscribeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input usecase.UnsubscribeInput
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, invalidLinkView())
		return
	}
	if err := h.decoder.Decode(&input, r.Form); err != nil {
		h.render(w, http.StatusBadRequest, invalidLinkView())
		return
	}

	out, err := h.UnsubscribeUC.Execute(ctx, input)
	if err != nil {
		code := usecase.ErrorCode(err)
		middleware.RecordUnsubscribe("error")
		switch code {
		case usecase.CodeInvalidToken, usecase.CodeLeadNotFound:
			log.Ctx(ctx).Info().Err(err).Str("code", code).Msg("unsubscribe link rejected")
			h.render(w, http.StatusBadRequest, invalidLinkView())
		default:
			log.Ctx(ctx).Error().Err(err).Msg("unsubscribe failed")
			h.render(w, http.StatusInternalServerError, unsubscribeView{
				Title:   "We could not process your request",
				Message: "Something went wrong on our side. Please try the link again in a few minutes.",
			})
		}
		return
	}

	middleware.RecordUnsubscribe(out.Result)
	title := "You have been unsubscribed"
	if out.Result == usecase.UnsubscribeResultAlready {
		title = "You are already unsubscribed"
	}
	h.render(w, http.StatusOK, unsubscribeView{Title: title, Message: out.Message})
}

func (h *UnsubscribeHandler) render(w http.ResponseWriter, status int, view unsubscribeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	unsubscribePage.Execute(w, view)
}

func invalidLinkView() unsubscribeView {
	return unsubscribeView{
		Title:   "This link is no longer valid",
		Message: "We could not match this unsubscribe link. If you keep receiving emails, reply to any of them and we will remove you.",
	}
}
