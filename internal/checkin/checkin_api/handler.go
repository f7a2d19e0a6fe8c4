package checkin_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes caps request bodies; a QR payload is far smaller.
const maxBodyBytes = 16 << 10

type Handler struct {
	Service  *checkin.Service
	Sessions *checkin.Registry
	Emitter  *sse.CheckinEventEmitter
	Logger   *logger.Logger
}

func NewHandler(service *checkin.Service, sessions *checkin.Registry, emitter *sse.CheckinEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Service: service, Sessions: sessions, Emitter: emitter, Logger: log}
}

// Routes mounts the API. authMiddleware puts the scanner id in the request
// context; health and metrics stay open.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/checkin", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/sessions", h.OpenSession)
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Delete("/", h.CloseSession)
			r.Post("/scan", h.Scan)
			r.Post("/manual", h.ManualCheckin)
			r.Get("/stats", h.SessionStats)
			r.Get("/recent", h.RecentValidations)
		})
		r.Get("/events/{eventId}/stats", h.EventStats)
		r.Get("/events/{eventId}/stream", h.StreamCheckins)
	})
	return r
}

type openSessionRequest struct {
	EventID string `json:"event_id"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id"`
	ScannerID string `json:"scanner_id"`
	StartedAt string `json:"started_at"`
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	scannerID, ok := h.scanner(w, r)
	if !ok {
		return
	}
	var req openSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "event_id is required"))
		return
	}

	sess := h.Sessions.Open(req.EventID, scannerID)
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Scanning session opened", sessionResponse{
		SessionID: sess.ID,
		EventID:   sess.EventID,
		ScannerID: sess.ScannerID,
		StartedAt: sess.StartedAt.Format("2006-01-02T15:04:05.000Z"),
	}))
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	scannerID, ok := h.scanner(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Close(chi.URLParam(r, "sessionId"), scannerID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scanRequest struct {
	QR string `json:"qr"`
}

// Scan validates one QR code. Rejections are 200 with the outcome; only
// store failures are errors.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := sess.Scan(r.Context(), req.QR)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(out.Message, out))
}

type manualRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ManualCheckin(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req manualRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "email is required"))
		return
	}

	out, err := sess.CheckInByEmail(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(out.Message, out))
}

func (h *Handler) SessionStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	stats, err := sess.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event stats", stats))
}

func (h *Handler) RecentValidations(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Recent validations", sess.Recent()))
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.scanner(w, r); !ok {
		return
	}
	stats, err := h.Service.EventStats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event stats", stats))
}

func (h *Handler) scanner(w http.ResponseWriter, r *http.Request) (string, bool) {
	scannerID := auth.UserID(r.Context())
	if scannerID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "no scanner identity on request"))
		return "", false
	}
	return scannerID, true
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkin.Session, bool) {
	scannerID, ok := h.scanner(w, r)
	if !ok {
		return nil, false
	}
	sess, err := h.Sessions.Get(chi.URLParam(r, "sessionId"), scannerID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

// writeError maps service errors onto status codes. Store failures are 503
// and marked retryable so the door app offers a rescan instead of a rejection.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrSessionNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Session not found", err.Error()))
	case errors.Is(err, checkin.ErrSessionForbidden):
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", err.Error()))
	case errors.Is(err, checkin.ErrLookupFailed):
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.RetryableResponse("Could not read ticket. Please retry.", err.Error()))
	case errors.Is(err, checkin.ErrCommitFailed):
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.RetryableResponse("Could not record check-in. Please retry.", err.Error()))
	default:
		h.Logger.Error("API", fmt.Sprintf("unhandled error: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
	}
}
