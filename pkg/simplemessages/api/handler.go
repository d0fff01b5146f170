package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/metrics"
)

// Form field names accepted by POST /submissions.
const (
	FormName    = "name"
	FormEmail   = "email"
	FormMessage = "message"
	FormImage   = "image"
)

// multipartMemory bounds each text field of a multipart body and is the
// headroom WithMaxBodyBytes leaves beyond the media limit by default.
const multipartMemory = 1 << 20

// Handler exposes intake and the public feed over HTTP
type Handler struct {
	service simplemessages.Service
	logger  *slog.Logger
	maxBody int64
	metrics *metrics.HTTPMetrics
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger for request handling
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes bounds the size of a submission request body
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxBody = n
	}
}

// WithMetrics records request counts and latencies
func WithMetrics(m *metrics.HTTPMetrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a new handler
func NewHandler(service simplemessages.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		logger:  slog.Default(),
		maxBody: simplemessages.DefaultLimits().MaxMediaBytes + multipartMemory,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the submission endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.metrics != nil {
		r.Use(h.recordMetrics)
	}

	r.Post("/submissions", h.Submit)
	r.Get("/submissions/{id}", h.GetSubmission)
	r.Get("/feed", h.GetFeed)
	r.Get("/media/{ref}", h.GetMedia)
	return r
}

func (h *Handler) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

// SubmissionResponse is the public view of a submission. The contact email
// is never published.
type SubmissionResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	MessageBody string    `json:"message_body"`
	MediaRef    string    `json:"media_ref,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitResponse is returned by POST /submissions
type SubmitResponse struct {
	Outcome    string             `json:"outcome"`
	Submission SubmissionResponse `json:"submission"`
	Warning    string             `json:"warning,omitempty"`
}

// FeedEntryResponse is one entry of GET /feed
type FeedEntryResponse struct {
	SubmissionResponse
	MediaURL    string `json:"media_url"`
	Placeholder bool   `json:"placeholder"`
}

// FeedResponse is returned by GET /feed
type FeedResponse struct {
	Entries    []FeedEntryResponse `json:"entries"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// ErrorResponse is the body of every error status
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func toSubmissionResponse(s *simplemessages.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:          s.ID.String(),
		DisplayName: s.DisplayName,
		MessageBody: s.MessageBody,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
	}
	if s.MediaRef != nil {
		resp.MediaRef = *s.MediaRef
	}
	return resp
}

// Submit accepts a multipart or urlencoded form with name, email, message
// and an optional image.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	req, err := readSubmission(r)
	if err != nil {
		var invalid *simplemessages.ValidationError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &invalid):
			h.renderError(w, r, http.StatusUnprocessableEntity, err)
		case errors.As(err, &tooLarge):
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, ErrorResponse{Error: "request too large"})
		default:
			h.logger.WarnContext(r.Context(), "failed to parse submission form", "error", err)
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "malformed form"})
		}
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	switch result.Outcome {
	case simplemessages.OutcomeSuccess, simplemessages.OutcomeSuccessWithWarning:
		resp := SubmitResponse{
			Outcome:    string(result.Outcome),
			Submission: toSubmissionResponse(result.Submission),
		}
		if result.Warning != nil {
			resp.Warning = "your message was saved without its image; please try adding it again later"
		}
		h.logger.InfoContext(r.Context(), "submission created", "submission_id", result.Submission.ID, "outcome", result.Outcome)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)

	case simplemessages.OutcomeValidationFailed:
		h.renderError(w, r, http.StatusUnprocessableEntity, err)

	default:
		h.logger.ErrorContext(r.Context(), "failed to store submission", "error", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse{Error: "we could not save your message, please try again later"})
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var ve *simplemessages.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// readSubmission decodes a multipart or urlencoded submission form. The image
// part is buffered in memory; the caller caps the body size. An image that
// runs past the cap yields the media validation error for its declared type.
func readSubmission(r *http.Request) (simplemessages.SubmitRequest, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		if err := r.ParseForm(); err != nil {
			return simplemessages.SubmitRequest{}, err
		}
		return simplemessages.SubmitRequest{
			DisplayName:  r.FormValue(FormName),
			ContactEmail: r.FormValue(FormEmail),
			MessageBody:  r.FormValue(FormMessage),
		}, nil
	}
	if err != nil {
		return simplemessages.SubmitRequest{}, err
	}

	var req simplemessages.SubmitRequest
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		if err != nil {
			return req, err
		}

		switch part.FormName() {
		case FormName, FormEmail, FormMessage:
			value, err := io.ReadAll(io.LimitReader(part, multipartMemory))
			if err != nil {
				return req, err
			}
			switch part.FormName() {
			case FormName:
				req.DisplayName = string(value)
			case FormEmail:
				req.ContactEmail = string(value)
			default:
				req.MessageBody = string(value)
			}
		case FormImage:
			declared := part.Header.Get("Content-Type")
			data, err := io.ReadAll(part)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					return req, simplemessages.OversizedUpload(declared, tooLarge.Limit)
				}
				return req, err
			}
			// Browsers send an empty, unnamed part when no file was chosen.
			if part.FileName() == "" && len(data) == 0 {
				break
			}
			req.Upload = &simplemessages.Upload{
				FileName: part.FileName(),
				MimeType: declared,
				Size:     int64(len(data)),
				Content:  bytes.NewReader(data),
			}
		}
		part.Close()
	}
}

// GetFeed returns one page of the public listing
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	req := simplemessages.GetFeedRequest{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "invalid limit"})
			return
		}
		req.Limit = limit
	}

	page, err := h.service.GetFeed(r.Context(), req)
	if err != nil {
		if errors.Is(err, simplemessages.ErrInvalidCursor) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "invalid cursor"})
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read feed", "error", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse{Error: "feed unavailable"})
		return
	}

	resp := FeedResponse{
		Entries:    make([]FeedEntryResponse, 0, len(page.Entries)),
		NextCursor: page.NextCursor,
	}
	for _, entry := range page.Entries {
		resp.Entries = append(resp.Entries, FeedEntryResponse{
			SubmissionResponse: toSubmissionResponse(entry.Submission),
			MediaURL:           entry.MediaURL,
			Placeholder:        entry.Placeholder,
		})
	}
	render.JSON(w, r, resp)
}

// GetSubmission returns one published submission by id
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid submission id"})
		return
	}

	submission, err := h.service.GetSubmission(r.Context(), id)
	if err != nil || submission.Status != simplemessages.SubmissionStatusPublished {
		if err != nil && !errors.Is(err, simplemessages.ErrSubmissionNotFound) {
			h.logger.ErrorContext(r.Context(), "failed to get submission", "submission_id", idStr, "error", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, ErrorResponse{Error: "submission unavailable"})
			return
		}
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "submission not found"})
		return
	}
	render.JSON(w, r, toSubmissionResponse(submission))
}

// GetMedia streams a stored image. It backs the media-proxy URL strategy.
func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	asset, body, err := h.service.GetMedia(r.Context(), ref)
	if err != nil {
		if errors.Is(err, simplemessages.ErrMediaNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: "media not found"})
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get media", "ref", ref, "error", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse{Error: "media unavailable"})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", asset.MimeType)
	if asset.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(asset.SizeBytes, 10))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Refs are never reused, so the payload behind one never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "failed to stream media", "ref", ref, "error", err)
	}
}
