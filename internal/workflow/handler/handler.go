package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"prodir/internal/generation"
	"prodir/internal/identity"
	profilemodels "prodir/internal/profile/models"
	pubmodels "prodir/internal/publication/models"
	"prodir/internal/publication/pipeline"
	"prodir/internal/ratelimit"
	reviewmodels "prodir/internal/review/models"
	"prodir/internal/workflow"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/httputil"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Service is the workflow surface the routes call.
type Service interface {
	GetProfile(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error)
	ListProfiles(ctx context.Context, filter profilemodels.ListFilter, cursor string, limit int) (*pagination.Page[*profilemodels.Profile], error)
	EditProfile(ctx context.Context, id domain.ProfileID, patch map[string]any, resubmit bool) (*profilemodels.Profile, error)
	Approve(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error)
	SendToSuperAdmin(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error)
	Publish(ctx context.Context, id domain.ProfileID) (*pipeline.Result, error)
	Remove(ctx context.Context, id domain.ProfileID) error
	SubmitReview(ctx context.Context, id domain.ProfileID, rating float64, comment, authorName string) (*workflow.ReviewResult, error)
	ListReviews(ctx context.Context, id domain.ProfileID, page, pageSize int) (*reviewmodels.Page, error)
	Generate(ctx context.Context, req generation.Request) ([]*profilemodels.Profile, error)
	GetPublished(ctx context.Context, id domain.ProfileID) (*pubmodels.Snapshot, error)
	ListPublished(ctx context.Context, cursor string, limit int) (*pagination.Page[*pubmodels.Snapshot], error)
}

// Handler serves the profile, review and publication routes.
type Handler struct {
	svc      Service
	resolver identity.Resolver
	logger   *slog.Logger

	limiter        *ratelimit.Middleware
	generatePolicy ratelimit.Policy
	reviewPolicy   ratelimit.Policy
}

type Option func(*Handler)

// WithRateLimits throttles generation and review submission per caller.
func WithRateLimits(limiter *ratelimit.Middleware, generate, review ratelimit.Policy) Option {
	return func(h *Handler) {
		h.limiter = limiter
		h.generatePolicy = generate
		h.reviewPolicy = review
	}
}

func New(svc Service, resolver identity.Resolver, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// limit wraps next in the named policy when rate limiting is configured.
func (h *Handler) limit(scope string, policy ratelimit.Policy) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.Limit(scope, policy)
}

// Register mounts every route on r. Reads of public data need no token;
// everything else requires a resolved identity.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Get("/published", h.handleListPublished)
		r.Get("/published/{id}", h.handleGetPublished)
		r.Get("/profiles/{id}/reviews", h.handleListReviews)
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireIdentity(h.resolver, h.logger))
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))
			r.Get("/profiles", h.handleListProfiles)
			r.Get("/profiles/{id}", h.handleGetProfile)
			r.Patch("/profiles/{id}", h.handleEditProfile)
			r.Delete("/profiles/{id}", h.handleRemove)
			r.Post("/profiles/{id}/approve", h.handleApprove)
			r.Post("/profiles/{id}/send-to-superadmin", h.handleSendToSuperAdmin)
			r.Post("/profiles/{id}/publish", h.handlePublish)
			r.With(h.limit("reviews", h.reviewPolicy)).Post("/profiles/{id}/reviews", h.handleSubmitReview)
		})
		// Generation waits on the provider's backoff, so it gets a longer budget.
		r.With(h.limit("generate", h.generatePolicy), chimw.Timeout(2*time.Minute)).Post("/profiles/generate", h.handleGenerate)
	})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetProfile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := profilemodels.ListFilter{
		Region:   strings.TrimSpace(q.Get("region")),
		Category: strings.TrimSpace(q.Get("category")),
		Status:   profilemodels.Status(strings.TrimSpace(q.Get("status"))),
	}
	page, err := h.svc.ListProfiles(r.Context(), filter, q.Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	resubmit := false
	if raw := r.URL.Query().Get("resubmit"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, dErrors.New(dErrors.CodeInvalidArgument, "resubmit must be a boolean"))
			return
		}
		resubmit = v
	}
	var patch map[string]any
	if err := decodeBody(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.EditProfile(r.Context(), id, patch, resubmit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Approve)
}

func (h *Handler) handleSendToSuperAdmin(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.SendToSuperAdmin)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.ProfileID) (*profilemodels.Profile, error)) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	p, err := op(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type publishResponse struct {
	Snapshot *pubmodels.Snapshot `json:"snapshot"`
	Changed  bool                `json:"changed"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, publishResponse{Snapshot: res.Snapshot, Changed: res.Changed})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitReviewRequest struct {
	Rating     float64 `json:"rating"`
	Comment    string  `json:"comment"`
	AuthorName string  `json:"author_name"`
}

func (h *Handler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	var req submitReviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.SubmitReview(r.Context(), id, req.Rating, req.Comment, req.AuthorName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), "page_size")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.ListReviews(r.Context(), id, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Region   string `json:"region"`
	Category string `json:"category"`
}

type generateResponse struct {
	Items []*profilemodels.Profile `json:"items"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.Generate(r.Context(), generation.Request(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if created == nil {
		created = []*profilemodels.Profile{}
	}
	httputil.WriteJSON(w, http.StatusCreated, generateResponse{Items: created})
}

func (h *Handler) handleGetPublished(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.GetPublished(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleListPublished(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.svc.ListPublished(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) profileID(w http.ResponseWriter, r *http.Request) (domain.ProfileID, bool) {
	id, err := domain.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return domain.ProfileID{}, false
	}
	return id, true
}

// writeError logs client errors at warn and everything else at error, then
// writes the coded error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := httputil.StatusFor(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, name+" must be an integer")
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return dErrors.New(dErrors.CodeInvalidArgument, "request body too large")
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
		default:
			return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "invalid request body")
		}
	}
	return nil
}
