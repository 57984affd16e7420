/*
handlers.go - HTTP API handlers for the recognition engine

PURPOSE:
  Exposes the recognition and redemption workflows via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the domain
  services. The authenticated user (see auth.go) is always the actor.

ENDPOINTS:
  Recognitions:
    POST   /api/recognitions               Create a recognition
    GET    /api/recognitions               My history (sent/received/all)
    GET    /api/recognitions/feed          Public feed, cursor paginated
    GET    /api/recognitions/pending       Approval queue (admin)
    GET    /api/recognitions/recipients    Who I can recognize, per scope
    POST   /api/recognitions/{id}/approve  Approve a gated recognition
    POST   /api/recognitions/{id}/reject   Reject a gated recognition
    POST   /api/recognitions/{id}/react    Toggle an emoji reaction

  Rewards:
    GET    /api/rewards                    Catalog
    POST   /api/rewards                    Create reward (admin)
    PUT    /api/rewards/{id}               Update reward (admin)
    POST   /api/rewards/{id}/redeem        Redeem with points
    GET    /api/redemptions                My redemptions
    GET    /api/points/ledger              My balance and ledger

  Admin:
    GET    /api/admin/redemptions          Fulfillment queue
    PATCH  /api/admin/redemptions/{id}     Fulfillment update
    GET    /api/admin/audit-logs           Audit trail
    POST   /api/admin/allowances/reset     Reset monthly spend now

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate body shape (validator tags on dto.go types)
  3. Call the service with the authenticated actor
  4. Serialize response
  5. Map errors by kind (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/redemption"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       engine.Store
	Recognition *recognition.Service
	Redemption  *redemption.Service
	Scheduler   *AllowanceScheduler
	Secret      string

	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler wires the services onto one store.
func NewHandler(store engine.Store, rec *recognition.Service, red *redemption.Service, scheduler *AllowanceScheduler, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:       store,
		Recognition: rec,
		Redemption:  red,
		Scheduler:   scheduler,
		Secret:      secret,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RECOGNITION ENDPOINTS
// =============================================================================

// CreateRecognition creates a recognition from the current user.
// POST /api/recognitions
func (h *Handler) CreateRecognition(w http.ResponseWriter, r *http.Request) {
	var req CreateRecognitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := recognition.CreateInput{
		RecipientIDs:    req.recipients(),
		Message:         req.Message,
		AchievementType: req.AchievementType,
		IsPublic:        req.IsPublic == nil || *req.IsPublic,
		ValuesTags:      req.ValuesTags,
		Points:          req.Points,
	}
	var err error
	if req.Type != "" {
		if in.Type, err = engine.ParseRecognitionType(req.Type); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if in.Scope, err = engine.ParseScope(req.Scope); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Recognition.Create(r.Context(), currentUser(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecognitionDTO(*rec))
}

// ListRecognitions returns recognitions the current user sent or received.
// GET /api/recognitions?direction=received&type=kudos&limit=50&offset=0
func (h *Handler) ListRecognitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := intParam(w, r, "offset")
	if !ok {
		return
	}

	hq := recognition.HistoryQuery{
		Direction: engine.Direction(q.Get("direction")),
		Limit:     limit,
		Offset:    offset,
	}
	if t := q.Get("type"); t != "" {
		typ, err := engine.ParseRecognitionType(t)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		hq.Type = typ
	}

	items, err := h.Recognition.History(r.Context(), currentUser(r), hq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionDTOs(items))
}

// Feed returns the public feed of the current user's tenant.
// GET /api/recognitions/feed?limit=20&cursor=...&search=...&value_tag=...
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	page, err := h.Recognition.Feed(r.Context(), currentUser(r).TenantID, recognition.FeedQuery{
		Limit:    limit,
		Cursor:   q.Get("cursor"),
		Search:   q.Get("search"),
		ValueTag: q.Get("value_tag"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Items: toRecognitionDTOs(page.Items), NextCursor: page.NextCursor})
}

// ListPendingRecognitions returns the approval queue.
// GET /api/recognitions/pending
func (h *Handler) ListPendingRecognitions(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	items, err := h.Recognition.ListPending(r.Context(), currentUser(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionDTOs(items))
}

// AllowedRecipients lists who the current user can recognize per scope.
// GET /api/recognitions/recipients
func (h *Handler) AllowedRecipients(w http.ResponseWriter, r *http.Request) {
	allowed, err := h.Recognition.AllowedRecipients(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AllowedRecipientsDTO{
		Peer:   toScopeDTO(allowed.Peer),
		Report: toScopeDTO(allowed.Report),
		Global: toScopeDTO(allowed.Global),
	})
}

// ApproveRecognition credits a gated recognition.
// POST /api/recognitions/{id}/approve
func (h *Handler) ApproveRecognition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recognition.Approve(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionDTO(*rec))
}

// RejectRecognition closes a gated recognition without crediting it.
// POST /api/recognitions/{id}/reject
func (h *Handler) RejectRecognition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recognition.Reject(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionDTO(*rec))
}

// React toggles the current user's emoji reaction.
// POST /api/recognitions/{id}/react
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Recognition.ToggleReaction(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Emoji)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionDTO(*rec))
}

// =============================================================================
// REWARD ENDPOINTS
// =============================================================================

// ListRewards returns the catalog. Admins may pass include_inactive=true.
// GET /api/rewards
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	rewards, err := h.Redemption.ListRewards(r.Context(), currentUser(r), includeInactive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]RewardDTO, len(rewards))
	for i, rw := range rewards {
		out[i] = toRewardDTO(rw)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateReward adds a catalog item.
// POST /api/rewards
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	h.saveReward(w, r, "", http.StatusCreated)
}

// UpdateReward replaces a catalog item.
// PUT /api/rewards/{id}
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	h.saveReward(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveReward(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req SaveRewardRequest
	if !h.decode(w, r, &req) {
		return
	}
	reward, err := h.Redemption.SaveReward(r.Context(), currentUser(r), redemption.RewardInput{
		ID:             id,
		Title:          req.Title,
		Description:    req.Description,
		Provider:       req.Provider,
		PointsRequired: req.PointsRequired,
		Availability:   req.Availability,
		IsActive:       req.IsActive == nil || *req.IsActive,
		Prices:         req.Prices,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toRewardDTO(*reward))
}

// Redeem spends the current user's points on a reward.
// POST /api/rewards/{id}/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	red, err := h.Redemption.Redeem(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(*red))
}

// ListRedemptions returns the current user's redemptions, newest first.
// GET /api/redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	items, err := h.Redemption.ListForUser(r.Context(), currentUser(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTOs(items))
}

// GetLedger returns the current user's balances and ledger, newest first.
// GET /api/points/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	user := currentUser(r)
	entries, err := h.Store.ListLedgerEntries(r.Context(), user.TenantID, user.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := LedgerResponse{
		Balance:          user.PointsBalance,
		TotalEarned:      user.TotalPointsEarned,
		MonthlyAllowance: user.MonthlyPointsAllowance,
		MonthlySpent:     user.MonthlyPointsSpent,
		Entries:          make([]LedgerEntryDTO, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = LedgerEntryDTO{
			ID:        e.ID,
			Delta:     e.Delta,
			Reason:    string(e.Reason),
			RefType:   string(e.RefType),
			RefID:     e.RefID,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// AdminListRedemptions returns the fulfillment queue, oldest first.
// GET /api/admin/redemptions?status=pending_code
func (h *Handler) AdminListRedemptions(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	items, err := h.Redemption.ListByStatus(r.Context(), currentUser(r), r.URL.Query().Get("status"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTOs(items))
}

// AdminUpdateRedemption records fulfillment progress.
// PATCH /api/admin/redemptions/{id}
func (h *Handler) AdminUpdateRedemption(w http.ResponseWriter, r *http.Request) {
	var req UpdateRedemptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	red, err := h.Redemption.UpdateStatus(r.Context(), currentUser(r), chi.URLParam(r, "id"), redemption.UpdateInput{
		Status:          req.Status,
		TrackingNumber:  req.TrackingNumber,
		FulfillmentCode: req.FulfillmentCode,
		FulfilledAt:     req.FulfilledAt,
		DeliveredAt:     req.DeliveredAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(*red))
}

// ListAuditLogs returns the tenant's audit trail, newest first.
// GET /api/admin/audit-logs
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !user.Role.Elevated() {
		h.fail(w, r, engine.Forbidden("admin_required", "Only HR and executive leaders can view the audit log."))
		return
	}
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := h.Store.ListAudit(r.Context(), user.TenantID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Diff:       e.Diff,
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ResetAllowances zeroes monthly spend for the admin's tenant.
// POST /api/admin/allowances/reset
func (h *Handler) ResetAllowances(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !user.Role.Elevated() {
		h.fail(w, r, engine.Forbidden("admin_required", "Only HR and executive leaders can reset allowances."))
		return
	}
	n, err := h.Scheduler.RunNow(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{UsersReset: n})
}

// AnalyticsOverview returns recognition activity and points totals.
// GET /api/admin/analytics/overview
func (h *Handler) AnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Recognition.Overview(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewDTO(overview))
}

// GrantPoints credits a user's balance with a ledgered admin grant.
// POST /api/admin/users/{id}/points
func (h *Handler) GrantPoints(w http.ResponseWriter, r *http.Request) {
	var req GrantPointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.Recognition.GrantPoints(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Points, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GrantPointsResponse{
		UserID:        user.ID,
		PointsGranted: req.Points,
		NewBalance:    user.PointsBalance,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		invalidBody(w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		invalidBody(w, err)
		return false
	}
	return true
}

// intParam parses an optional integer query parameter. Missing is 0.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("Invalid %s parameter", name),
			Code:  "invalid_query",
		})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
