/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry `validate` tags checked by go-playground/validator
  before the workflow runs. Tags cover shape only (lengths, enums).
  Business rules, including empty recipients or messages, stay in the
  recognition and redemption services so clients get their error codes.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Validation error rendering
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/recognition"
)

// =============================================================================
// RECOGNITIONS
// =============================================================================

// CreateRecognitionRequest takes recipient_id, recipient_ids or both.
type CreateRecognitionRequest struct {
	RecipientID     string   `json:"recipient_id" validate:"max=128"`
	RecipientIDs    []string `json:"recipient_ids" validate:"max=50,dive,max=128"`
	Message         string   `json:"message" validate:"max=2000"`
	Type            string   `json:"recognition_type" validate:"omitempty,max=40"`
	AchievementType string   `json:"achievement_type" validate:"omitempty,max=80"`
	IsPublic        *bool    `json:"is_public"`
	Scope           string   `json:"scope" validate:"max=20"`
	ValuesTags      []string `json:"values_tags" validate:"max=10,dive,max=40"`
	Points          *int     `json:"points_awarded"`
}

// recipients merges the single and list forms, single first.
func (r CreateRecognitionRequest) recipients() []string {
	if r.RecipientID == "" {
		return r.RecipientIDs
	}
	return append([]string{r.RecipientID}, r.RecipientIDs...)
}

type GrantPointsRequest struct {
	Points int    `json:"points"`
	Note   string `json:"note" validate:"max=500"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=16"`
}

type RecognitionDTO struct {
	ID              string                `json:"id"`
	SenderID        string                `json:"sender_id"`
	RecipientIDs    []string              `json:"recipient_ids"`
	Message         string                `json:"message"`
	PointsAwarded   int                   `json:"points_awarded"`
	PointsStatus    engine.PointsStatus   `json:"points_status"`
	CreditedPoints  int                   `json:"credited_points"`
	Type            string                `json:"recognition_type"`
	AchievementType string                `json:"achievement_type,omitempty"`
	Scope           string                `json:"scope"`
	IsPublic        bool                  `json:"is_public"`
	Status          string                `json:"status"`
	ApprovedBy      string                `json:"approved_by,omitempty"`
	ApprovedAt      string                `json:"approved_at,omitempty"`
	Sender          engine.UserSnapshot   `json:"sender"`
	Recipients      []engine.UserSnapshot `json:"recipients"`
	ValuesTags      []string              `json:"values_tags"`
	Reactions       []engine.Reaction     `json:"reactions"`
	CreatedAt       string                `json:"created_at"`
}

type FeedResponse struct {
	Items      []RecognitionDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ScopeRecipientsDTO struct {
	Enabled      bool                  `json:"enabled"`
	AwardsPoints bool                  `json:"awards_points"`
	Recipients   []engine.UserSnapshot `json:"recipients"`
	Description  string                `json:"description"`
	EmptyMessage string                `json:"empty_message,omitempty"`
}

type AllowedRecipientsDTO struct {
	Peer   ScopeRecipientsDTO `json:"peer"`
	Report ScopeRecipientsDTO `json:"report"`
	Global ScopeRecipientsDTO `json:"global"`
}

// =============================================================================
// POINTS
// =============================================================================

type LedgerEntryDTO struct {
	ID        string `json:"id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	RefType   string `json:"ref_type"`
	RefID     string `json:"ref_id"`
	CreatedAt string `json:"created_at"`
}

type LedgerResponse struct {
	Balance          int              `json:"points_balance"`
	TotalEarned      int              `json:"total_points_earned"`
	MonthlyAllowance *int             `json:"monthly_points_allowance"`
	MonthlySpent     int              `json:"monthly_points_spent"`
	Entries          []LedgerEntryDTO `json:"entries"`
}

// =============================================================================
// REWARDS
// =============================================================================

type SaveRewardRequest struct {
	Title          string                     `json:"title" validate:"required,max=200"`
	Description    string                     `json:"description" validate:"max=2000"`
	Provider       string                     `json:"provider" validate:"omitempty,max=40"`
	PointsRequired int                        `json:"points_required" validate:"gte=0,lte=1000000"`
	Availability   int                        `json:"availability" validate:"gte=0"`
	IsActive       *bool                      `json:"is_active"`
	Prices         map[string]decimal.Decimal `json:"prices" validate:"omitempty,dive,keys,len=3,endkeys"`
}

type RewardDTO struct {
	ID             string                     `json:"id"`
	Title          string                     `json:"title"`
	Description    string                     `json:"description,omitempty"`
	Provider       string                     `json:"provider"`
	PointsRequired int                        `json:"points_required"`
	Availability   int                        `json:"availability"`
	IsActive       bool                       `json:"is_active"`
	Prices         map[string]decimal.Decimal `json:"prices,omitempty"`
}

type RedemptionDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	RewardID        string `json:"reward_id"`
	RewardTitle     string `json:"reward_title,omitempty"`
	PointsUsed      int    `json:"points_used"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	FulfillmentCode string `json:"fulfillment_code,omitempty"`
	RedeemedAt      string `json:"redeemed_at"`
	FulfilledAt     string `json:"fulfilled_at,omitempty"`
	DeliveredAt     string `json:"delivered_at,omitempty"`
}

type UpdateRedemptionRequest struct {
	Status          string     `json:"status" validate:"max=40"`
	TrackingNumber  string     `json:"tracking_number" validate:"max=120"`
	FulfillmentCode string     `json:"fulfillment_code" validate:"max=120"`
	FulfilledAt     *time.Time `json:"fulfilled_at"`
	DeliveredAt     *time.Time `json:"delivered_at"`
}

// =============================================================================
// ADMIN
// =============================================================================

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Diff       map[string]any `json:"diff,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

type ResetResponse struct {
	UsersReset int64 `json:"users_reset"`
}

type GrantPointsResponse struct {
	UserID        string `json:"user_id"`
	PointsGranted int    `json:"points_granted"`
	NewBalance    int    `json:"new_balance"`
}

type DepartmentStatDTO struct {
	Department       string `json:"department"`
	RecognitionCount int    `json:"recognition_count"`
}

type PointsSummaryDTO struct {
	Awarded  int `json:"awarded"`
	Redeemed int `json:"redeemed"`
}

type AnalyticsOverviewDTO struct {
	RecognitionsLast7Days  int                 `json:"recognitions_last_7_days"`
	RecognitionsLast30Days int                 `json:"recognitions_last_30_days"`
	TopDepartments         []DepartmentStatDTO `json:"top_departments"`
	PointsSummary          PointsSummaryDTO    `json:"points_summary"`
	GeneratedAt            time.Time           `json:"generated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRecognitionDTO(r engine.Recognition) RecognitionDTO {
	dto := RecognitionDTO{
		ID:              r.ID,
		SenderID:        r.SenderID,
		RecipientIDs:    nonNil(r.RecipientIDs),
		Message:         r.Message,
		PointsAwarded:   r.PointsAwarded,
		PointsStatus:    r.PointsStatus(),
		CreditedPoints:  r.CreditedPoints(),
		Type:            string(r.Type),
		AchievementType: r.AchievementType,
		Scope:           string(r.Scope),
		IsPublic:        r.IsPublic,
		Status:          string(r.Status),
		ApprovedBy:      r.ApprovedBy,
		Sender:          r.Sender,
		Recipients:      r.Recipients,
		ValuesTags:      nonNil(r.ValuesTags),
		Reactions:       r.Reactions,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.ApprovedAt != nil {
		dto.ApprovedAt = r.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if dto.Recipients == nil {
		dto.Recipients = []engine.UserSnapshot{}
	}
	if dto.Reactions == nil {
		dto.Reactions = []engine.Reaction{}
	}
	return dto
}

func toRecognitionDTOs(rs []engine.Recognition) []RecognitionDTO {
	out := make([]RecognitionDTO, len(rs))
	for i, r := range rs {
		out[i] = toRecognitionDTO(r)
	}
	return out
}

func toScopeDTO(s recognition.ScopeRecipients) ScopeRecipientsDTO {
	recipients := s.Recipients
	if recipients == nil {
		recipients = []engine.UserSnapshot{}
	}
	return ScopeRecipientsDTO{
		Enabled:      s.Enabled,
		AwardsPoints: s.AwardsPoints,
		Recipients:   recipients,
		Description:  s.Description,
		EmptyMessage: s.EmptyMessage,
	}
}

func toRewardDTO(r engine.Reward) RewardDTO {
	return RewardDTO{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Provider:       string(r.Provider),
		PointsRequired: r.PointsRequired,
		Availability:   r.Availability,
		IsActive:       r.IsActive,
		Prices:         r.Prices,
	}
}

func toRedemptionDTO(r engine.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		RewardID:        r.RewardID,
		RewardTitle:     r.RewardTitle,
		PointsUsed:      r.PointsUsed,
		Provider:        string(r.Provider),
		Status:          string(r.Status),
		TrackingNumber:  r.TrackingNumber,
		FulfillmentCode: r.FulfillmentCode,
		RedeemedAt:      r.RedeemedAt.UTC().Format(time.RFC3339),
		FulfilledAt:     formatOptional(r.FulfilledAt),
		DeliveredAt:     formatOptional(r.DeliveredAt),
	}
}

func toRedemptionDTOs(rs []engine.Redemption) []RedemptionDTO {
	out := make([]RedemptionDTO, len(rs))
	for i, r := range rs {
		out[i] = toRedemptionDTO(r)
	}
	return out
}

func toOverviewDTO(o recognition.Overview) AnalyticsOverviewDTO {
	depts := make([]DepartmentStatDTO, len(o.TopDepartments))
	for i, d := range o.TopDepartments {
		depts[i] = DepartmentStatDTO{Department: d.Department, RecognitionCount: d.Recognitions}
	}
	return AnalyticsOverviewDTO{
		RecognitionsLast7Days:  o.Last7Days,
		RecognitionsLast30Days: o.Last30Days,
		TopDepartments:         depts,
		PointsSummary:          PointsSummaryDTO{Awarded: o.Points.Awarded, Redeemed: o.Points.Redeemed},
		GeneratedAt:            o.GeneratedAt,
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
