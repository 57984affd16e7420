/*
Package engine provides the core recognition and points engine.

PURPOSE:
  This package contains the tenant-scoped document types shared by the
  recognition and redemption workflows, the points ledger writer, the
  storage interfaces and the atomic multi-write port. Domain packages
  (recognition, redemption) orchestrate workflows on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Role: closed enum of directory roles, normalized at the boundary
  - User: directory record with balances and monthly spend counters
  - Recognition: a (possibly gated) award from one user to recipients
  - LedgerEntry: immutable signed point movement
  - Reward / Redemption: catalog items and their fulfillment records

DESIGN PRINCIPLES:
  1. Tenant isolation: every document carries a TenantID and every store
     query is keyed by it
  2. Snapshots: recognitions keep the sender/recipient view captured at
     creation time, later directory edits never rewrite history
  3. Derived fields (PointsStatus, CreditedPoints) are computed, never stored

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
  - ledger.go: Points ledger writer
*/
package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPoints is awarded when no explicit amount applies.
	DefaultPoints = 10
	// MaxPoints is the hard ceiling for a single recognition.
	MaxPoints = 10000
	// ApprovalThreshold gates recognitions: anything above needs approval.
	ApprovalThreshold = 200
	// MaxValuesTags bounds the optional values tags on a recognition.
	MaxValuesTags = 3
)

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleEmployee  Role = "employee"
	RoleManager   Role = "manager"
	RoleHRAdmin   Role = "hr_admin"
	RoleExecutive Role = "executive"
	RoleCLevel    Role = "c_level"
)

var roleAliases = map[string]Role{
	"":          RoleEmployee,
	"employee":  RoleEmployee,
	"manager":   RoleManager,
	"hr_admin":  RoleHRAdmin,
	"hradmin":   RoleHRAdmin,
	"hr":        RoleHRAdmin,
	"executive": RoleExecutive,
	"exec":      RoleExecutive,
	"c_level":   RoleCLevel,
	"clevel":    RoleCLevel,
	"c-level":   RoleCLevel,
}

// ParseRole normalizes stored or user-supplied role strings. An empty value
// is treated as employee; anything unknown is ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return role, nil
}

// Elevated reports whether the role may award arbitrary points and
// recognize anyone in the tenant.
func (r Role) Elevated() bool {
	return r == RoleHRAdmin || r == RoleExecutive || r == RoleCLevel
}

// ManagerTier reports whether the role is a (non-elevated) manager.
func (r Role) ManagerTier() bool {
	return r == RoleManager
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Org is a tenant. Webhook URLs are optional notification targets.
type Org struct {
	ID              string
	Name            string
	SlackWebhookURL string
	TeamsWebhookURL string
	CreatedAt       time.Time
}

// User is a directory record. ManagerID is empty when the user has no
// manager. MonthlyPointsAllowance is nil when uncapped.
type User struct {
	ID        string
	TenantID  string
	Email     string
	FirstName string
	LastName  string
	Role      Role

	ManagerID  string
	Department string
	AvatarURL  string

	PointsBalance          int
	TotalPointsEarned      int
	RecognitionCount       int
	MonthlyPointsAllowance *int
	MonthlyPointsSpent     int

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Snapshot captures the display fields stored on a recognition.
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		Department: u.Department,
		ManagerID:  u.ManagerID,
		AvatarURL:  u.AvatarURL,
	}
}

// UserSnapshot is the denormalized user view kept on a recognition.
type UserSnapshot struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
	ManagerID  string `json:"manager_id,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

func (s UserSnapshot) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}

// PointsIncrement is an $inc-style update applied atomically to one user.
type PointsIncrement struct {
	Balance          int
	TotalEarned      int
	RecognitionCount int
}

func (p PointsIncrement) Neg() PointsIncrement {
	return PointsIncrement{Balance: -p.Balance, TotalEarned: -p.TotalEarned, RecognitionCount: -p.RecognitionCount}
}

// =============================================================================
// RECOGNITION
// =============================================================================

type Scope string

const (
	ScopePeer   Scope = "peer"
	ScopeReport Scope = "report"
	ScopeGlobal Scope = "global"
)

// ParseScope defaults to global when s is empty.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopePeer:
		return ScopePeer, nil
	case ScopeReport:
		return ScopeReport, nil
	}
	return "", Validation("invalid_scope", fmt.Sprintf("unknown recognition scope %q", s))
}

type RecognitionType string

const (
	TypePeerToPeer        RecognitionType = "peer_to_peer"
	TypeManagerToEmployee RecognitionType = "manager_to_employee"
	TypeTeam              RecognitionType = "team"
	TypeCompanyWide       RecognitionType = "company_wide"
	TypeMilestone         RecognitionType = "milestone"
	TypeSpotAward         RecognitionType = "spot_award"
	TypeKudos             RecognitionType = "kudos"
)

var recognitionTypes = []RecognitionType{
	TypePeerToPeer, TypeManagerToEmployee, TypeTeam, TypeCompanyWide,
	TypeMilestone, TypeSpotAward, TypeKudos,
}

func ParseRecognitionType(s string) (RecognitionType, error) {
	t := RecognitionType(strings.ToLower(strings.TrimSpace(s)))
	if t == "team_recognition" {
		return TypeTeam, nil
	}
	if slices.Contains(recognitionTypes, t) {
		return t, nil
	}
	return "", Validation("invalid_recognition_type", fmt.Sprintf("unknown recognition type %q", s))
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type PointsStatus string

const (
	PointsStatusNone     PointsStatus = "none"
	PointsStatusPending  PointsStatus = "pending"
	PointsStatusCredited PointsStatus = "credited"
)

// Reaction is one emoji and the users who reacted with it, in reaction order.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

type Recognition struct {
	ID              string
	TenantID        string
	SenderID        string
	RecipientIDs    []string
	Message         string
	PointsAwarded   int
	Type            RecognitionType
	AchievementType string
	Scope           Scope
	IsPublic        bool

	Status     Status
	ApprovedBy string
	ApprovedAt *time.Time

	Sender     UserSnapshot
	Recipients []UserSnapshot
	ValuesTags []string
	Reactions  []Reaction

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequiresApproval reports whether the award is above the gating threshold.
func (r Recognition) RequiresApproval() bool {
	return r.PointsAwarded > ApprovalThreshold
}

// PointsStatus derives the client-facing credit state.
func (r Recognition) PointsStatus() PointsStatus {
	if r.PointsAwarded == 0 {
		return PointsStatusNone
	}
	switch r.Status {
	case StatusPending:
		return PointsStatusPending
	case StatusApproved:
		return PointsStatusCredited
	}
	return PointsStatusNone
}

// CreditedPoints is the amount each recipient actually received.
func (r Recognition) CreditedPoints() int {
	if r.Status == StatusApproved {
		return r.PointsAwarded
	}
	return 0
}

func (r Recognition) HasRecipient(userID string) bool {
	return slices.Contains(r.RecipientIDs, userID)
}

// Clone deep-copies the slices so callers can mutate the copy freely.
func (r Recognition) Clone() Recognition {
	c := r
	c.RecipientIDs = slices.Clone(r.RecipientIDs)
	c.Recipients = slices.Clone(r.Recipients)
	c.ValuesTags = slices.Clone(r.ValuesTags)
	c.Reactions = CloneReactions(r.Reactions)
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	return c
}

func CloneReactions(in []Reaction) []Reaction {
	if in == nil {
		return nil
	}
	out := make([]Reaction, len(in))
	for i, r := range in {
		out[i] = Reaction{Emoji: r.Emoji, UserIDs: slices.Clone(r.UserIDs)}
	}
	return out
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerReason string

const (
	ReasonRecognitionAward LedgerReason = "recognition_award"
	ReasonRewardRedemption LedgerReason = "reward_redemption"
	ReasonRedemptionRefund LedgerReason = "redemption_refund"
	ReasonReversal         LedgerReason = "reversal"
	ReasonAdminGrant       LedgerReason = "admin_grant"
)

type RefType string

const (
	RefRecognition RefType = "recognition"
	RefRedemption  RefType = "redemption"
	RefGrant       RefType = "grant"
)

// LedgerEntry is append-only. Corrections are new entries, never edits.
type LedgerEntry struct {
	ID        string
	TenantID  string
	UserID    string
	Delta     int
	Reason    LedgerReason
	RefType   RefType
	RefID     string
	CreatedAt time.Time
}

// =============================================================================
// REWARDS
// =============================================================================

type Provider string

const (
	ProviderInternal         Provider = "internal"
	ProviderExternalGiftCard Provider = "external_gift_card"
	ProviderManualVendor     Provider = "manual_vendor"
)

// ParseProvider accepts the legacy "amazon_giftcard" tag as an external
// gift card provider and defaults to internal when s is empty.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ProviderInternal):
		return ProviderInternal, nil
	case string(ProviderExternalGiftCard), "amazon_giftcard", "external-gift-card":
		return ProviderExternalGiftCard, nil
	case string(ProviderManualVendor), "manual-vendor":
		return ProviderManualVendor, nil
	}
	return "", Validation("invalid_provider", fmt.Sprintf("unknown reward provider %q", s))
}

// Reward is a catalog item. Prices maps an ISO currency code to the
// display price of the item in that currency.
type Reward struct {
	ID             string
	TenantID       string
	Title          string
	Description    string
	Provider       Provider
	PointsRequired int
	Availability   int
	IsActive       bool
	Prices         map[string]decimal.Decimal
	CreatedAt      time.Time
}

type RedemptionStatus string

const (
	RedemptionPendingFulfillment RedemptionStatus = "pending_fulfillment"
	RedemptionPendingCode        RedemptionStatus = "pending_code"
	RedemptionFulfilled          RedemptionStatus = "fulfilled"
	RedemptionDelivered          RedemptionStatus = "delivered"
	RedemptionCancelled          RedemptionStatus = "cancelled"
)

type Redemption struct {
	ID              string
	TenantID        string
	UserID          string
	RewardID        string
	RewardTitle     string
	PointsUsed      int
	Provider        Provider
	Status          RedemptionStatus
	TrackingNumber  string
	FulfillmentCode string
	RedeemedAt      time.Time
	FulfilledAt     *time.Time
	DeliveredAt     *time.Time
}
