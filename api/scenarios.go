/*
scenarios.go - Demo tenant loader

PURPOSE:

	Populates an empty database with a realistic tenant for demos and
	manual testing: an org, an HR admin, a CEO, two manager chains and a
	small reward catalog. Opening recognitions are created through the
	recognition service so balances and ledger entries agree.

THE DEMO ORG (tenant "demo"):

	ceo (c_level)
	 ├── mgr-eng (manager, allowance 500)
	 │    └── lead-eng (manager, allowance 200)
	 │         ├── dev-1
	 │         └── dev-2
	 └── mgr-sales (manager, allowance 300)
	      └── rep-1
	hr (hr_admin)

USAGE:

	server -seed            or  SEED_DEMO=true

	Seeding is skipped when the demo org already exists.

SEE ALSO:
  - cmd/server/main.go: Calls SeedDemo at startup
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/redemption"
)

const DemoTenant = "demo"

// DemoUser is a seeded user and a token to act as them.
type DemoUser struct {
	ID    string
	Role  engine.Role
	Token string
}

type demoUser struct {
	id, first, last, role, manager, dept string
	allowance                            *int
}

var demoUsers = []demoUser{
	{id: "hr", first: "Harriet", last: "Ross", role: "hr_admin", dept: "people"},
	{id: "ceo", first: "Celia", last: "Ortega", role: "c_level", dept: "exec"},
	{id: "mgr-eng", first: "Marcus", last: "Green", role: "manager", manager: "ceo", dept: "engineering", allowance: intPtr(500)},
	{id: "lead-eng", first: "Lena", last: "Ito", role: "manager", manager: "mgr-eng", dept: "engineering", allowance: intPtr(200)},
	{id: "dev-1", first: "Dev", last: "Patel", role: "employee", manager: "lead-eng", dept: "engineering"},
	{id: "dev-2", first: "Dana", last: "Kim", role: "employee", manager: "lead-eng", dept: "engineering"},
	{id: "mgr-sales", first: "Sam", last: "Ruiz", role: "manager", manager: "ceo", dept: "sales", allowance: intPtr(300)},
	{id: "rep-1", first: "Rita", last: "Nolan", role: "employee", manager: "mgr-sales", dept: "sales"},
}

var demoRewards = []redemption.RewardInput{
	{
		Title: "Coffee Mug", Description: "Branded ceramic mug",
		Provider: "internal", PointsRequired: 50, Availability: 100, IsActive: true,
	},
	{
		Title: "Gift Card $25", Description: "Digital gift card, code delivered by email",
		Provider: "external_gift_card", PointsRequired: 250, Availability: 40, IsActive: true,
		Prices: map[string]decimal.Decimal{"USD": decimal.RequireFromString("25.00"), "EUR": decimal.RequireFromString("23.50")},
	},
	{
		Title: "Noise Cancelling Headphones", Description: "Shipped by our hardware vendor",
		Provider: "manual_vendor", PointsRequired: 1500, Availability: 5, IsActive: true,
		Prices: map[string]decimal.Decimal{"USD": decimal.RequireFromString("249.99")},
	},
}

// SeedDemo loads the demo tenant. When secret is set, each returned user
// carries a bearer token valid for ttl.
func SeedDemo(ctx context.Context, store engine.Store, rec *recognition.Service, red *redemption.Service, secret string, ttl time.Duration) ([]DemoUser, error) {
	existing, err := store.GetOrg(ctx, DemoTenant)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := loadDemo(ctx, store, rec, red); err != nil {
			return nil, err
		}
	}

	out := make([]DemoUser, 0, len(demoUsers))
	for _, du := range demoUsers {
		role, _ := engine.ParseRole(du.role)
		u := DemoUser{ID: du.id, Role: role}
		if secret != "" {
			if u.Token, err = IssueToken(secret, du.id, DemoTenant, ttl); err != nil {
				return nil, err
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func loadDemo(ctx context.Context, store engine.Store, rec *recognition.Service, red *redemption.Service) error {
	now := time.Now().UTC()
	if err := store.SaveOrg(ctx, engine.Org{ID: DemoTenant, Name: "Demo Corp", CreatedAt: now}); err != nil {
		return fmt.Errorf("save demo org: %w", err)
	}

	users := make(map[string]engine.User, len(demoUsers))
	for _, du := range demoUsers {
		role, err := engine.ParseRole(du.role)
		if err != nil {
			return err
		}
		u := engine.User{
			ID:                     du.id,
			TenantID:               DemoTenant,
			Email:                  du.id + "@demo.example",
			FirstName:              du.first,
			LastName:               du.last,
			Role:                   role,
			ManagerID:              du.manager,
			Department:             du.dept,
			MonthlyPointsAllowance: du.allowance,
			IsActive:               true,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save demo user %s: %w", du.id, err)
		}
		users[du.id] = u
	}

	for _, in := range demoRewards {
		if _, err := red.SaveReward(ctx, users["hr"], in); err != nil {
			return fmt.Errorf("save demo reward %q: %w", in.Title, err)
		}
	}

	opening := []struct {
		sender string
		in     recognition.CreateInput
	}{
		{"hr", recognition.CreateInput{
			RecipientIDs: []string{"dev-1", "dev-2", "rep-1"},
			Message:      "Welcome bonus for the launch crew",
			Type:         engine.TypeCompanyWide,
			IsPublic:     true,
			Points:       intPtr(150),
			ValuesTags:   []string{"teamwork"},
		}},
		{"lead-eng", recognition.CreateInput{
			RecipientIDs: []string{"dev-1"},
			Message:      "Untangled the billing migration",
			Type:         engine.TypeManagerToEmployee,
			Scope:        engine.ScopeReport,
			IsPublic:     true,
			ValuesTags:   []string{"ownership", "craft"},
		}},
		{"dev-1", recognition.CreateInput{
			RecipientIDs: []string{"dev-2"},
			Message:      "Thanks for the late-night code review",
			Scope:        engine.ScopePeer,
			IsPublic:     true,
		}},
		{"ceo", recognition.CreateInput{
			RecipientIDs: []string{"mgr-sales"},
			Message:      "Record quarter for the sales team",
			Type:         engine.TypeSpotAward,
			IsPublic:     true,
			Points:       intPtr(500),
		}},
	}
	for _, o := range opening {
		if _, err := rec.Create(ctx, users[o.sender], o.in); err != nil {
			return fmt.Errorf("seed recognition from %s: %w", o.sender, err)
		}
	}
	return nil
}

func intPtr(n int) *int { return &n }
