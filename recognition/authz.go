/*
authz.go - Who may recognize whom, and with how many points

SCOPE RULES:
  global: any role, anyone in the tenant. Points only for elevated roles,
          or for managers whose recipients are all in their downline.
  report: managers and elevated roles. Managers must have every recipient
          in their downline; elevated roles skip the check.
  peer:   any role. Every recipient shares the actor's manager, or the
          actor's department when the actor has no manager.

A single failing recipient rejects the whole request.

POINTS:
  Authorize returns a Decision whose PointsMode feeds DeterminePoints:

    elevated actor            -> PointsRequested
    report / peer             -> PointsDefault
    global, manager, downline -> PointsDefault
    global otherwise          -> PointsNone
*/
package recognition

import (
	"github.com/warp/recognition-engine/engine"
)

type PointsMode int

const (
	PointsNone PointsMode = iota
	PointsDefault
	PointsRequested
)

type Decision struct {
	Points PointsMode
}

// Authorize applies the scope matrix. downline is only consulted for
// manager-tier actors and may be nil otherwise.
func Authorize(actor engine.User, recipients []engine.User, scope engine.Scope, downline map[string]bool) (Decision, error) {
	elevated := actor.Role.Elevated()

	switch scope {
	case engine.ScopeGlobal:
		switch {
		case elevated:
			return Decision{Points: PointsRequested}, nil
		case actor.Role.ManagerTier() && containsAll(downline, recipients):
			return Decision{Points: PointsDefault}, nil
		}
		return Decision{Points: PointsNone}, nil

	case engine.ScopeReport:
		if elevated {
			return Decision{Points: PointsRequested}, nil
		}
		if !actor.Role.ManagerTier() {
			return Decision{}, engine.Forbidden("report_scope_forbidden",
				"Only managers and HR leaders can recognize their reports.")
		}
		if !containsAll(downline, recipients) {
			return Decision{}, engine.Forbidden("not_in_downline",
				"Report recognition is limited to people in your reporting line.")
		}
		return Decision{Points: PointsDefault}, nil

	case engine.ScopePeer:
		for _, r := range recipients {
			if !isPeer(actor, r) {
				return Decision{}, engine.Forbidden("not_a_peer",
					"Peer recognition requires a shared manager, or a shared department when you have no manager.")
			}
		}
		if elevated {
			return Decision{Points: PointsRequested}, nil
		}
		return Decision{Points: PointsDefault}, nil
	}

	return Decision{}, engine.Validation("invalid_scope", "unknown recognition scope")
}

func isPeer(actor, other engine.User) bool {
	if actor.ManagerID != "" {
		return other.ManagerID == actor.ManagerID
	}
	return actor.Department != "" && other.Department == actor.Department
}

// DeterminePoints resolves the awarded amount for a decision.
//
// Managers may ask for less than the default (but not zero) so they can
// stay inside a small monthly allowance; other non-elevated overrides are
// silently ignored.
func DeterminePoints(actor engine.User, typ engine.RecognitionType, requested *int, mode PointsMode) (int, error) {
	if typ == engine.TypeKudos {
		return 0, nil
	}
	switch mode {
	case PointsRequested:
		points := engine.DefaultPoints
		if requested != nil {
			points = *requested
		}
		if points < 0 {
			return 0, engine.Validation("invalid_points", "Points must be positive.")
		}
		if points > engine.MaxPoints {
			return 0, engine.Validation("points_limit", "Points exceed the allowable limit.")
		}
		return points, nil
	case PointsDefault:
		if actor.Role.ManagerTier() && requested != nil && *requested > 0 && *requested < engine.DefaultPoints {
			return *requested, nil
		}
		return engine.DefaultPoints, nil
	}
	return 0, nil
}
