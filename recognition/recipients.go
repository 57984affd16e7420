package recognition

import (
	"context"
	"sort"

	"github.com/warp/recognition-engine/engine"
)

// ScopeRecipients describes who the actor can pick under one scope.
type ScopeRecipients struct {
	Enabled      bool
	AwardsPoints bool
	Recipients   []engine.UserSnapshot
	Description  string
	EmptyMessage string
}

type AllowedRecipients struct {
	Peer   ScopeRecipients
	Report ScopeRecipients
	Global ScopeRecipients
}

// AllowedRecipients lists eligible active colleagues per scope, following
// the same rules Authorize enforces.
func (s *Service) AllowedRecipients(ctx context.Context, actor engine.User) (AllowedRecipients, error) {
	users, err := s.store.ListUsers(ctx, actor.TenantID, true)
	if err != nil {
		return AllowedRecipients{}, err
	}
	others := make([]engine.User, 0, len(users))
	for _, u := range users {
		if u.ID != actor.ID {
			others = append(others, u)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		if others[i].LastName != others[j].LastName {
			return others[i].LastName < others[j].LastName
		}
		return others[i].FirstName < others[j].FirstName
	})

	var out AllowedRecipients

	// peer
	switch {
	case actor.ManagerID != "":
		out.Peer.Enabled = true
		out.Peer.Description = "Peers are colleagues who share your manager."
	case actor.Department != "":
		out.Peer.Enabled = true
		out.Peer.Description = "Peers are colleagues in your department when no manager is assigned."
	default:
		out.Peer.Description = "Peer recognition needs a manager or department on your profile. Please contact HR."
	}
	if out.Peer.Enabled {
		out.Peer.AwardsPoints = true
		for _, u := range others {
			if isPeer(actor, u) {
				out.Peer.Recipients = append(out.Peer.Recipients, u.Snapshot())
			}
		}
		if len(out.Peer.Recipients) == 0 {
			out.Peer.EmptyMessage = "Nobody shares your manager or department yet."
		}
	}

	// report
	elevated := actor.Role.Elevated()
	downline := downlineOf(users, actor.ID)
	if elevated || actor.Role.ManagerTier() {
		out.Report.Enabled = true
		out.Report.AwardsPoints = true
		out.Report.Description = "People in your reporting line."
		for _, u := range others {
			if downline[u.ID] {
				out.Report.Recipients = append(out.Report.Recipients, u.Snapshot())
			}
		}
		if len(out.Report.Recipients) == 0 {
			out.Report.EmptyMessage = "You don't have reports yet."
		}
	} else {
		out.Report.Description = "Only managers and HR leaders can recognize their reports."
	}

	// global
	out.Global.Enabled = true
	out.Global.AwardsPoints = elevated
	if elevated {
		out.Global.Description = "Recognize anyone in the company, with points."
	} else {
		out.Global.Description = "Recognize anyone in the company. Points are only awarded by HR and executive leaders, or by managers to their own reporting line."
	}
	for _, u := range others {
		out.Global.Recipients = append(out.Global.Recipients, u.Snapshot())
	}
	if len(out.Global.Recipients) == 0 {
		out.Global.EmptyMessage = "Nobody else is in your organization yet."
	}

	return out, nil
}
