package recognition

import (
	"context"
	"sort"

	"github.com/warp/recognition-engine/engine"
)

// Downline returns the transitive set of reports under managerID among the
// tenant's active users. The manager itself is never a member, even when
// the directory contains a reporting cycle.
func Downline(ctx context.Context, dir engine.Directory, tenantID, managerID string) (map[string]bool, error) {
	users, err := dir.ListUsers(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	return downlineOf(users, managerID), nil
}

func downlineOf(users []engine.User, managerID string) map[string]bool {
	reports := make(map[string][]string)
	for _, u := range users {
		if u.ManagerID != "" {
			reports[u.ManagerID] = append(reports[u.ManagerID], u.ID)
		}
	}
	for _, ids := range reports {
		sort.Strings(ids)
	}

	result := make(map[string]bool)
	visited := map[string]bool{managerID: true}
	queue := append([]string(nil), reports[managerID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		result[id] = true
		queue = append(queue, reports[id]...)
	}
	return result
}

func containsAll(set map[string]bool, users []engine.User) bool {
	for _, u := range users {
		if !set[u.ID] {
			return false
		}
	}
	return true
}
