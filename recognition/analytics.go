package recognition

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warp/recognition-engine/engine"
)

// UnknownDepartment labels recipients whose snapshot has no department.
const UnknownDepartment = "Unknown"

type DepartmentCount struct {
	Department   string
	Recognitions int
}

// PointsSummary is net of reversals and refunds: Awarded covers
// recognitions and admin grants, Redeemed is what redemptions still hold.
type PointsSummary struct {
	Awarded  int
	Redeemed int
}

type Overview struct {
	Last7Days      int
	Last30Days     int
	TopDepartments []DepartmentCount
	Points         PointsSummary
	GeneratedAt    time.Time
}

// Overview summarizes recent activity for the admin dashboard. Windows
// count recognitions of every status; departments come from the
// recipient snapshots taken at creation.
func (s *Service) Overview(ctx context.Context, admin engine.User) (Overview, error) {
	if !admin.Role.Elevated() {
		return Overview{}, engine.Forbidden("admin_required", "Only HR and executive leaders can view analytics.")
	}
	now := s.Now().UTC()
	out := Overview{GeneratedAt: now}

	var err error
	if out.Last7Days, err = s.store.CountRecognitionsSince(ctx, admin.TenantID, now.AddDate(0, 0, -7)); err != nil {
		return Overview{}, fmt.Errorf("count recognitions: %w", err)
	}
	if out.Last30Days, err = s.store.CountRecognitionsSince(ctx, admin.TenantID, now.AddDate(0, 0, -30)); err != nil {
		return Overview{}, fmt.Errorf("count recognitions: %w", err)
	}

	depts, err := s.store.CountByRecipientDepartment(ctx, admin.TenantID)
	if err != nil {
		return Overview{}, fmt.Errorf("count departments: %w", err)
	}
	out.TopDepartments = rankDepartments(depts)

	sums, err := s.store.NetDeltaByRefType(ctx, admin.TenantID)
	if err != nil {
		return Overview{}, fmt.Errorf("sum ledger: %w", err)
	}
	out.Points = PointsSummary{
		Awarded:  sums[engine.RefRecognition] + sums[engine.RefGrant],
		Redeemed: -sums[engine.RefRedemption],
	}
	return out, nil
}

// rankDepartments orders by count desc, then name, folding blank
// departments into UnknownDepartment.
func rankDepartments(counts map[string]int) []DepartmentCount {
	merged := make(map[string]int, len(counts))
	for dept, n := range counts {
		if dept == "" {
			dept = UnknownDepartment
		}
		merged[dept] += n
	}
	out := make([]DepartmentCount, 0, len(merged))
	for dept, n := range merged {
		out = append(out, DepartmentCount{Department: dept, Recognitions: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recognitions != out[j].Recognitions {
			return out[i].Recognitions > out[j].Recognitions
		}
		return out[i].Department < out[j].Department
	})
	return out
}
