package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/engine"
)

func user(id string, role engine.Role, manager, dept string) engine.User {
	return engine.User{ID: id, TenantID: "t", Role: role, ManagerID: manager, Department: dept, IsActive: true}
}

func intp(n int) *int { return &n }

// =============================================================================
// DOWNLINE
// =============================================================================

func TestDownlineOf_Transitive(t *testing.T) {
	users := []engine.User{
		user("m", engine.RoleManager, "", ""),
		user("a", engine.RoleEmployee, "m", ""),
		user("b", engine.RoleEmployee, "a", ""),
		user("c", engine.RoleEmployee, "b", ""),
		user("x", engine.RoleEmployee, "other", ""),
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, downlineOf(users, "m"))
	assert.Equal(t, map[string]bool{"c": true}, downlineOf(users, "b"))
	assert.Empty(t, downlineOf(users, "c"))
}

func TestDownlineOf_CycleTerminates(t *testing.T) {
	// GIVEN: m -> a -> b -> m
	// WHEN: resolving m's downline
	// THEN: traversal stops and m is not its own report

	users := []engine.User{
		user("m", engine.RoleManager, "b", ""),
		user("a", engine.RoleEmployee, "m", ""),
		user("b", engine.RoleManager, "a", ""),
	}
	got := downlineOf(users, "m")
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	assert.False(t, got["m"])
}

// =============================================================================
// AUTHORIZE
// =============================================================================

func TestAuthorize_Matrix(t *testing.T) {
	hr := user("hr", engine.RoleHRAdmin, "", "")
	mgr := user("m", engine.RoleManager, "", "eng")
	emp := user("e1", engine.RoleEmployee, "m", "eng")
	peer := user("e2", engine.RoleEmployee, "m", "eng")
	stranger := user("z", engine.RoleEmployee, "m2", "sales")
	downline := map[string]bool{"e1": true, "e2": true}

	cases := []struct {
		name       string
		actor      engine.User
		recipients []engine.User
		scope      engine.Scope
		downline   map[string]bool
		want       PointsMode
		code       string
	}{
		{"global elevated", hr, []engine.User{stranger}, engine.ScopeGlobal, nil, PointsRequested, ""},
		{"global manager downline", mgr, []engine.User{emp, peer}, engine.ScopeGlobal, downline, PointsDefault, ""},
		{"global manager mixed", mgr, []engine.User{emp, stranger}, engine.ScopeGlobal, downline, PointsNone, ""},
		{"global employee", emp, []engine.User{stranger}, engine.ScopeGlobal, nil, PointsNone, ""},
		{"report elevated", hr, []engine.User{stranger}, engine.ScopeReport, nil, PointsRequested, ""},
		{"report manager", mgr, []engine.User{emp}, engine.ScopeReport, downline, PointsDefault, ""},
		{"report outside downline", mgr, []engine.User{stranger}, engine.ScopeReport, downline, PointsNone, "not_in_downline"},
		{"report employee", emp, []engine.User{peer}, engine.ScopeReport, nil, PointsNone, "report_scope_forbidden"},
		{"peer shared manager", emp, []engine.User{peer}, engine.ScopePeer, nil, PointsDefault, ""},
		{"peer stranger", emp, []engine.User{peer, stranger}, engine.ScopePeer, nil, PointsNone, "not_a_peer"},
		{"peer by department", mgr, []engine.User{emp}, engine.ScopePeer, nil, PointsDefault, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Authorize(tc.actor, tc.recipients, tc.scope, tc.downline)
			if tc.code != "" {
				require.Error(t, err)
				assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
				assert.Equal(t, tc.code, engine.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Points)
		})
	}
}

func TestAuthorize_PeerNeedsManagerOrDepartment(t *testing.T) {
	loner := user("l", engine.RoleEmployee, "", "")
	other := user("o", engine.RoleEmployee, "", "")
	_, err := Authorize(loner, []engine.User{other}, engine.ScopePeer, nil)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
}

// =============================================================================
// POINTS
// =============================================================================

func TestDeterminePoints(t *testing.T) {
	hr := user("hr", engine.RoleHRAdmin, "", "")
	mgr := user("m", engine.RoleManager, "", "")
	emp := user("e", engine.RoleEmployee, "m", "")

	cases := []struct {
		name      string
		actor     engine.User
		typ       engine.RecognitionType
		requested *int
		mode      PointsMode
		want      int
		wantErr   bool
	}{
		{"kudos", hr, engine.TypeKudos, intp(500), PointsRequested, 0, false},
		{"elevated default", hr, engine.TypeSpotAward, nil, PointsRequested, engine.DefaultPoints, false},
		{"elevated requested", hr, engine.TypeSpotAward, intp(750), PointsRequested, 750, false},
		{"elevated zero", hr, engine.TypeSpotAward, intp(0), PointsRequested, 0, false},
		{"elevated negative", hr, engine.TypeSpotAward, intp(-5), PointsRequested, 0, true},
		{"elevated over max", hr, engine.TypeSpotAward, intp(engine.MaxPoints + 1), PointsRequested, 0, true},
		{"manager below default", mgr, engine.TypeManagerToEmployee, intp(4), PointsDefault, 4, false},
		{"manager above default", mgr, engine.TypeManagerToEmployee, intp(40), PointsDefault, engine.DefaultPoints, false},
		{"employee override ignored", emp, engine.TypePeerToPeer, intp(4), PointsDefault, engine.DefaultPoints, false},
		{"none", emp, engine.TypePeerToPeer, intp(50), PointsNone, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeterminePoints(tc.actor, tc.typ, tc.requested, tc.mode)
			if tc.wantErr {
				assert.Equal(t, engine.KindValidation, engine.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// =============================================================================
// REACTIONS
// =============================================================================

func TestToggle(t *testing.T) {
	var rs []engine.Reaction
	rs = toggle(rs, "🎉", "a")
	rs = toggle(rs, "🎉", "b")
	rs = toggle(rs, "👏", "a")
	require.Len(t, rs, 2)
	assert.Equal(t, []string{"a", "b"}, rs[0].UserIDs)

	rs = toggle(rs, "🎉", "a")
	assert.Equal(t, []string{"b"}, rs[0].UserIDs)

	rs = toggle(rs, "👏", "a")
	require.Len(t, rs, 1)
	assert.Equal(t, "🎉", rs[0].Emoji)
}
