/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.TxStore using SQLite. Every method is tenant-scoped;
  list-valued fields (recipients, tags, reactions, snapshots) are stored
  as JSON columns and filtered with json_each.

KEY TABLES:
  orgs, users:     Directory with point counters
  recognitions:    Recognitions with denormalized snapshots
  ledger_entries:  Append-only points ledger
  rewards:         Catalog with stock counter and per-currency prices
  redemptions:     Redemption records
  audit_logs:      Who did what when

CONDITIONAL UPDATES:
  DebitPoints, DecrementAvailability and TransitionRecognition are a
  single UPDATE with the guard in the WHERE clause. RowsAffected tells the
  caller whether the guard held.

CONCURRENCY:
  The pool is capped at one connection: ":memory:" databases are
  per-connection, and it serializes writers the way SQLite would anyway.
  WithTx holds that connection for the whole callback, so callbacks must
  only use the Store they are handed.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order equals time order.

USAGE:
  store, err := sqlite.New("./data/recognition.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/engine"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; it runs against either the pool or a tx.
type queries struct {
	db dbtx
}

// Store implements engine.TxStore using SQLite.
type Store struct {
	*queries
	conn *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{db: db}, conn: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orgs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slack_webhook_url TEXT,
		teams_webhook_url TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		email TEXT,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		manager_id TEXT,
		department TEXT,
		avatar_url TEXT,
		points_balance INTEGER NOT NULL DEFAULT 0,
		total_points_earned INTEGER NOT NULL DEFAULT 0,
		recognition_count INTEGER NOT NULL DEFAULT 0,
		monthly_points_allowance INTEGER,
		monthly_points_spent INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_manager
		ON users(tenant_id, manager_id);

	CREATE TABLE IF NOT EXISTS recognitions (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_ids TEXT NOT NULL,
		message TEXT NOT NULL,
		points_awarded INTEGER NOT NULL,
		type TEXT NOT NULL,
		achievement_type TEXT,
		scope TEXT NOT NULL,
		is_public INTEGER NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		sender_json TEXT NOT NULL,
		recipients_json TEXT NOT NULL,
		values_tags TEXT NOT NULL DEFAULT '[]',
		reactions_json TEXT NOT NULL DEFAULT '[]',
		participant_names TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- Feed order (hot path)
	CREATE INDEX IF NOT EXISTS idx_recognitions_feed
		ON recognitions(tenant_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_recognitions_status
		ON recognitions(tenant_id, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_recognitions_sender
		ON recognitions(tenant_id, sender_id, created_at DESC);

	-- Append-only points ledger
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		ref_type TEXT,
		ref_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_user
		ON ledger_entries(tenant_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(ref_type, ref_id);

	CREATE TABLE IF NOT EXISTS rewards (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		provider TEXT NOT NULL,
		points_required INTEGER NOT NULL,
		availability INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		prices_json TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_title TEXT,
		points_used INTEGER NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		tracking_number TEXT,
		fulfillment_code TEXT,
		redeemed_at TEXT NOT NULL,
		fulfilled_at TEXT,
		delivered_at TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_user
		ON redemptions(tenant_id, user_id, redeemed_at DESC);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		diff_json TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant
		ON audit_logs(tenant_id, timestamp DESC);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (q *queries) SaveOrg(ctx context.Context, org engine.Org) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orgs (id, name, slack_webhook_url, teams_webhook_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			slack_webhook_url = excluded.slack_webhook_url,
			teams_webhook_url = excluded.teams_webhook_url
	`, org.ID, org.Name, nullString(org.SlackWebhookURL), nullString(org.TeamsWebhookURL), formatTime(org.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save org: %w", err)
	}
	return nil
}

func (q *queries) GetOrg(ctx context.Context, id string) (*engine.Org, error) {
	var (
		org          engine.Org
		slack, teams sql.NullString
		createdAt    string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, slack_webhook_url, teams_webhook_url, created_at FROM orgs WHERE id = ?`, id,
	).Scan(&org.ID, &org.Name, &slack, &teams, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get org: %w", err)
	}
	org.SlackWebhookURL = slack.String
	org.TeamsWebhookURL = teams.String
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

const userColumns = `tenant_id, id, email, first_name, last_name, role, manager_id, department, avatar_url,
	points_balance, total_points_earned, recognition_count, monthly_points_allowance, monthly_points_spent,
	is_active, created_at, updated_at`

func (q *queries) SaveUser(ctx context.Context, u engine.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	var allowance sql.NullInt64
	if u.MonthlyPointsAllowance != nil {
		allowance = sql.NullInt64{Int64: int64(*u.MonthlyPointsAllowance), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.TenantID, u.ID, nullString(u.Email), u.FirstName, u.LastName, string(u.Role),
		nullString(u.ManagerID), nullString(u.Department), nullString(u.AvatarURL),
		u.PointsBalance, u.TotalPointsEarned, u.RecognitionCount, allowance, u.MonthlyPointsSpent,
		u.IsActive, formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, tenantID, id string) (*engine.User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND id = ?`, tenantID, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) FindUsers(ctx context.Context, tenantID string, ids []string) ([]engine.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{tenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	return q.queryUsers(ctx, query, args...)
}

func (q *queries) ListUsers(ctx context.Context, tenantID string, activeOnly bool) ([]engine.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	return q.queryUsers(ctx, query+` ORDER BY id`, tenantID)
}

func (q *queries) queryUsers(ctx context.Context, query string, args ...any) ([]engine.User, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row scanner) (engine.User, error) {
	var (
		u                                    engine.User
		role                                 string
		email, managerID, department, avatar sql.NullString
		allowance                            sql.NullInt64
		createdAt, updatedAt                 string
	)
	err := row.Scan(
		&u.TenantID, &u.ID, &email, &u.FirstName, &u.LastName, &role, &managerID, &department, &avatar,
		&u.PointsBalance, &u.TotalPointsEarned, &u.RecognitionCount, &allowance, &u.MonthlyPointsSpent,
		&u.IsActive, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return u, err
	}
	if err != nil {
		return u, fmt.Errorf("failed to scan user: %w", err)
	}
	// Legacy rows may carry aliases; anything unparseable is treated as employee.
	if r, perr := engine.ParseRole(role); perr == nil {
		u.Role = r
	} else {
		u.Role = engine.RoleEmployee
	}
	u.Email = email.String
	u.ManagerID = managerID.String
	u.Department = department.String
	u.AvatarURL = avatar.String
	if allowance.Valid {
		a := int(allowance.Int64)
		u.MonthlyPointsAllowance = &a
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, nil
}

func (q *queries) IncrementPoints(ctx context.Context, tenantID, userID string, inc engine.PointsIncrement) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users SET
			points_balance = points_balance + ?,
			total_points_earned = total_points_earned + ?,
			recognition_count = recognition_count + ?,
			updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`, inc.Balance, inc.TotalEarned, inc.RecognitionCount, formatTime(time.Now()), tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}
	if !ok {
		return engine.NotFound("user_not_found", "User not found.")
	}
	return nil
}

func (q *queries) DebitPoints(ctx context.Context, tenantID, userID string, points int) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users SET points_balance = points_balance - ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND points_balance >= ?
	`, points, formatTime(time.Now()), tenantID, userID, points)
	if err != nil {
		return false, fmt.Errorf("failed to debit points: %w", err)
	}
	return affected(res)
}

func (q *queries) IncrementMonthlySpent(ctx context.Context, tenantID, userID string, points int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET monthly_points_spent = monthly_points_spent + ? WHERE tenant_id = ? AND id = ?`,
		points, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to increment monthly spend: %w", err)
	}
	return nil
}

func (q *queries) ResetMonthlySpent(ctx context.Context, tenantID string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE users SET monthly_points_spent = 0 WHERE monthly_points_spent <> 0 AND (? = '' OR tenant_id = ?)`,
		tenantID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly spend: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

const recognitionColumns = `tenant_id, id, sender_id, recipient_ids, message, points_awarded, type,
	achievement_type, scope, is_public, status, approved_by, approved_at, sender_json, recipients_json,
	values_tags, reactions_json, created_at, updated_at`

func (q *queries) InsertRecognition(ctx context.Context, r engine.Recognition) error {
	recipientIDs, _ := json.Marshal(nonNil(r.RecipientIDs))
	sender, _ := json.Marshal(r.Sender)
	recipients, _ := json.Marshal(nonNil(r.Recipients))
	tags, _ := json.Marshal(nonNil(r.ValuesTags))
	reactions, _ := json.Marshal(nonNil(r.Reactions))

	names := []string{r.Sender.FullName()}
	for _, s := range r.Recipients {
		names = append(names, s.FullName())
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO recognitions (`+recognitionColumns+`, participant_names)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.TenantID, r.ID, r.SenderID, string(recipientIDs), r.Message, r.PointsAwarded, string(r.Type),
		nullString(r.AchievementType), string(r.Scope), r.IsPublic, string(r.Status),
		nullString(r.ApprovedBy), formatTimePtr(r.ApprovedAt), string(sender), string(recipients),
		string(tags), string(reactions), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		strings.Join(names, " "),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recognition: %w", err)
	}
	return nil
}

func (q *queries) GetRecognition(ctx context.Context, tenantID, id string) (*engine.Recognition, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+recognitionColumns+` FROM recognitions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	r, err := scanRecognition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) DeleteRecognition(ctx context.Context, tenantID, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM recognitions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete recognition: %w", err)
	}
	return nil
}

func (q *queries) TransitionRecognition(ctx context.Context, tenantID, id string, t engine.Transition) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recognitions SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`, string(t.To), nullString(t.ApprovedBy), formatTimePtr(t.ApprovedAt), formatTime(t.At),
		tenantID, id, string(t.From))
	if err != nil {
		return false, fmt.Errorf("failed to transition recognition: %w", err)
	}
	return affected(res)
}

func (q *queries) SetReactions(ctx context.Context, tenantID, id string, reactions []engine.Reaction) error {
	data, _ := json.Marshal(nonNil(reactions))
	_, err := q.db.ExecContext(ctx,
		`UPDATE recognitions SET reactions_json = ? WHERE tenant_id = ? AND id = ?`, string(data), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to set reactions: %w", err)
	}
	return nil
}

func (q *queries) QueryRecognitions(ctx context.Context, rq engine.RecognitionQuery) ([]engine.Recognition, error) {
	where := []string{"tenant_id = ?"}
	args := []any{rq.TenantID}

	if rq.PublicOnly {
		where = append(where, "is_public = 1")
	}
	if rq.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(rq.Status))
	}
	if rq.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(rq.Type))
	}
	if rq.ParticipantID != "" {
		received := "EXISTS (SELECT 1 FROM json_each(r.recipient_ids) WHERE value = ?)"
		switch rq.Direction {
		case engine.DirectionSent:
			where = append(where, "sender_id = ?")
			args = append(args, rq.ParticipantID)
		case engine.DirectionReceived:
			where = append(where, received)
			args = append(args, rq.ParticipantID)
		default:
			where = append(where, "(sender_id = ? OR "+received+")")
			args = append(args, rq.ParticipantID, rq.ParticipantID)
		}
	}
	if rq.ValueTag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(r.values_tags) WHERE value = ?)")
		args = append(args, rq.ValueTag)
	}
	if rq.Search != "" {
		where = append(where, `LOWER(message || ' ' || participant_names) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(rq.Search))+"%")
	}
	if rq.After != nil {
		at := formatTime(rq.After.CreatedAt)
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, at, at, rq.After.ID)
	}

	order := "created_at DESC, id DESC"
	if rq.OldestFirst {
		order = "created_at ASC, id ASC"
	}
	query := `SELECT ` + recognitionColumns + ` FROM recognitions AS r WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + order
	if rq.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, rq.Limit, rq.Offset)
	} else if rq.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, rq.Offset)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recognitions: %w", err)
	}
	defer rows.Close()

	var out []engine.Recognition
	for rows.Next() {
		r, err := scanRecognition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecognition(row scanner) (engine.Recognition, error) {
	var (
		r                                              engine.Recognition
		typ, scope, status                             string
		achievement, approvedBy, approvedAt            sql.NullString
		recipientIDs, sender, recipients, tags, reacts string
		createdAt, updatedAt                           string
	)
	err := row.Scan(
		&r.TenantID, &r.ID, &r.SenderID, &recipientIDs, &r.Message, &r.PointsAwarded, &typ,
		&achievement, &scope, &r.IsPublic, &status, &approvedBy, &approvedAt, &sender, &recipients,
		&tags, &reacts, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("failed to scan recognition: %w", err)
	}
	r.Type = engine.RecognitionType(typ)
	r.Scope = engine.Scope(scope)
	r.Status = engine.Status(status)
	r.AchievementType = achievement.String
	r.ApprovedBy = approvedBy.String
	r.ApprovedAt = parseTimePtr(approvedAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	for _, f := range []struct {
		raw string
		dst any
	}{
		{recipientIDs, &r.RecipientIDs},
		{sender, &r.Sender},
		{recipients, &r.Recipients},
		{tags, &r.ValuesTags},
		{reacts, &r.Reactions},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return r, fmt.Errorf("failed to decode recognition %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (q *queries) CountRecognitionsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recognitions WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, formatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count recognitions: %w", err)
	}
	return n, nil
}

func (q *queries) CountByRecipientDepartment(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT COALESCE(json_extract(j.value, '$.department'), ''), COUNT(*)
		FROM recognitions r, json_each(r.recipients_json) j
		WHERE r.tenant_id = ?
		GROUP BY 1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count departments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			dept string
			n    int
		)
		if err := rows.Scan(&dept, &n); err != nil {
			return nil, fmt.Errorf("failed to scan department count: %w", err)
		}
		out[dept] += n
	}
	return out, rows.Err()
}

// =============================================================================
// LEDGER
// =============================================================================

// AppendLedgerEntry is the only write on ledger_entries. No UPDATE, no DELETE.
func (q *queries) AppendLedgerEntry(ctx context.Context, e engine.LedgerEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, user_id, delta, reason, ref_type, ref_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.UserID, e.Delta, string(e.Reason), nullString(string(e.RefType)),
		nullString(e.RefID), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (q *queries) ListLedgerEntries(ctx context.Context, tenantID, userID string, limit int) ([]engine.LedgerEntry, error) {
	query := `
		SELECT id, tenant_id, user_id, delta, reason, ref_type, ref_id, created_at
		FROM ledger_entries
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY rowid DESC
	`
	args := []any{tenantID, userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []engine.LedgerEntry
	for rows.Next() {
		var (
			e              engine.LedgerEntry
			reason         string
			refType, refID sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Delta, &reason, &refType, &refID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reason = engine.LedgerReason(reason)
		e.RefType = engine.RefType(refType.String)
		e.RefID = refID.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *queries) NetDeltaByRefType(ctx context.Context, tenantID string) (map[engine.RefType]int, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT COALESCE(ref_type, ''), SUM(delta)
		FROM ledger_entries
		WHERE tenant_id = ?
		GROUP BY 1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.RefType]int)
	for rows.Next() {
		var (
			refType string
			sum     int
		)
		if err := rows.Scan(&refType, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan ledger sum: %w", err)
		}
		out[engine.RefType(refType)] = sum
	}
	return out, rows.Err()
}

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = `tenant_id, id, title, description, provider, points_required, availability,
	is_active, prices_json, created_at`

func (q *queries) SaveReward(ctx context.Context, r engine.Reward) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var prices sql.NullString
	if len(r.Prices) > 0 {
		data, err := json.Marshal(r.Prices)
		if err != nil {
			return fmt.Errorf("failed to encode prices: %w", err)
		}
		prices = sql.NullString{String: string(data), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TenantID, r.ID, r.Title, nullString(r.Description), string(r.Provider), r.PointsRequired,
		r.Availability, r.IsActive, prices, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

func (q *queries) GetReward(ctx context.Context, tenantID, id string) (*engine.Reward, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE tenant_id = ? AND id = ?`, tenantID, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListRewards(ctx context.Context, tenantID string, activeOnly bool) ([]engine.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY points_required, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var out []engine.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReward(row scanner) (engine.Reward, error) {
	var (
		r                   engine.Reward
		provider, createdAt string
		description, prices sql.NullString
	)
	err := row.Scan(&r.TenantID, &r.ID, &r.Title, &description, &provider, &r.PointsRequired,
		&r.Availability, &r.IsActive, &prices, &createdAt)
	if err == sql.ErrNoRows {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("failed to scan reward: %w", err)
	}
	r.Description = description.String
	r.Provider = engine.Provider(provider)
	r.CreatedAt = parseTime(createdAt)
	if prices.Valid && prices.String != "" {
		r.Prices = make(map[string]decimal.Decimal)
		if err := json.Unmarshal([]byte(prices.String), &r.Prices); err != nil {
			return r, fmt.Errorf("failed to decode prices for %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (q *queries) DecrementAvailability(ctx context.Context, tenantID, rewardID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE rewards SET availability = availability - 1
		WHERE tenant_id = ? AND id = ? AND availability > 0
	`, tenantID, rewardID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement availability: %w", err)
	}
	return affected(res)
}

func (q *queries) IncrementAvailability(ctx context.Context, tenantID, rewardID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE rewards SET availability = availability + 1 WHERE tenant_id = ? AND id = ?`, tenantID, rewardID)
	if err != nil {
		return fmt.Errorf("failed to increment availability: %w", err)
	}
	return nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

const redemptionColumns = `tenant_id, id, user_id, reward_id, reward_title, points_used, provider, status,
	tracking_number, fulfillment_code, redeemed_at, fulfilled_at, delivered_at`

func (q *queries) InsertRedemption(ctx context.Context, r engine.Redemption) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TenantID, r.ID, r.UserID, r.RewardID, nullString(r.RewardTitle), r.PointsUsed, string(r.Provider),
		string(r.Status), nullString(r.TrackingNumber), nullString(r.FulfillmentCode),
		formatTime(r.RedeemedAt), formatTimePtr(r.FulfilledAt), formatTimePtr(r.DeliveredAt))
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	return nil
}

func (q *queries) GetRedemption(ctx context.Context, tenantID, id string) (*engine.Redemption, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) UpdateRedemption(ctx context.Context, r engine.Redemption) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE redemptions SET status = ?, tracking_number = ?, fulfillment_code = ?,
			fulfilled_at = ?, delivered_at = ?
		WHERE tenant_id = ? AND id = ?
	`, string(r.Status), nullString(r.TrackingNumber), nullString(r.FulfillmentCode),
		formatTimePtr(r.FulfilledAt), formatTimePtr(r.DeliveredAt), r.TenantID, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update redemption: %w", err)
	}
	return nil
}

func (q *queries) ListRedemptions(ctx context.Context, rq engine.RedemptionQuery) ([]engine.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE tenant_id = ?`
	args := []any{rq.TenantID}
	if rq.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, rq.UserID)
	}
	if rq.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(rq.Status))
	}
	if rq.OldestFirst {
		query += ` ORDER BY redeemed_at ASC, id ASC`
	} else {
		query += ` ORDER BY redeemed_at DESC, id DESC`
	}
	if rq.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, rq.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var out []engine.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRedemption(row scanner) (engine.Redemption, error) {
	var (
		r                            engine.Redemption
		provider, status, redeemedAt string
		title, tracking, code        sql.NullString
		fulfilledAt, deliveredAt     sql.NullString
	)
	err := row.Scan(&r.TenantID, &r.ID, &r.UserID, &r.RewardID, &title, &r.PointsUsed, &provider, &status,
		&tracking, &code, &redeemedAt, &fulfilledAt, &deliveredAt)
	if err == sql.ErrNoRows {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("failed to scan redemption: %w", err)
	}
	r.RewardTitle = title.String
	r.Provider = engine.Provider(provider)
	r.Status = engine.RedemptionStatus(status)
	r.TrackingNumber = tracking.String
	r.FulfillmentCode = code.String
	r.RedeemedAt = parseTime(redeemedAt)
	r.FulfilledAt = parseTimePtr(fulfilledAt)
	r.DeliveredAt = parseTimePtr(deliveredAt)
	return r, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (q *queries) AppendAudit(ctx context.Context, e engine.AuditEntry) error {
	diff, _ := json.Marshal(e.Diff)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, actor_id, action, entity_type, entity_id, diff_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.ActorID, string(e.Action), e.EntityType, e.EntityID, string(diff), formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q *queries) ListAudit(ctx context.Context, tenantID string, limit int) ([]engine.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, actor_id, action, entity_type, entity_id, diff_json, timestamp
		FROM audit_logs WHERE tenant_id = ?
		ORDER BY timestamp DESC, rowid DESC
	`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []engine.AuditEntry
	for rows.Next() {
		var (
			e         engine.AuditEntry
			action    string
			diff      sql.NullString
			timestamp string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &action, &e.EntityType, &e.EntityID, &diff, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = engine.AuditAction(action)
		e.Timestamp = parseTime(timestamp)
		if diff.Valid && diff.String != "" && diff.String != "null" {
			json.Unmarshal([]byte(diff.String), &e.Diff)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// nonNil keeps JSON columns as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var (
	_ engine.Store   = (*queries)(nil)
	_ engine.TxStore = (*Store)(nil)
)
