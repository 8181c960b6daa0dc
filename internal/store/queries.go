package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(r rowScanner) (Agent, error) {
	var (
		a         Agent
		status    string
		task      sql.NullString
		updatedAt int64
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Emoji, &a.Role, &a.Model, &status, &task, &updatedAt); err != nil {
		return Agent{}, err
	}
	a.Status = AgentStatus(status)
	if task.Valid {
		t := task.String
		a.CurrentTask = &t
	}
	a.UpdatedAt = FromNanos(updatedAt)
	return a, nil
}

func scanActivity(r rowScanner) (Activity, error) {
	var (
		a    Activity
		typ  string
		meta string
		ts   int64
	)
	if err := r.Scan(&a.ID, &a.AgentID, &typ, &a.Description, &meta, &ts); err != nil {
		return Activity{}, err
	}
	a.Type = ActivityType(typ)
	a.Metadata = DecodeMetadata(meta)
	a.Timestamp = FromNanos(ts)
	return a, nil
}

func scanReview(r rowScanner) (Review, error) {
	var (
		rv         Review
		priority   string
		status     string
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	if err := r.Scan(&rv.ID, &rv.AgentID, &rv.Question, &priority, &status, &createdAt, &resolvedAt); err != nil {
		return Review{}, err
	}
	rv.Priority = Priority(priority)
	rv.Status = ReviewStatus(status)
	rv.CreatedAt = FromNanos(createdAt)
	if resolvedAt.Valid {
		t := FromNanos(resolvedAt.Int64)
		rv.ResolvedAt = &t
	}
	return rv, nil
}

// write runs fn in one transaction while holding the write lock.
func (s *sqliteStore) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return StorageError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return StorageError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return StorageError(op, err)
	}
	return nil
}

func txAgent(ctx context.Context, tx *sql.Tx, id string) (Agent, error) {
	a, err := scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, AgentNotFound(id)
	}
	return a, err
}

// insertActivity appends one record, touches the owner's updated_at, and trims retention.
// The caller has validated a and checked that the agent exists.
func (s *sqliteStore) insertActivity(ctx context.Context, tx *sql.Tx, a NewActivity) (Activity, error) {
	meta, err := EncodeMetadata(a.Metadata)
	if err != nil {
		return Activity{}, err
	}
	ts := s.clock.Next()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO activities(agent_id, type, description, metadata, timestamp) VALUES(?, ?, ?, ?, ?)`,
		a.AgentID, string(a.Type), a.Description, meta, ToNanos(ts))
	if err != nil {
		return Activity{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Activity{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET updated_at = MAX(updated_at, ?) WHERE id = ?`, ToNanos(ts), a.AgentID); err != nil {
		return Activity{}, err
	}
	if err := s.trimRetention(ctx, tx, a.AgentID); err != nil {
		return Activity{}, err
	}
	return Activity{
		ID:          id,
		AgentID:     a.AgentID,
		Type:        a.Type,
		Description: a.Description,
		Metadata:    a.Metadata,
		Timestamp:   ts,
	}, nil
}

// trimRetention evicts the oldest records by (timestamp, id) beyond the per-agent and global bounds.
func (s *sqliteStore) trimRetention(ctx context.Context, tx *sql.Tx, agentID string) error {
	if _, err := tx.ExecContext(ctx, `
DELETE FROM activities
WHERE agent_id = ? AND id NOT IN (
  SELECT id FROM activities WHERE agent_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
)`, agentID, agentID, s.opts.PerAgentRetention); err != nil {
		return fmt.Errorf("trim agent retention: %w", err)
	}
	if s.opts.GlobalRetention > 0 {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM activities
WHERE id NOT IN (
  SELECT id FROM activities ORDER BY timestamp DESC, id DESC LIMIT ?
)`, s.opts.GlobalRetention); err != nil {
			return fmt.Errorf("trim global retention: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) CreateAgent(ctx context.Context, in NewAgent) (Agent, error) {
	in, err := ValidateNewAgent(in)
	if err != nil {
		return Agent{}, err
	}
	var out Agent
	err = s.write(ctx, "create agent", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, in.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: agent %q already exists", ErrConflict, in.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		ts := s.clock.Next()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents(id, name, emoji, role, model, status, current_task, updated_at) VALUES(?, ?, ?, ?, ?, 'idle', NULL, ?)`,
			in.ID, in.Name, in.Emoji, in.Role, in.Model, ToNanos(ts)); err != nil {
			return err
		}
		out = Agent{ID: in.ID, Name: in.Name, Emoji: in.Emoji, Role: in.Role, Model: in.Model, Status: StatusIdle, UpdatedAt: ts}
		return nil
	})
	return out, err
}

func (s *sqliteStore) SeedFleet(ctx context.Context, agents []NewAgent) error {
	for _, a := range agents {
		if _, err := s.CreateAgent(ctx, a); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) LogActivity(ctx context.Context, in NewActivity) (Activity, error) {
	in, err := ValidateNewActivity(in)
	if err != nil {
		return Activity{}, err
	}
	var out Activity
	err = s.write(ctx, "log activity", func(tx *sql.Tx) error {
		if _, err := txAgent(ctx, tx, in.AgentID); err != nil {
			return err
		}
		out, err = s.insertActivity(ctx, tx, in)
		return err
	})
	return out, err
}

func (s *sqliteStore) UpdateAgentTask(ctx context.Context, agentID, task string) (Agent, Activity, error) {
	task, err := ValidateTask(task)
	if err != nil {
		return Agent{}, Activity{}, err
	}
	var (
		agent Agent
		act   Activity
	)
	err = s.write(ctx, "update agent task", func(tx *sql.Tx) error {
		if _, err := txAgent(ctx, tx, agentID); err != nil {
			return err
		}
		ts := s.clock.Next()
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET current_task = ?, status = 'active', updated_at = MAX(updated_at, ?) WHERE id = ?`,
			task, ToNanos(ts), agentID); err != nil {
			return err
		}
		if act, err = s.insertActivity(ctx, tx, TaskActivity(agentID, task)); err != nil {
			return err
		}
		agent, err = txAgent(ctx, tx, agentID)
		return err
	})
	return agent, act, err
}

func (s *sqliteStore) UpdateAgentStatus(ctx context.Context, agentID string, status AgentStatus) (Agent, Activity, error) {
	status, err := ParseAgentStatus(string(status))
	if err != nil {
		return Agent{}, Activity{}, err
	}
	var (
		agent Agent
		act   Activity
	)
	err = s.write(ctx, "update agent status", func(tx *sql.Tx) error {
		prev, err := txAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		ts := s.clock.Next()
		// Going idle clears the current task.
		q := `UPDATE agents SET status = ?, updated_at = MAX(updated_at, ?) WHERE id = ?`
		if status == StatusIdle {
			q = `UPDATE agents SET status = ?, current_task = NULL, updated_at = MAX(updated_at, ?) WHERE id = ?`
		}
		if _, err := tx.ExecContext(ctx, q, string(status), ToNanos(ts), agentID); err != nil {
			return err
		}
		if act, err = s.insertActivity(ctx, tx, StatusActivity(agentID, prev.Status, status)); err != nil {
			return err
		}
		agent, err = txAgent(ctx, tx, agentID)
		return err
	})
	return agent, act, err
}

func (s *sqliteStore) AddReview(ctx context.Context, in NewReview) (Review, Activity, error) {
	in, err := ValidateNewReview(in)
	if err != nil {
		return Review{}, Activity{}, err
	}
	var (
		rv  Review
		act Activity
	)
	err = s.write(ctx, "add review", func(tx *sql.Tx) error {
		if _, err := txAgent(ctx, tx, in.AgentID); err != nil {
			return err
		}
		ts := s.clock.Next()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reviews(agent_id, question, priority, status, created_at) VALUES(?, ?, ?, 'pending', ?)`,
			in.AgentID, in.Question, string(in.Priority), ToNanos(ts))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rv = Review{ID: id, AgentID: in.AgentID, Question: in.Question, Priority: in.Priority, Status: ReviewPending, CreatedAt: ts}
		act, err = s.insertActivity(ctx, tx, ReviewCreatedActivity(rv))
		return err
	})
	return rv, act, err
}

func (s *sqliteStore) ResolveReview(ctx context.Context, reviewID int64) (Review, Activity, error) {
	var (
		rv  Review
		act Activity
	)
	err := s.write(ctx, "resolve review", func(tx *sql.Tx) error {
		ts := s.clock.Next()
		res, err := tx.ExecContext(ctx,
			`UPDATE reviews SET status = 'resolved', resolved_at = ? WHERE id = ? AND status = 'pending'`,
			ToNanos(ts), reviewID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM reviews WHERE id = ?`, reviewID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return ReviewNotFound(reviewID)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("review %d: %w", reviewID, ErrAlreadyResolved)
		}
		rv, err = scanReview(tx.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, reviewID))
		if err != nil {
			return err
		}
		act, err = s.insertActivity(ctx, tx, ReviewResolvedActivity(rv))
		return err
	})
	return rv, act, err
}

func collectAgents(rows *sql.Rows, op string) ([]Agent, error) {
	defer func() { _ = rows.Close() }()
	out := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, StorageError(op, err)
		}
		out = append(out, a)
	}
	return out, StorageError(op, rows.Err())
}

func collectReviews(rows *sql.Rows, op string) ([]Review, error) {
	defer func() { _ = rows.Close() }()
	out := []Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, StorageError(op, err)
		}
		out = append(out, r)
	}
	return out, StorageError(op, rows.Err())
}

func (s *sqliteStore) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.stmtListAgents.QueryContext(ctx)
	if err != nil {
		return nil, StorageError("list agents", err)
	}
	return collectAgents(rows, "list agents")
}

func (s *sqliteStore) GetAgent(ctx context.Context, id string) (Agent, error) {
	a, err := scanAgent(s.stmtGetAgent.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, AgentNotFound(id)
	}
	if err != nil {
		return Agent{}, StorageError("get agent", err)
	}
	return a, nil
}

func collectActivities(rows *sql.Rows, op string) ([]Activity, error) {
	defer func() { _ = rows.Close() }()
	out := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, StorageError(op, err)
		}
		out = append(out, a)
	}
	return out, StorageError(op, rows.Err())
}

func (s *sqliteStore) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	rows, err := s.stmtRecentActivities.QueryContext(ctx, s.opts.Limit(limit))
	if err != nil {
		return nil, StorageError("recent activities", err)
	}
	return collectActivities(rows, "recent activities")
}

func (s *sqliteStore) AgentActivities(ctx context.Context, agentID string, limit int) ([]Activity, error) {
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	rows, err := s.stmtAgentActivities.QueryContext(ctx, agentID, s.opts.Limit(limit))
	if err != nil {
		return nil, StorageError("agent activities", err)
	}
	return collectActivities(rows, "agent activities")
}

func (s *sqliteStore) PendingReviews(ctx context.Context) ([]Review, error) {
	rows, err := s.stmtPendingReviews.QueryContext(ctx)
	if err != nil {
		return nil, StorageError("pending reviews", err)
	}
	return collectReviews(rows, "pending reviews")
}

// Projections runs the three reads inside one transaction. In WAL mode that pins a single
// database snapshot, so a write committing midway is either wholly visible or not at all.
func (s *sqliteStore) Projections(ctx context.Context, limit int) (Projections, error) {
	const op = "projections"
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Projections{}, StorageError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var p Projections
	rows, err := tx.StmtContext(ctx, s.stmtListAgents).QueryContext(ctx)
	if err != nil {
		return Projections{}, StorageError(op, err)
	}
	if p.Agents, err = collectAgents(rows, op); err != nil {
		return Projections{}, err
	}
	rows, err = tx.StmtContext(ctx, s.stmtPendingReviews).QueryContext(ctx)
	if err != nil {
		return Projections{}, StorageError(op, err)
	}
	if p.Reviews, err = collectReviews(rows, op); err != nil {
		return Projections{}, err
	}
	rows, err = tx.StmtContext(ctx, s.stmtRecentActivities).QueryContext(ctx, s.opts.Limit(limit))
	if err != nil {
		return Projections{}, StorageError(op, err)
	}
	if p.Activities, err = collectActivities(rows, op); err != nil {
		return Projections{}, err
	}
	return p, nil
}

func (s *sqliteStore) GetReview(ctx context.Context, id int64) (Review, error) {
	r, err := scanReview(s.stmtGetReview.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Review{}, ReviewNotFound(id)
	}
	if err != nil {
		return Review{}, StorageError("get review", err)
	}
	return r, nil
}
