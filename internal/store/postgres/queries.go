package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/buppyai/puppy-station/internal/store"
	"github.com/jackc/pgx/v5"
)

const (
	agentColumns    = `id, name, emoji, role, model, status, current_task, updated_at`
	activityColumns = `id, agent_id, type, description, metadata::text, timestamp`
	reviewColumns   = `id, agent_id, question, priority, status, created_at, resolved_at`
)

func scanAgent(r pgx.Row) (store.Agent, error) {
	var (
		a         store.Agent
		status    string
		updatedAt int64
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Emoji, &a.Role, &a.Model, &status, &a.CurrentTask, &updatedAt); err != nil {
		return store.Agent{}, err
	}
	a.Status = store.AgentStatus(status)
	a.UpdatedAt = store.FromNanos(updatedAt)
	return a, nil
}

func scanActivity(r pgx.Row) (store.Activity, error) {
	var (
		a    store.Activity
		typ  string
		meta string
		ts   int64
	)
	if err := r.Scan(&a.ID, &a.AgentID, &typ, &a.Description, &meta, &ts); err != nil {
		return store.Activity{}, err
	}
	a.Type = store.ActivityType(typ)
	a.Metadata = store.DecodeMetadata(meta)
	a.Timestamp = store.FromNanos(ts)
	return a, nil
}

func scanReview(r pgx.Row) (store.Review, error) {
	var (
		rv         store.Review
		priority   string
		status     string
		createdAt  int64
		resolvedAt *int64
	)
	if err := r.Scan(&rv.ID, &rv.AgentID, &rv.Question, &priority, &status, &createdAt, &resolvedAt); err != nil {
		return store.Review{}, err
	}
	rv.Priority = store.Priority(priority)
	rv.Status = store.ReviewStatus(status)
	rv.CreatedAt = store.FromNanos(createdAt)
	if resolvedAt != nil {
		t := store.FromNanos(*resolvedAt)
		rv.ResolvedAt = &t
	}
	return rv, nil
}

func (s *Store) write(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return store.StorageError(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return store.StorageError(op, err)
	}
	return store.StorageError(op, tx.Commit(ctx))
}

func txAgent(ctx context.Context, tx pgx.Tx, id string) (store.Agent, error) {
	a, err := scanAgent(tx.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Agent{}, store.AgentNotFound(id)
	}
	return a, err
}

func (s *Store) insertActivity(ctx context.Context, tx pgx.Tx, a store.NewActivity) (store.Activity, error) {
	meta, err := store.EncodeMetadata(a.Metadata)
	if err != nil {
		return store.Activity{}, err
	}
	ts := s.clock.Next()
	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO activities(agent_id, type, description, metadata, timestamp) VALUES($1, $2, $3, $4::jsonb, $5) RETURNING id`,
		a.AgentID, string(a.Type), a.Description, meta, store.ToNanos(ts)).Scan(&id); err != nil {
		return store.Activity{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE agents SET updated_at = GREATEST(updated_at, $1) WHERE id = $2`, store.ToNanos(ts), a.AgentID); err != nil {
		return store.Activity{}, err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM activities
WHERE agent_id = $1 AND id NOT IN (
  SELECT id FROM activities WHERE agent_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2
)`, a.AgentID, s.opts.PerAgentRetention); err != nil {
		return store.Activity{}, fmt.Errorf("trim agent retention: %w", err)
	}
	if s.opts.GlobalRetention > 0 {
		if _, err := tx.Exec(ctx, `
DELETE FROM activities
WHERE id NOT IN (SELECT id FROM activities ORDER BY timestamp DESC, id DESC LIMIT $1)`, s.opts.GlobalRetention); err != nil {
			return store.Activity{}, fmt.Errorf("trim global retention: %w", err)
		}
	}
	return store.Activity{ID: id, AgentID: a.AgentID, Type: a.Type, Description: a.Description, Metadata: a.Metadata, Timestamp: ts}, nil
}

func (s *Store) CreateAgent(ctx context.Context, in store.NewAgent) (store.Agent, error) {
	in, err := store.ValidateNewAgent(in)
	if err != nil {
		return store.Agent{}, err
	}
	var out store.Agent
	err = s.write(ctx, "create agent", func(tx pgx.Tx) error {
		ts := s.clock.Next()
		tag, err := tx.Exec(ctx,
			`INSERT INTO agents(id, name, emoji, role, model, status, current_task, updated_at) VALUES($1, $2, $3, $4, $5, 'idle', NULL, $6) ON CONFLICT (id) DO NOTHING`,
			in.ID, in.Name, in.Emoji, in.Role, in.Model, store.ToNanos(ts))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: agent %q already exists", store.ErrConflict, in.ID)
		}
		out = store.Agent{ID: in.ID, Name: in.Name, Emoji: in.Emoji, Role: in.Role, Model: in.Model, Status: store.StatusIdle, UpdatedAt: ts}
		return nil
	})
	return out, err
}

func (s *Store) SeedFleet(ctx context.Context, agents []store.NewAgent) error {
	for _, a := range agents {
		if _, err := s.CreateAgent(ctx, a); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return nil
}

func (s *Store) LogActivity(ctx context.Context, in store.NewActivity) (store.Activity, error) {
	in, err := store.ValidateNewActivity(in)
	if err != nil {
		return store.Activity{}, err
	}
	var out store.Activity
	err = s.write(ctx, "log activity", func(tx pgx.Tx) error {
		if _, err := txAgent(ctx, tx, in.AgentID); err != nil {
			return err
		}
		out, err = s.insertActivity(ctx, tx, in)
		return err
	})
	return out, err
}

func (s *Store) UpdateAgentTask(ctx context.Context, agentID, task string) (store.Agent, store.Activity, error) {
	task, err := store.ValidateTask(task)
	if err != nil {
		return store.Agent{}, store.Activity{}, err
	}
	var (
		agent store.Agent
		act   store.Activity
	)
	err = s.write(ctx, "update agent task", func(tx pgx.Tx) error {
		if _, err := txAgent(ctx, tx, agentID); err != nil {
			return err
		}
		ts := s.clock.Next()
		if _, err := tx.Exec(ctx,
			`UPDATE agents SET current_task = $1, status = 'active', updated_at = GREATEST(updated_at, $2) WHERE id = $3`,
			task, store.ToNanos(ts), agentID); err != nil {
			return err
		}
		if act, err = s.insertActivity(ctx, tx, store.TaskActivity(agentID, task)); err != nil {
			return err
		}
		agent, err = txAgent(ctx, tx, agentID)
		return err
	})
	return agent, act, err
}

func (s *Store) UpdateAgentStatus(ctx context.Context, agentID string, status store.AgentStatus) (store.Agent, store.Activity, error) {
	status, err := store.ParseAgentStatus(string(status))
	if err != nil {
		return store.Agent{}, store.Activity{}, err
	}
	var (
		agent store.Agent
		act   store.Activity
	)
	err = s.write(ctx, "update agent status", func(tx pgx.Tx) error {
		prev, err := txAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		ts := s.clock.Next()
		q := `UPDATE agents SET status = $1, updated_at = GREATEST(updated_at, $2) WHERE id = $3`
		if status == store.StatusIdle {
			q = `UPDATE agents SET status = $1, current_task = NULL, updated_at = GREATEST(updated_at, $2) WHERE id = $3`
		}
		if _, err := tx.Exec(ctx, q, string(status), store.ToNanos(ts), agentID); err != nil {
			return err
		}
		if act, err = s.insertActivity(ctx, tx, store.StatusActivity(agentID, prev.Status, status)); err != nil {
			return err
		}
		agent, err = txAgent(ctx, tx, agentID)
		return err
	})
	return agent, act, err
}

func (s *Store) AddReview(ctx context.Context, in store.NewReview) (store.Review, store.Activity, error) {
	in, err := store.ValidateNewReview(in)
	if err != nil {
		return store.Review{}, store.Activity{}, err
	}
	var (
		rv  store.Review
		act store.Activity
	)
	err = s.write(ctx, "add review", func(tx pgx.Tx) error {
		if _, err := txAgent(ctx, tx, in.AgentID); err != nil {
			return err
		}
		ts := s.clock.Next()
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO reviews(agent_id, question, priority, status, created_at) VALUES($1, $2, $3, 'pending', $4) RETURNING id`,
			in.AgentID, in.Question, string(in.Priority), store.ToNanos(ts)).Scan(&id); err != nil {
			return err
		}
		rv = store.Review{ID: id, AgentID: in.AgentID, Question: in.Question, Priority: in.Priority, Status: store.ReviewPending, CreatedAt: ts}
		act, err = s.insertActivity(ctx, tx, store.ReviewCreatedActivity(rv))
		return err
	})
	return rv, act, err
}

func (s *Store) ResolveReview(ctx context.Context, reviewID int64) (store.Review, store.Activity, error) {
	var (
		rv  store.Review
		act store.Activity
	)
	err := s.write(ctx, "resolve review", func(tx pgx.Tx) error {
		ts := s.clock.Next()
		var err error
		rv, err = scanReview(tx.QueryRow(ctx,
			`UPDATE reviews SET status = 'resolved', resolved_at = $1 WHERE id = $2 AND status = 'pending' RETURNING `+reviewColumns,
			store.ToNanos(ts), reviewID))
		if errors.Is(err, pgx.ErrNoRows) {
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM reviews WHERE id = $1`, reviewID).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ReviewNotFound(reviewID)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("review %d: %w", reviewID, store.ErrAlreadyResolved)
		}
		if err != nil {
			return err
		}
		act, err = s.insertActivity(ctx, tx, store.ReviewResolvedActivity(rv))
		return err
	})
	return rv, act, err
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	listAgentsSQL     = `SELECT ` + agentColumns + ` FROM agents ORDER BY name ASC, id ASC`
	pendingReviewsSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE status = 'pending' ORDER BY ` + store.PriorityRankSQL + ` ASC, created_at DESC, id DESC`
	recentActivitySQL = `SELECT ` + activityColumns + ` FROM activities ORDER BY timestamp DESC, id DESC LIMIT $1`
)

func listAgents(ctx context.Context, q querier, op string) ([]store.Agent, error) {
	rows, err := q.Query(ctx, listAgentsSQL)
	if err != nil {
		return nil, store.StorageError(op, err)
	}
	defer rows.Close()
	out := []store.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, store.StorageError(op, err)
		}
		out = append(out, a)
	}
	return out, store.StorageError(op, rows.Err())
}

func pendingReviews(ctx context.Context, q querier, op string) ([]store.Review, error) {
	rows, err := q.Query(ctx, pendingReviewsSQL)
	if err != nil {
		return nil, store.StorageError(op, err)
	}
	defer rows.Close()
	out := []store.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, store.StorageError(op, err)
		}
		out = append(out, r)
	}
	return out, store.StorageError(op, rows.Err())
}

func queryActivities(ctx context.Context, q querier, op, sql string, args ...any) ([]store.Activity, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.StorageError(op, err)
	}
	defer rows.Close()
	out := []store.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, store.StorageError(op, err)
		}
		out = append(out, a)
	}
	return out, store.StorageError(op, rows.Err())
}

func (s *Store) ListAgents(ctx context.Context) ([]store.Agent, error) {
	return listAgents(ctx, s.Pool, "list agents")
}

func (s *Store) GetAgent(ctx context.Context, id string) (store.Agent, error) {
	a, err := scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Agent{}, store.AgentNotFound(id)
	}
	return a, store.StorageError("get agent", err)
}

func (s *Store) RecentActivities(ctx context.Context, limit int) ([]store.Activity, error) {
	return queryActivities(ctx, s.Pool, "recent activities", recentActivitySQL, s.opts.Limit(limit))
}

func (s *Store) AgentActivities(ctx context.Context, agentID string, limit int) ([]store.Activity, error) {
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return queryActivities(ctx, s.Pool, "agent activities",
		`SELECT `+activityColumns+` FROM activities WHERE agent_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`, agentID, s.opts.Limit(limit))
}

func (s *Store) PendingReviews(ctx context.Context) ([]store.Review, error) {
	return pendingReviews(ctx, s.Pool, "pending reviews")
}

// Projections reads under one REPEATABLE READ, read-only transaction so all three queries see
// the same committed state.
func (s *Store) Projections(ctx context.Context, limit int) (store.Projections, error) {
	const op = "projections"
	var p store.Projections
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		if p.Agents, err = listAgents(ctx, tx, op); err != nil {
			return err
		}
		if p.Reviews, err = pendingReviews(ctx, tx, op); err != nil {
			return err
		}
		p.Activities, err = queryActivities(ctx, tx, op, recentActivitySQL, s.opts.Limit(limit))
		return err
	})
	if err != nil {
		return store.Projections{}, store.StorageError(op, err)
	}
	return p, nil
}

func (s *Store) GetReview(ctx context.Context, id int64) (store.Review, error) {
	r, err := scanReview(s.Pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Review{}, store.ReviewNotFound(id)
	}
	return r, store.StorageError("get review", err)
}
