package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks. Each query selects violating rows; an
// empty result means the invariant held at the time of the snapshot.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_latest_attachment",
			SQL: `SELECT dispute_id, COUNT(*) FROM attachments
                  WHERE is_latest GROUP BY dispute_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_stage_matches_replayed_history",
			SQL: `WITH tip AS (
                      SELECT DISTINCT ON (dispute_id) dispute_id, new_stage
                      FROM dispute_history ORDER BY dispute_id, recorded_at DESC, id DESC)
                  SELECT d.id, d.current_stage, t.new_stage FROM disputes d
                  JOIN tip t ON t.dispute_id = d.id
                  WHERE d.current_stage <> t.new_stage`,
		},
		{
			Name: "O3_history_chain_contiguous",
			SQL: `WITH chained AS (
                      SELECT id, dispute_id, previous_stage, new_stage,
                             LAG(new_stage) OVER (PARTITION BY dispute_id ORDER BY recorded_at, id) AS prior
                      FROM dispute_history)
                  SELECT * FROM chained
                  WHERE (prior IS NULL AND previous_stage IS NOT NULL)
                     OR (prior IS NOT NULL AND previous_stage IS DISTINCT FROM prior)`,
		},
		{
			Name: "O4_no_unassigned_dispute",
			SQL:  `SELECT id FROM disputes WHERE assigned_analyst_id IS NULL`,
		},
		{
			Name: "O5_no_dispute_without_history",
			SQL: `SELECT d.id FROM disputes d
                  LEFT JOIN dispute_history h ON h.dispute_id = d.id
                  WHERE h.id IS NULL`,
		},
		{
			Name: "O6_rejection_has_feedback",
			SQL: `SELECT h.id, h.dispute_id FROM dispute_history h
                  LEFT JOIN reject_feedbacks f ON f.history_entry_id = h.id
                  WHERE h.new_stage = 'rejected' AND f.id IS NULL`,
		},
		{
			Name: "O7_no_history_after_closed",
			SQL: `WITH closed AS (
                      SELECT dispute_id, MIN(id) AS closed_id
                      FROM dispute_history WHERE new_stage = 'closed' GROUP BY dispute_id)
                  SELECT h.* FROM dispute_history h
                  JOIN closed c ON c.dispute_id = h.dispute_id
                  WHERE h.id > c.closed_id`,
		},
		{
			Name: "O8_cursor_points_within_merchant_role",
			SQL: `SELECT c.merchant_id, c.staff_role, c.last_assigned_staff_id FROM staff_assignment_cursors c
                  JOIN staff s ON s.id = c.last_assigned_staff_id
                  WHERE s.merchant_id <> c.merchant_id OR s.role <> c.staff_role`,
		},
		{
			Name: "O9_outbox_liveness",
			SQL: `SELECT id, kind, attempts FROM notifications
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O10_history_delete_guard",
			SQL: `SELECT 'missing_no_rewrite_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_rewrite_dispute_history')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
