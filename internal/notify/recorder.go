package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder keeps the in-app notification feed and the append-only activity log.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func (r *Recorder) Notify(ctx context.Context, n Notice) error {
	if n.UserID == "" {
		return nil
	}
	batch := []struct {
		sql  string
		args []any
	}{
		{"insert into activities (user_id, title, body) values ($1, $2, $3)", []any{n.UserID, n.Title, n.Body}},
		{"insert into notifications (user_id, title, body, level) values ($1, $2, $3, $4)", []any{n.UserID, n.Title, n.Body, string(n.Level)}},
	}
	for _, q := range batch {
		if _, err := r.pool.Exec(ctx, q.sql, q.args...); err != nil {
			return err
		}
	}
	return nil
}

type Notification struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Level     string `json:"level"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func (r *Recorder) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		select id, title, body, level, read, to_char(created_at at time zone 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		from notifications
		where user_id = $1
		order by id desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.Level, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
