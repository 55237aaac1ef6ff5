package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"norvia-broker/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = time.Second

type Handler struct {
	pool      *pgxpool.Pool
	redis     *redis.Client
	startedAt time.Time
}

func NewHandler(pool *pgxpool.Pool, rdb *redis.Client, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, redis: rdb, startedAt: start}
}

type dependency struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	UptimeSec  int64       `json:"uptime_sec"`
	Goroutines int         `json:"goroutines"`
	Database   dependency  `json:"database"`
	Redis      *dependency `json:"redis,omitempty"`
	Pool       *poolStats  `json:"pool,omitempty"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func ping(ctx context.Context, fn func(context.Context) error) dependency {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	err := fn(ctx)
	d := dependency{PingMs: time.Since(start).Milliseconds(), Reachable: err == nil}
	if err != nil {
		d.Error = err.Error()
	}
	return d
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"timestamp":  now.Format(time.RFC3339),
		"uptime_sec": int64(now.Sub(h.startedAt).Seconds()),
	})
}

// Ready pings the database and, when configured, Redis. Only the database gates readiness;
// the rate limiter fails open without Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	resp := readinessResponse{
		Status:     "ok",
		Timestamp:  now.Format(time.RFC3339),
		UptimeSec:  int64(now.Sub(h.startedAt).Seconds()),
		Goroutines: runtime.NumGoroutine(),
	}
	if h.pool != nil {
		resp.Database = ping(r.Context(), h.pool.Ping)
		stat := h.pool.Stat()
		resp.Pool = &poolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
		}
	} else {
		resp.Database = dependency{Error: "pool is not configured"}
	}
	if h.redis != nil {
		d := ping(r.Context(), func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
		resp.Redis = &d
	}
	status := http.StatusOK
	if !resp.Database.Reachable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
