package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check is a named dependency probe reported by the health endpoint.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// VectorExtensionCheck verifies the pgvector extension is installed.
func VectorExtensionCheck(q Queryable) Check {
	return Check{
		Name: "pgvector",
		Fn: func(ctx context.Context) error {
			var one int
			return q.QueryRow(ctx, `SELECT 1 FROM pg_extension WHERE extname = 'vector'`).Scan(&one)
		},
	}
}

// RunChecks runs each check and returns "ok" or the error text per check name,
// plus whether all of them passed.
func RunChecks(ctx context.Context, checks []Check) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for _, ch := range checks {
		if err := ch.Fn(ctx); err != nil {
			results[ch.Name] = err.Error()
			healthy = false
			continue
		}
		results[ch.Name] = "ok"
	}
	return results, healthy
}

// HealthHandler pings the database, runs the extra checks and reports pool stats.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		all := append([]Check{{Name: "ping", Fn: pool.Ping}}, checks...)
		results, healthy := RunChecks(ctx, all)
		stats := GetPoolStats(pool)

		if !healthy {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"checks": results,
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"checks": results,
			"pool":   stats,
		})
	}
}
