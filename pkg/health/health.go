package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check represents a single health check
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthReport represents the overall health of the application
type HealthReport struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// probe times fn and turns its error into a Check.
func probe(ctx context.Context, name, okMsg string, fn func(ctx context.Context, details map[string]string) error) Check {
	start := time.Now()
	check := Check{Name: name, Timestamp: start, Details: make(map[string]string)}

	err := fn(ctx, check.Details)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = StatusDown
		check.Message = fmt.Sprintf("%s check failed: %v", name, err)
		check.Details["error"] = err.Error()
		return check
	}
	check.Status = StatusUp
	check.Message = okMsg
	check.Details["response_time"] = check.Duration.String()
	return check
}

// PostgresChecker pings the offer database.
type PostgresChecker struct {
	DB   *sql.DB
	Name string
}

func (c *PostgresChecker) Check(ctx context.Context) Check {
	return probe(ctx, c.Name, "Database connection successful", func(ctx context.Context, _ map[string]string) error {
		return c.DB.PingContext(ctx)
	})
}

// RedisChecker pings the idempotency cache.
type RedisChecker struct {
	Client *redis.Client
	Name   string
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	return probe(ctx, c.Name, "Redis connection successful", func(ctx context.Context, details map[string]string) error {
		pong, err := c.Client.Ping(ctx).Result()
		if err == nil {
			details["ping_response"] = pong
		}
		return err
	})
}

// CSVTargetChecker verifies that a CSV target can be appended to: the file
// is writable if present, otherwise its directory exists or can be created.
type CSVTargetChecker struct {
	Path string
	Name string
}

func (c *CSVTargetChecker) Check(ctx context.Context) Check {
	return probe(ctx, c.Name, "Output target writable", func(_ context.Context, details map[string]string) error {
		details["path"] = c.Path
		info, err := os.Stat(c.Path)
		switch {
		case err == nil:
			details["size_bytes"] = fmt.Sprintf("%d", info.Size())
			f, err := os.OpenFile(c.Path, os.O_WRONLY|os.O_APPEND, 0)
			if err != nil {
				return err
			}
			return f.Close()
		case errors.Is(err, os.ErrNotExist):
			details["size_bytes"] = "0"
			return os.MkdirAll(filepath.Dir(c.Path), 0o755)
		default:
			return err
		}
	})
}

// HealthChecker orchestrates multiple health checks
type HealthChecker struct {
	checkers  []Checker
	version   string
	startTime time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
	}
}

// AddChecker adds a health checker
func (h *HealthChecker) AddChecker(checker Checker) {
	h.checkers = append(h.checkers, checker)
}

// CheckHealth performs all health checks. Any failing check marks the
// report down.
func (h *HealthChecker) CheckHealth(ctx context.Context) HealthReport {
	checks := make(map[string]Check, len(h.checkers))
	overall := StatusUp

	for _, checker := range h.checkers {
		check := checker.Check(ctx)
		checks[check.Name] = check
		if check.Status == StatusDown {
			overall = StatusDown
		}
	}

	return HealthReport{
		Status:    overall,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks:    checks,
		Uptime:    time.Since(h.startTime),
	}
}
