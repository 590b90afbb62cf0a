package handlers

import (
	"context"
	"net/http"
	"time"
)

const (
	depHealthy       = "healthy"
	depConfigured    = "configured"
	depNotConfigured = "not configured"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// BrokerConn is satisfied by *amqp091.Connection.
type BrokerConn interface {
	IsClosed() bool
}

// HealthCheck reports the state of one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) string
}

type HealthHandler struct {
	Checks    []HealthCheck
	StartTime time.Time
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

// NewHealthHandler reports on Postgres, RabbitMQ and whether SES has a sender
// address. A nil dependency is reported as not configured.
func NewHealthHandler(db Pinger, broker BrokerConn, sesFrom string) *HealthHandler {
	return &HealthHandler{
		Checks: []HealthCheck{
			{Name: "database", Check: pingCheck(db)},
			{Name: "rabbitmq", Check: brokerCheck(broker)},
			{Name: "ses", Check: func(context.Context) string {
				if sesFrom == "" {
					return depNotConfigured
				}
				return depConfigured
			}},
		},
		StartTime: time.Now(),
	}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		state := c.Check(ctx)
		deps[c.Name] = state
		if state != depHealthy && state != depConfigured && state != depNotConfigured {
			status = "degraded"
		}
	}

	code := http.StatusOK
	if status == "degraded" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:       status,
		Version:      "1.0.0",
		Uptime:       time.Since(h.StartTime).Round(time.Second).String(),
		Dependencies: deps,
	})
}

func pingCheck(db Pinger) func(context.Context) string {
	return func(ctx context.Context) string {
		if db == nil {
			return depNotConfigured
		}
		if err := db.PingContext(ctx); err != nil {
			return "unhealthy: " + err.Error()
		}
		return depHealthy
	}
}

func brokerCheck(conn BrokerConn) func(context.Context) string {
	return func(context.Context) string {
		if conn == nil {
			return depNotConfigured
		}
		if conn.IsClosed() {
			return "unhealthy: connection closed"
		}
		return depHealthy
	}
}
