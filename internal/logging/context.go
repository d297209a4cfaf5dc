package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TickContext creates a logger context for one orchestrator tick.
func TickContext(tickID string, agentCount int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"tick_id":     tickID,
		"agent_count": agentCount,
	}).WithComponent("orchestrator")
}

// AgentContext creates a logger context for a single agent's turn.
func AgentContext(agentID, agentName string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"agent_id":   agentID,
		"agent_name": agentName,
	}).WithComponent("agent")
}

// TradeContext creates a logger context for trade execution.
func TradeContext(symbol, side string, quantity, price float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
	}).WithComponent("trade")
}

// PositionContext creates a logger context for position/exit-level operations.
func PositionContext(agentID, symbol string, entryPrice, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"agent_id":    agentID,
		"symbol":      symbol,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("exit")
}

// PatternContext creates a logger context for winning-pattern detection.
func PatternContext(symbol, patternType string, pnlPercent float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":       symbol,
		"pattern_type": patternType,
		"pnl_percent":  pnlPercent,
	}).WithComponent("memory")
}

// SignalContext creates a logger context for the signal combiner.
func SignalContext(symbol, decision string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"decision":   decision,
		"confidence": confidence,
	}).WithComponent("signal")
}

// RiskContext creates a logger context for gate / circuit-breaker decisions.
func RiskContext(agentID string, riskScore float64, canProceed bool) *Logger {
	return Default().WithFields(map[string]interface{}{
		"agent_id":    agentID,
		"risk_score":  riskScore,
		"can_proceed": canProceed,
	}).WithComponent("risk")
}

// DatabaseContext creates a logger context for persistence operations.
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// APIContext creates a logger context for control-surface requests.
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("control")
}

// WebSocketContext creates a logger context for the event-stream transport.
func WebSocketContext(stream string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stream": stream,
	}).WithComponent("stream")
}

// HTTPMiddleware is a middleware that adds logging to HTTP requests
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		l.WithDuration(duration).WithField("status_code", wrapped.statusCode).Info("request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
