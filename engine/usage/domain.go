package usage

import (
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Record is one row per gated call. Rows are append-only and never updated;
// the windowed counts over them are the rate limiter's state.
type Record struct {
	ID         core.ID   `json:"id"          db:"id"`
	KeyID      core.ID   `json:"key_id"      db:"key_id"`
	Endpoint   string    `json:"endpoint"    db:"endpoint"`
	Method     string    `json:"method"      db:"method"`
	StatusCode int       `json:"status_code" db:"status_code"`
	LatencyMS  int64     `json:"latency_ms"  db:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// NewRecord builds a usage row for a completed call.
func NewRecord(keyID core.ID, endpoint, method string, statusCode int, latency time.Duration) (*Record, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:         id,
		KeyID:      keyID,
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: statusCode,
		LatencyMS:  latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// EndpointStats aggregates call counts and error rate for one endpoint.
type EndpointStats struct {
	Endpoint  string  `json:"endpoint"   db:"endpoint"`
	Calls     int64   `json:"calls"      db:"calls"`
	Errors    int64   `json:"errors"     db:"errors"`
	ErrorRate float64 `json:"error_rate" db:"-"`
}

// Stats is the usage summary returned by the key statistics endpoint.
type Stats struct {
	HourlyCount int64           `json:"hourly_count"`
	DailyCount  int64           `json:"daily_count"`
	HourlyLimit int             `json:"hourly_limit"`
	DailyLimit  int             `json:"daily_limit"`
	Endpoints   []EndpointStats `json:"endpoints"`
}
