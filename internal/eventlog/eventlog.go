package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Event is one row of the append-only attempt event log (AttemptStarted,
// AttemptSubmitted, AttemptExpired, AttemptScored).
type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string // natural key: attemptID
	DataJSON  string
	CreatedAt int64
}

type Repo struct {
	db     *sql.DB
	siteID string
}

func NewRepo(db *sql.DB, siteID string) *Repo {
	if siteID == "" {
		siteID = "local"
	}
	return &Repo{db: db, siteID: siteID}
}

// Append satisfies quiz.Events: data is marshaled to the JSON payload column.
func (r *Repo) Append(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(buf), time.Now().Unix())
	return err
}

// Since returns events after the given offset, oldest first.
func (r *Repo) Since(ctx context.Context, offset int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", site_id, typ, key, data, created_at FROM event_log
		 WHERE "offset" > $1 ORDER BY "offset" ASC LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
