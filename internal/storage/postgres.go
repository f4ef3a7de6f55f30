package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-bidding/internal/models"
)

// PostgresStore keeps ride requests and driver presence as JSONB documents.
// The engine treats storage as a document store; the status column exists
// only so the non-terminal query stays an index scan.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) GetRide(ctx context.Context, requestID string) (models.RideRequest, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM ride_requests WHERE id=$1`, requestID).Scan(&doc)
	if err == sql.ErrNoRows {
		return models.RideRequest{}, ErrNotFound
	}
	if err != nil {
		return models.RideRequest{}, err
	}
	var r models.RideRequest
	if err := json.Unmarshal(doc, &r); err != nil {
		return models.RideRequest{}, fmt.Errorf("decode ride %s: %w", requestID, err)
	}
	return r, nil
}

func (p *PostgresStore) UpsertRide(ctx context.Context, req models.RideRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO ride_requests(id, status, doc, updated_at) VALUES($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET status=$2, doc=$3, updated_at=$4`,
		req.ID, string(req.Status), doc, req.UpdatedAt)
	return err
}

func (p *PostgresStore) QueryNonTerminal(ctx context.Context) ([]models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc FROM ride_requests WHERE status NOT IN ($1,$2)`,
		string(models.RideCompleted), string(models.RideCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r models.RideRequest
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertDriverPresence(ctx context.Context, pr models.DriverPresence) error {
	doc, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO driver_presence(driver_id, doc, updated_at) VALUES($1,$2,$3)
		 ON CONFLICT (driver_id) DO UPDATE SET doc=$2, updated_at=$3`,
		pr.DriverID, doc, pr.Updated)
	return err
}

func (p *PostgresStore) Close() error { return p.db.Close() }
