// Package source fetches bus records from the external bus data source.
package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trackly/internal/db"
	"trackly/internal/transit"
)

// Source is anything that can return the full set of bus records.
type Source interface {
	FetchBuses(ctx context.Context) ([]transit.Bus, error)
	Name() string
}

// HTTPSource reads a JSON array of buses from the bus data server.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) FetchBuses(ctx context.Context) ([]transit.Bus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching buses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bus server returned status %d", resp.StatusCode)
	}

	var buses []transit.Bus
	if err := json.NewDecoder(resp.Body).Decode(&buses); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return buses, nil
}

// PostgresSource reads buses from a bus data database.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(conn *sql.DB) *PostgresSource {
	return &PostgresSource{db: conn}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) FetchBuses(ctx context.Context) ([]transit.Bus, error) {
	return db.FetchBuses(ctx, s.db)
}
