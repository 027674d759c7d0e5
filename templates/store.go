package templates

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store maps playground ids to the template they were created from.
type Store interface {
	TemplateOf(ctx context.Context, playgroundID string) (string, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]string)}
}

// Put records the template of a playground.
func (s *MemoryStore) Put(playgroundID, template string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[playgroundID] = template
}

func (s *MemoryStore) TemplateOf(_ context.Context, playgroundID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[playgroundID]
	if !ok {
		return "", ErrPlaygroundNotFound
	}
	return t, nil
}

// PostgresStore reads playground records from Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn with the pgx driver and checks the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) TemplateOf(ctx context.Context, playgroundID string) (string, error) {
	var template string
	err := s.db.QueryRowContext(ctx, `SELECT template FROM playground WHERE id = $1`, playgroundID).Scan(&template)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPlaygroundNotFound
	}
	if err != nil {
		return "", err
	}
	return template, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
