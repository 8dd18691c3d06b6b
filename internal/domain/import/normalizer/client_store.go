package normalizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-import/pkg/db"
)

var ErrAliasNotFound = errors.New("client alias not found")

// ClientAlias ties a payer spelling seen on bank exports to a client.
type ClientAlias struct {
	ID            uuid.UUID  `json:"id"`
	Pattern       string     `json:"pattern"`
	ClientNumber  int        `json:"client_number"`
	MatchCount    int        `json:"match_count"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClientAliasStore persists aliases in Postgres.
type ClientAliasStore struct {
	db db.DBTX
}

// NewClientAliasStore creates a new alias store.
func NewClientAliasStore(conn db.DBTX) *ClientAliasStore {
	return &ClientAliasStore{db: conn}
}

// SaveAlias creates an alias or repoints an existing pattern to a new
// client. Patterns are stored folded.
func (s *ClientAliasStore) SaveAlias(ctx context.Context, pattern string, clientNumber int) (*ClientAlias, error) {
	query := `
		INSERT INTO client_aliases (pattern, client_number)
		VALUES ($1, $2)
		ON CONFLICT (pattern) DO UPDATE SET
			client_number = EXCLUDED.client_number,
			updated_at = now()
		RETURNING id, pattern, client_number, match_count, last_matched_at, created_at, updated_at
	`

	var a ClientAlias
	err := s.db.QueryRow(ctx, query, aliasKey(pattern), clientNumber).Scan(
		&a.ID, &a.Pattern, &a.ClientNumber, &a.MatchCount,
		&a.LastMatchedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save client alias: %w", err)
	}
	return &a, nil
}

// ListAliases returns every alias, most used first.
func (s *ClientAliasStore) ListAliases(ctx context.Context) ([]ClientAlias, error) {
	query := `
		SELECT id, pattern, client_number, match_count, last_matched_at, created_at, updated_at
		FROM client_aliases
		ORDER BY match_count DESC, updated_at DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list client aliases: %w", err)
	}
	defer rows.Close()

	var aliases []ClientAlias
	for rows.Next() {
		var a ClientAlias
		if err := rows.Scan(
			&a.ID, &a.Pattern, &a.ClientNumber, &a.MatchCount,
			&a.LastMatchedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan client alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// RecordMatches bumps the usage counter of aliases applied by a submitted
// import.
func (s *ClientAliasStore) RecordMatches(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE client_aliases
		SET match_count = match_count + 1, last_matched_at = now()
		WHERE id = ANY($1)
	`
	if _, err := s.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("record alias matches: %w", err)
	}
	return nil
}

// DeleteAlias removes an alias.
func (s *ClientAliasStore) DeleteAlias(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM client_aliases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client alias: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAliasNotFound
	}
	return nil
}
