// Package tm is an optional Postgres-backed translation memory. Confirmed
// translations are recorded on import keyed by source-text hash, and export
// offers them back as prefilled suggestions when the same source text shows
// up untranslated (common across maps that reuse system lines). The memory
// never touches game files or the strings store; it only feeds the sheet.
package tm

import (
	"context"
	"fmt"

	"rmloc/internal/textutil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Memory is a handle to the translation memory database.
type Memory struct {
	pool *pgxpool.Pool
}

// Connect opens and verifies the database connection.
func Connect(ctx context.Context, databaseURL string) (*Memory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect translation memory: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping translation memory: %w", err)
	}
	log.Info().Msg("Connected to translation memory")
	return &Memory{pool: pool}, nil
}

// Close releases the connection pool.
func (m *Memory) Close() {
	m.pool.Close()
}

// EnsureSchema creates the memory table if it does not exist yet.
func (m *Memory) EnsureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS translation_memory (
			hash       TEXT NOT NULL,
			lang       TEXT NOT NULL,
			source     TEXT NOT NULL,
			translated TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (hash, lang)
		)`)
	if err != nil {
		return fmt.Errorf("ensure translation memory schema: %w", err)
	}
	return nil
}

// Record upserts one confirmed translation.
func (m *Memory) Record(ctx context.Context, lang, source, translated string) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO translation_memory (hash, lang, source, translated, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (hash, lang)
		DO UPDATE SET source = EXCLUDED.source, translated = EXCLUDED.translated, updated_at = now()`,
		textutil.Hash(source), lang, source, translated)
	if err != nil {
		return fmt.Errorf("record translation: %w", err)
	}
	return nil
}

// Suggest returns the remembered translation for source text, if any.
func (m *Memory) Suggest(ctx context.Context, lang, source string) (string, bool) {
	var translated string
	err := m.pool.QueryRow(ctx,
		`SELECT translated FROM translation_memory WHERE hash = $1 AND lang = $2`,
		textutil.Hash(source), lang).Scan(&translated)
	if err != nil {
		return "", false
	}
	return translated, true
}

// Preload loads every remembered translation for a language into a map so a
// whole-store export does one query instead of one per row. The returned
// lookup takes source text.
func (m *Memory) Preload(ctx context.Context, lang string) (func(source string) (string, bool), error) {
	rows, err := m.pool.Query(ctx,
		`SELECT hash, translated FROM translation_memory WHERE lang = $1`, lang)
	if err != nil {
		return nil, fmt.Errorf("preload translation memory: %w", err)
	}
	defer rows.Close()

	byHash := make(map[string]string)
	for rows.Next() {
		var hash, translated string
		if err := rows.Scan(&hash, &translated); err != nil {
			return nil, fmt.Errorf("scan translation memory row: %w", err)
		}
		byHash[hash] = translated
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read translation memory: %w", err)
	}

	log.Info().Int("count", len(byHash)).Str("lang", lang).Msg("Preloaded translation memory")
	return func(source string) (string, bool) {
		t, ok := byHash[textutil.Hash(source)]
		return t, ok
	}, nil
}
