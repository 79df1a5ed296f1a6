package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// ensureSchema creates every table the store uses. All statements are
// idempotent.
func (s *Store) ensureSchema() error {
	d := s.dialect
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dict_tokens (
			serial   %s,
			name     TEXT NOT NULL,
			layer    TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			token_id TEXT NOT NULL,
			UNIQUE (name, layer)
		)`, d.serialPK()),
		`CREATE INDEX IF NOT EXISTS dict_tokens_token_id ON dict_tokens (token_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dict_variables (
			serial     %s,
			var_id     TEXT NOT NULL UNIQUE,
			surface    TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			category   TEXT NOT NULL DEFAULT 'proper',
			first_seen %s
		)`, d.serialPK(), d.timestampDefault()),
		`CREATE INDEX IF NOT EXISTS dict_variables_surface ON dict_variables (surface)`,

		`CREATE TABLE IF NOT EXISTS dict_bonds (
			level TEXT NOT NULL,
			a     TEXT NOT NULL,
			b     TEXT NOT NULL,
			count BIGINT NOT NULL,
			PRIMARY KEY (level, a, b)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pbm_documents (
			pk           %s,
			doc_id       TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			century_code TEXT NOT NULL,
			first_fpb_a  TEXT NOT NULL,
			first_fpb_b  TEXT NOT NULL,
			metadata     %s,
			total_slots  BIGINT NOT NULL,
			created      %s
		)`, d.serialPK(), d.jsonType(), d.timestampDefault()),

		`CREATE TABLE IF NOT EXISTS pbm_starters (
			doc_pk  BIGINT NOT NULL,
			token_a TEXT NOT NULL,
			PRIMARY KEY (doc_pk, token_a)
		)`,

		`CREATE TABLE IF NOT EXISTS pbm_word_bonds (
			doc_pk  BIGINT NOT NULL,
			token_a TEXT NOT NULL,
			token_b TEXT NOT NULL,
			count   BIGINT NOT NULL,
			PRIMARY KEY (doc_pk, token_a, token_b)
		)`,
		`CREATE TABLE IF NOT EXISTS pbm_char_bonds (
			doc_pk  BIGINT NOT NULL,
			token_a TEXT NOT NULL,
			token_b TEXT NOT NULL,
			count   BIGINT NOT NULL,
			PRIMARY KEY (doc_pk, token_a, token_b)
		)`,
		`CREATE TABLE IF NOT EXISTS pbm_marker_bonds (
			doc_pk  BIGINT NOT NULL,
			token_a TEXT NOT NULL,
			token_b TEXT NOT NULL,
			count   BIGINT NOT NULL,
			PRIMARY KEY (doc_pk, token_a, token_b)
		)`,

		`CREATE TABLE IF NOT EXISTS pbm_positions (
			doc_pk    BIGINT NOT NULL,
			token_id  TEXT NOT NULL,
			positions TEXT NOT NULL,
			PRIMARY KEY (doc_pk, token_id)
		)`,

		`CREATE TABLE IF NOT EXISTS document_provenance (
			doc_pk      BIGINT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			authors     TEXT NOT NULL DEFAULT '',
			subjects    TEXT NOT NULL DEFAULT '',
			bookshelves TEXT NOT NULL DEFAULT '',
			languages   TEXT NOT NULL DEFAULT '',
			copyright   TEXT NOT NULL DEFAULT '',
			catalog_id  TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS pbm_counters (
			namespace  TEXT NOT NULL,
			p2         TEXT NOT NULL,
			century    TEXT NOT NULL,
			next_value BIGINT NOT NULL,
			PRIMARY KEY (namespace, p2, century)
		)`,

		`CREATE TABLE IF NOT EXISTS pbm_variable_sources (
			var_id   TEXT NOT NULL,
			doc_pk   BIGINT NOT NULL,
			position BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS pbm_variable_sources_doc ON pbm_variable_sources (doc_pk)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "creating schema")
		}
	}
	return nil
}
