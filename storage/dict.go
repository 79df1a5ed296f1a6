package storage

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// Dictionary layers. Every dictionary row carries one of these; the pair
// (name, layer) is unique.
const (
	LayerWord   = "word"
	LayerChar   = "character"
	LayerLabel  = "label"
	LayerAffix  = "affix"
	LayerMarker = "marker"
)

// LookupToken returns the token id for (name, layer), ErrNotFound on miss.
func (s *Store) LookupToken(name, layer string) (string, error) {
	var id string
	err := s.db.QueryRow(
		s.rebind(`SELECT token_id FROM dict_tokens WHERE name = ? AND layer = ?`),
		name, layer).Scan(&id)
	if err == sql.ErrNoRows {
		return "", errors.WithMessagef(ErrNotFound, "token %q layer %s", name, layer)
	}
	if err != nil {
		return "", errors.Wrapf(err, "looking up token %q", name)
	}
	return id, nil
}

// TokenName returns the surface for a token id, ErrNotFound on miss.
func (s *Store) TokenName(tokenID string) (string, error) {
	var name string
	err := s.db.QueryRow(
		s.rebind(`SELECT name FROM dict_tokens WHERE token_id = ?`), tokenID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", errors.WithMessagef(ErrNotFound, "token id %s", tokenID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "reverse looking up %s", tokenID)
	}
	return name, nil
}

// InsertToken adds one dictionary row, allocating its token id from the
// namespace that the layer dictates. Inserting an existing (name, layer)
// returns the existing id.
func (s *Store) InsertToken(name, layer, category string) (string, error) {
	if id, err := s.LookupToken(name, layer); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	var tokenID string
	err := s.withTx(func(tx *sql.Tx) error {
		var next uint64
		if err := tx.QueryRow(`SELECT COALESCE(MAX(serial), 0) + 1 FROM dict_tokens`).Scan(&next); err != nil {
			return errors.Wrap(err, "allocating dictionary serial")
		}
		var err error
		switch layer {
		case LayerLabel, LayerMarker:
			tokenID, err = tokens.LabelID(next)
		default:
			tokenID, err = tokens.WordID(next)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			s.rebind(`INSERT INTO dict_tokens (serial, name, layer, category, token_id) VALUES (?, ?, ?, ?, ?)`),
			int64(next), name, layer, category, tokenID)
		return errors.Wrapf(err, "inserting token %q layer %s", name, layer)
	})
	if err != nil {
		return "", err
	}
	return tokenID, nil
}

// IterateTokens streams (name, token_id) for one layer, ordered by serial.
// fn returning false stops the iteration early.
func (s *Store) IterateTokens(layer string, fn func(name, tokenID string) bool) error {
	rows, err := s.db.Query(
		s.rebind(`SELECT name, token_id FROM dict_tokens WHERE layer = ? ORDER BY serial`), layer)
	if err != nil {
		return errors.Wrapf(err, "iterating layer %s", layer)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name, id string
		if err = rows.Scan(&name, &id); err != nil {
			return errors.Wrap(err, "scanning token row")
		}
		if !fn(name, id) {
			return nil
		}
	}
	return errors.Wrap(rows.Err(), "iterating tokens")
}

// CountTokens returns the number of dictionary rows in one layer.
func (s *Store) CountTokens(layer string) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		s.rebind(`SELECT COUNT(*) FROM dict_tokens WHERE layer = ?`), layer).Scan(&n)
	return n, errors.Wrapf(err, "counting layer %s", layer)
}

// AffixRow is one raw affix entry as persisted: the surface still carries
// its positional hyphen (`-ing`, `pre-`).
type AffixRow struct {
	Form    string
	TokenID string
}

// SelectAffixes returns every affix row, ordered by serial.
func (s *Store) SelectAffixes() ([]AffixRow, error) {
	var out []AffixRow
	err := s.IterateTokens(LayerAffix, func(name, tokenID string) bool {
		out = append(out, AffixRow{Form: name, TokenID: tokenID})
		return true
	})
	return out, err
}
