package storage

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// Variable categories.
const (
	VarCategoryProper = "proper"
	VarCategoryLingo  = "lingo"
	VarCategorySic    = "sic"
	VarCategoryURI    = "uri_metadata"
)

// Variable is one minted variable-token record.
type Variable struct {
	VarID     string
	Surface   string
	Status    string
	Category  string
	FirstSeen string
}

// FindActiveVariable returns the var_id of an active variable with the
// given surface, ErrNotFound when none exists.
func (s *Store) FindActiveVariable(surface string) (string, error) {
	var id string
	err := s.db.QueryRow(
		s.rebind(`SELECT var_id FROM dict_variables WHERE surface = ? AND status = 'active' ORDER BY serial LIMIT 1`),
		surface).Scan(&id)
	if err == sql.ErrNoRows {
		return "", errors.WithMessagef(ErrNotFound, "variable %q", surface)
	}
	if err != nil {
		return "", errors.Wrapf(err, "finding variable %q", surface)
	}
	return id, nil
}

// MintVariable returns the var_id for surface, reusing an active record
// when one exists and minting the next serial otherwise.
func (s *Store) MintVariable(surface, category string) (string, error) {
	if id, err := s.FindActiveVariable(surface); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if category == "" {
		category = VarCategoryProper
	}
	var varID string
	err := s.withTx(func(tx *sql.Tx) error {
		var next uint64
		if err := tx.QueryRow(`SELECT COALESCE(MAX(serial), 0) + 1 FROM dict_variables`).Scan(&next); err != nil {
			return errors.Wrap(err, "allocating variable serial")
		}
		var err error
		varID, err = tokens.VarID(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			s.rebind(`INSERT INTO dict_variables (serial, var_id, surface, status, category) VALUES (?, ?, ?, 'active', ?)`),
			int64(next), varID, surface, category)
		return errors.Wrapf(err, "minting variable %q", surface)
	})
	if err != nil {
		return "", err
	}
	return varID, nil
}

// RetireVariable marks a variable record retired; its id is never reused.
func (s *Store) RetireVariable(varID string) error {
	res, err := s.db.Exec(
		s.rebind(`UPDATE dict_variables SET status = 'retired' WHERE var_id = ?`), varID)
	if err != nil {
		return errors.Wrapf(err, "retiring variable %s", varID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.WithMessagef(ErrNotFound, "variable %s", varID)
	}
	return nil
}

// DocVar is one variable's usage inside one document.
type DocVar struct {
	VarID     string
	Surface   string
	Count     int64
	Positions []int64 // only populated by GetDocVarsExtended
	Category  string  // only populated by GetDocVarsExtended
	Status    string  // only populated by GetDocVarsExtended
}

// GetDocVars returns, per variable used in the document, its surface and
// occurrence count.
func (s *Store) GetDocVars(docPK int64) ([]DocVar, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT v.var_id, v.surface, COUNT(*)
		   FROM pbm_variable_sources src
		   JOIN dict_variables v ON v.var_id = src.var_id
		  WHERE src.doc_pk = ?
		  GROUP BY v.var_id, v.surface
		  ORDER BY v.var_id`), docPK)
	if err != nil {
		return nil, errors.Wrapf(err, "reading document %d variables", docPK)
	}
	defer func() { _ = rows.Close() }()
	var out []DocVar
	for rows.Next() {
		var dv DocVar
		if err = rows.Scan(&dv.VarID, &dv.Surface, &dv.Count); err != nil {
			return nil, errors.Wrap(err, "scanning doc var")
		}
		out = append(out, dv)
	}
	return out, errors.Wrap(rows.Err(), "iterating doc vars")
}

// GetDocVarsExtended is GetDocVars plus per-occurrence positions and the
// variable record fields.
func (s *Store) GetDocVarsExtended(docPK int64) ([]DocVar, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT v.var_id, v.surface, v.status, v.category, src.position
		   FROM pbm_variable_sources src
		   JOIN dict_variables v ON v.var_id = src.var_id
		  WHERE src.doc_pk = ?
		  ORDER BY v.var_id, src.position`), docPK)
	if err != nil {
		return nil, errors.Wrapf(err, "reading document %d variables", docPK)
	}
	defer func() { _ = rows.Close() }()
	var out []DocVar
	for rows.Next() {
		var varID, surface, status, category string
		var pos int64
		if err = rows.Scan(&varID, &surface, &status, &category, &pos); err != nil {
			return nil, errors.Wrap(err, "scanning doc var")
		}
		if n := len(out); n > 0 && out[n-1].VarID == varID {
			out[n-1].Count++
			out[n-1].Positions = append(out[n-1].Positions, pos)
			continue
		}
		out = append(out, DocVar{
			VarID: varID, Surface: surface, Status: status, Category: category,
			Count: 1, Positions: []int64{pos},
		})
	}
	return out, errors.Wrap(rows.Err(), "iterating doc vars")
}
