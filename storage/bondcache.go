package storage

import (
	"database/sql"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
)

// SaveBondTable clears the rows of the table's level and rewrites them in
// one transaction. Recomputing and saving is always safe: the table is a
// process-wide idempotent cache.
func (s *Store) SaveBondTable(table *bonds.Table) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(s.rebind(`DELETE FROM dict_bonds WHERE level = ?`), table.Level()); err != nil {
			return errors.Wrapf(err, "clearing bond level %s", table.Level())
		}
		stmt, err := tx.Prepare(s.rebind(
			`INSERT INTO dict_bonds (level, a, b, count) VALUES (?, ?, ?, ?)`))
		if err != nil {
			return errors.Wrap(err, "preparing bond insert")
		}
		defer func() { _ = stmt.Close() }()
		for _, p := range table.SortedPairs() {
			if _, err = stmt.Exec(table.Level(), p.A, p.B, table.Count(p.A, p.B)); err != nil {
				return errors.Wrapf(err, "inserting bond (%q, %q)", p.A, p.B)
			}
		}
		klog.V(1).Infof("storage: saved bond table %s (%d pairs)", table.Level(), table.Len())
		return nil
	})
}

// LoadBondTable reads every row of one level. A level with no rows yields
// an empty table, not an error.
func (s *Store) LoadBondTable(level string) (*bonds.Table, error) {
	rows, err := s.db.Query(
		s.rebind(`SELECT a, b, count FROM dict_bonds WHERE level = ?`), level)
	if err != nil {
		return nil, errors.Wrapf(err, "loading bond level %s", level)
	}
	defer func() { _ = rows.Close() }()
	table := bonds.New(level)
	for rows.Next() {
		var a, b string
		var count int64
		if err = rows.Scan(&a, &b, &count); err != nil {
			return nil, errors.Wrap(err, "scanning bond row")
		}
		table.Add(a, b, count)
	}
	return table, errors.Wrap(rows.Err(), "iterating bond rows")
}

// ClearBondTable invalidates one cached level.
func (s *Store) ClearBondTable(level string) error {
	_, err := s.db.Exec(s.rebind(`DELETE FROM dict_bonds WHERE level = ?`), level)
	return errors.Wrapf(err, "clearing bond level %s", level)
}
