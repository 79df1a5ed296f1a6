package storage

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// Document address namespace: doc_id = "vA.AB.<century>.<p4>.<p5>".
const (
	docNamespace = "vA"
	docP2        = "AB"
)

// centuryCapacity is the number of sequences one (namespace, p2, century)
// counter can allocate before exhausting.
const centuryCapacity = tokens.PairRange * tokens.PairRange

// nextSequence allocates the next monotonic sequence for the counter key
// inside the caller's transaction. The counter row is created on first use;
// the increment-and-return happens in a single round trip.
func (s *Store) nextSequence(tx *sql.Tx, namespace, p2, century string) (int64, error) {
	_, err := tx.Exec(s.rebind(
		`INSERT INTO pbm_counters (namespace, p2, century, next_value) VALUES (?, ?, ?, 1)
		 ON CONFLICT (namespace, p2, century) DO NOTHING`),
		namespace, p2, century)
	if err != nil {
		return 0, errors.Wrapf(err, "seeding counter %s.%s.%s", namespace, p2, century)
	}
	var seq int64
	err = tx.QueryRow(s.rebind(
		`UPDATE pbm_counters SET next_value = next_value + 1
		  WHERE namespace = ? AND p2 = ? AND century = ?
		 RETURNING next_value - 1`),
		namespace, p2, century).Scan(&seq)
	if err != nil {
		return 0, errors.Wrapf(err, "advancing counter %s.%s.%s", namespace, p2, century)
	}
	if seq >= centuryCapacity {
		return 0, errors.WithMessagef(ErrExhausted, "counter %s.%s.%s at %d", namespace, p2, century, seq)
	}
	return seq, nil
}

// docIDFor builds the 5-segment document address for a century and an
// allocated sequence.
func docIDFor(century string, seq int64) (string, error) {
	if _, err := tokens.DecodePair(century); err != nil {
		return "", errors.WithMessagef(err, "century code %q", century)
	}
	hi, err := tokens.EncodePair(int(seq / tokens.PairRange))
	if err != nil {
		return "", err
	}
	lo, err := tokens.EncodePair(int(seq % tokens.PairRange))
	if err != nil {
		return "", err
	}
	return docNamespace + "." + docP2 + "." + century + "." + hi + "." + lo, nil
}
