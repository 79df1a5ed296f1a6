// Package vocab implements the two-tier vocabulary cache: six ordered
// key/value sub-dictionaries in a bbolt environment, fronted by a
// read-through miss resolver that mints entries on demand and commits every
// resolution as one atomic batch.
//
// The sub-dictionaries are the forward maps w2t, c2t and l2t (surface →
// token id), the reverse maps t2w and t2c (token id → surface) and the
// `forward` prefix-walk cache used by continuation resolution.
package vocab

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

// Sub-database names. These are the bbolt bucket names and the routing keys
// of the miss resolver.
const (
	SubWords      = "w2t"
	SubChars      = "c2t"
	SubLabels     = "l2t"
	SubTokenWords = "t2w"
	SubTokenChars = "t2c"
	SubForward    = "forward"

	// SubVar is the virtual sub-database of the variable-mint handler.
	// No bucket carries this name; keys bearing the variable-request
	// sentinel reroute here whatever sub-database they were aimed at.
	SubVar = "var"
)

var allBuckets = []string{SubWords, SubChars, SubLabels, SubTokenWords, SubTokenChars, SubForward}

// Env owns the bbolt environment holding the six sub-dictionaries. One
// mutable handle exists per environment; the resolver borrows it for
// batched writes but never closes it.
type Env struct {
	db *bolt.DB
}

// OpenEnv opens (creating if needed) the vocabulary store at path.
func OpenEnv(path string) (*Env, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening vocabulary store %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "creating sub-database %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	klog.V(1).Infof("vocab: opened environment %q", path)
	return &Env{db: db}, nil
}

// Close closes the environment. Only the owner may call this.
func (e *Env) Close() error {
	return e.db.Close()
}

// get reads one key from one sub-database. ok is false when absent.
func (e *Env) get(sub, key string) (value string, ok bool, err error) {
	err = e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(sub)).Get([]byte(key))
		if v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "reading %s[%q]", sub, key)
	}
	return value, ok, nil
}

// Write is one pending sub-database write of a miss resolution.
type Write struct {
	Sub   string
	Key   string
	Value string
}

// commit applies a batch of writes in a single transaction. Either every
// write becomes visible or none does.
func (e *Env) commit(writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		for _, w := range writes {
			bucket := tx.Bucket([]byte(w.Sub))
			if bucket == nil {
				return errors.Errorf("unknown sub-database %s", w.Sub)
			}
			if err := bucket.Put([]byte(w.Key), []byte(w.Value)); err != nil {
				return errors.Wrapf(err, "writing %s[%q]", w.Sub, w.Key)
			}
		}
		return nil
	})
	return errors.Wrap(err, "committing resolution batch")
}

// iterate walks one sub-database in key order, stopping when fn returns
// false.
func (e *Env) iterate(sub string, fn func(key, value string) bool) error {
	err := e.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(sub)).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if !fn(string(k), string(v)) {
				return nil
			}
		}
		return nil
	})
	return errors.Wrapf(err, "iterating %s", sub)
}

// count returns the number of keys in one sub-database.
func (e *Env) count(sub string) (n int, err error) {
	err = e.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(sub)).Stats().KeyN
		return nil
	})
	return n, errors.Wrapf(err, "counting %s", sub)
}
