package storage

import (
	"fmt"
	"strings"
)

// dialect absorbs the SQL differences between the two backends.
type dialect interface {
	// rebind rewrites '?' placeholders into the dialect's native form.
	rebind(query string) string

	// serialPK is the column definition of an auto-increment primary key.
	serialPK() string

	// jsonType is the column type used for opaque JSON documents.
	jsonType() string

	// timestampDefault is the column definition of a creation timestamp.
	timestampDefault() string
}

type pgDialect struct{}

func (pgDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for ii := 0; ii < len(query); ii++ {
		if query[ii] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[ii])
	}
	return b.String()
}

func (pgDialect) serialPK() string         { return "BIGSERIAL PRIMARY KEY" }
func (pgDialect) jsonType() string         { return "JSONB" }
func (pgDialect) timestampDefault() string { return "TIMESTAMPTZ NOT NULL DEFAULT now()" }

type sqliteDialect struct{}

func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) serialPK() string           { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) jsonType() string           { return "TEXT" }
func (sqliteDialect) timestampDefault() string {
	return "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP"
}
