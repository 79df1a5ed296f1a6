package storage

import (
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// PBM is a document's Positional Bond Map: the directional bond table over
// token ids plus the opening pair used as the document fingerprint.
type PBM struct {
	Bonds  *bonds.Table
	FirstA string
	FirstB string
}

// Document is one stored document row.
type Document struct {
	PK         int64
	DocID      string
	Name       string
	Century    string
	FirstA     string
	FirstB     string
	Metadata   json.RawMessage
	TotalSlots int64
	Created    string
}

// Provenance is the dedicated-field record the known metadata keys route to.
type Provenance struct {
	Title       string   `json:"title,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
	Bookshelves []string `json:"bookshelves,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	Copyright   string   `json:"copyright,omitempty"`
	CatalogID   string   `json:"catalog_id,omitempty"`
}

// VarSource records one variable occurrence inside a document.
type VarSource struct {
	VarID    string
	Position int64
}

// BondRow is one persisted document bond.
type BondRow struct {
	TokenA string `json:"token_a,omitempty"`
	TokenB string `json:"token"`
	Count  int64  `json:"count"`
}

// StoreDocument persists a document in a single transaction: address
// allocation, the document row, starters, the routed bond sub-tables, the
// positional record, variable sources and provenance. On any failure the
// whole insert rolls back and no doc_id is returned.
func (s *Store) StoreDocument(name, century string, pbm *PBM, ids []string, positions []int64,
	totalSlots int64, metadata map[string]any, varSources []VarSource) (docID string, pk int64, err error) {
	if len(ids) != len(positions) {
		return "", 0, errors.Errorf("ids/positions length mismatch: %d vs %d", len(ids), len(positions))
	}
	prov, metadataJSON, err := routeMetadata(metadata)
	if err != nil {
		return "", 0, err
	}
	err = s.withTx(func(tx *sql.Tx) error {
		seq, err := s.nextSequence(tx, docNamespace, docP2, century)
		if err != nil {
			return err
		}
		docID, err = docIDFor(century, seq)
		if err != nil {
			return err
		}
		if err = tx.QueryRow(`SELECT COALESCE(MAX(pk), 0) + 1 FROM pbm_documents`).Scan(&pk); err != nil {
			return errors.Wrap(err, "allocating document pk")
		}
		_, err = tx.Exec(s.rebind(
			`INSERT INTO pbm_documents (pk, doc_id, name, century_code, first_fpb_a, first_fpb_b, metadata, total_slots)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			pk, docID, name, century, pbm.FirstA, pbm.FirstB, string(metadataJSON), totalSlots)
		if err != nil {
			return errors.Wrapf(err, "inserting document %q", name)
		}
		if err = insertStartersAndBonds(tx, s, pk, pbm.Bonds); err != nil {
			return err
		}
		if err = insertPositions(tx, s, pk, ids, positions); err != nil {
			return err
		}
		for _, src := range varSources {
			_, err = tx.Exec(s.rebind(
				`INSERT INTO pbm_variable_sources (var_id, doc_pk, position) VALUES (?, ?, ?)`),
				src.VarID, pk, src.Position)
			if err != nil {
				return errors.Wrapf(err, "recording variable source %s", src.VarID)
			}
		}
		if prov != nil {
			if err = insertProvenance(tx, s, pk, prov); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	klog.V(1).Infof("storage: stored document %s (%q, %d bonds, %d slots)",
		docID, name, pbm.Bonds.Len(), totalSlots)
	return docID, pk, nil
}

// insertStartersAndBonds writes the starter row for each unique token_a and
// routes each bond row into the sub-table that token_b's prefix selects.
func insertStartersAndBonds(tx *sql.Tx, s *Store, pk int64, table *bonds.Table) error {
	starters := make(map[string]bool)
	for _, p := range table.SortedPairs() {
		if !starters[p.A] {
			starters[p.A] = true
			if _, err := tx.Exec(s.rebind(
				`INSERT INTO pbm_starters (doc_pk, token_a) VALUES (?, ?)`), pk, p.A); err != nil {
				return errors.Wrapf(err, "inserting starter %s", p.A)
			}
		}
		sub := bondSubTable(p.B)
		_, err := tx.Exec(s.rebind(
			`INSERT INTO `+sub+` (doc_pk, token_a, token_b, count) VALUES (?, ?, ?, ?)`),
			pk, p.A, p.B, table.Count(p.A, p.B))
		if err != nil {
			return errors.Wrapf(err, "inserting %s (%s, %s)", sub, p.A, p.B)
		}
	}
	return nil
}

// bondSubTable routes a bond row by its token_b namespace.
func bondSubTable(tokenB string) string {
	switch {
	case tokens.IsWordID(tokenB):
		return "pbm_word_bonds"
	case tokens.IsMarkerID(tokenB):
		return "pbm_marker_bonds"
	default:
		return "pbm_char_bonds"
	}
}

// insertPositions writes, per distinct token id, its ordered position list.
func insertPositions(tx *sql.Tx, s *Store, pk int64, ids []string, positions []int64) error {
	byToken := make(map[string][]int64)
	order := make([]string, 0)
	for ii, id := range ids {
		if _, seen := byToken[id]; !seen {
			order = append(order, id)
		}
		byToken[id] = append(byToken[id], positions[ii])
	}
	stmt, err := tx.Prepare(s.rebind(
		`INSERT INTO pbm_positions (doc_pk, token_id, positions) VALUES (?, ?, ?)`))
	if err != nil {
		return errors.Wrap(err, "preparing position insert")
	}
	defer func() { _ = stmt.Close() }()
	for _, id := range order {
		if _, err = stmt.Exec(pk, id, joinPositions(byToken[id])); err != nil {
			return errors.Wrapf(err, "inserting positions for %s", id)
		}
	}
	return nil
}

func joinPositions(positions []int64) string {
	parts := make([]string, len(positions))
	for ii, p := range positions {
		parts[ii] = strconv.FormatInt(p, 10)
	}
	return strings.Join(parts, ",")
}

func splitPositions(joined string) ([]int64, error) {
	if joined == "" {
		return nil, nil
	}
	parts := strings.Split(joined, ",")
	out := make([]int64, len(parts))
	for ii, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing position %q", part)
		}
		out[ii] = v
	}
	return out, nil
}

// GetDocument fetches one document row by doc_id.
func (s *Store) GetDocument(docID string) (Document, error) {
	var doc Document
	var metadata string
	err := s.db.QueryRow(s.rebind(
		`SELECT pk, doc_id, name, century_code, first_fpb_a, first_fpb_b, metadata, total_slots, created
		   FROM pbm_documents WHERE doc_id = ?`), docID).
		Scan(&doc.PK, &doc.DocID, &doc.Name, &doc.Century, &doc.FirstA, &doc.FirstB,
			&metadata, &doc.TotalSlots, &doc.Created)
	if err == sql.ErrNoRows {
		return Document{}, errors.WithMessagef(ErrNotFound, "document %s", docID)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "reading document %s", docID)
	}
	doc.Metadata = json.RawMessage(metadata)
	return doc, nil
}

// LoadPBM rebuilds the directional bond list of a document by union-selecting
// the three bond sub-tables, plus the opening pair.
func (s *Store) LoadPBM(docID string) (*PBM, error) {
	doc, err := s.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	table := bonds.New(bonds.LevelWordWord)
	rows, err := s.db.Query(s.rebind(
		`SELECT token_a, token_b, count FROM pbm_word_bonds WHERE doc_pk = ?
		 UNION ALL
		 SELECT token_a, token_b, count FROM pbm_char_bonds WHERE doc_pk = ?
		 UNION ALL
		 SELECT token_a, token_b, count FROM pbm_marker_bonds WHERE doc_pk = ?`),
		doc.PK, doc.PK, doc.PK)
	if err != nil {
		return nil, errors.Wrapf(err, "loading bonds for %s", docID)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var a, b string
		var count int64
		if err = rows.Scan(&a, &b, &count); err != nil {
			return nil, errors.Wrap(err, "scanning bond")
		}
		table.Add(a, b, count)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating bonds")
	}
	return &PBM{Bonds: table, FirstA: doc.FirstA, FirstB: doc.FirstB}, nil
}

// LoadPositions reconstructs the ordered token stream of a document: every
// (position, token_id) pair sorted ascending on position, plus the total
// slot count.
func (s *Store) LoadPositions(docID string) (ids []string, positions []int64, totalSlots int64, err error) {
	doc, err := s.GetDocument(docID)
	if err != nil {
		return nil, nil, 0, err
	}
	rows, err := s.db.Query(s.rebind(
		`SELECT token_id, positions FROM pbm_positions WHERE doc_pk = ?`), doc.PK)
	if err != nil {
		return nil, nil, 0, errors.Wrapf(err, "loading positions for %s", docID)
	}
	defer func() { _ = rows.Close() }()
	type posTok struct {
		pos int64
		id  string
	}
	var all []posTok
	for rows.Next() {
		var id, joined string
		if err = rows.Scan(&id, &joined); err != nil {
			return nil, nil, 0, errors.Wrap(err, "scanning positions")
		}
		list, err := splitPositions(joined)
		if err != nil {
			return nil, nil, 0, err
		}
		for _, p := range list {
			all = append(all, posTok{pos: p, id: id})
		}
	}
	if err = rows.Err(); err != nil {
		return nil, nil, 0, errors.Wrap(err, "iterating positions")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].pos < all[j].pos })
	ids = make([]string, len(all))
	positions = make([]int64, len(all))
	for ii, pt := range all {
		ids[ii], positions[ii] = pt.id, pt.pos
	}
	return ids, positions, doc.TotalSlots, nil
}

// StoreDocumentMetadata replaces the document's metadata JSON wholesale.
func (s *Store) StoreDocumentMetadata(docPK int64, metadata json.RawMessage) error {
	if !json.Valid(metadata) {
		return errors.Errorf("metadata for document %d is not valid JSON", docPK)
	}
	res, err := s.db.Exec(s.rebind(
		`UPDATE pbm_documents SET metadata = ? WHERE pk = ?`), string(metadata), docPK)
	if err != nil {
		return errors.Wrapf(err, "storing metadata for document %d", docPK)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.WithMessagef(ErrNotFound, "document pk %d", docPK)
	}
	return nil
}

// UpdateMetadata merges set into the stored metadata object and then removes
// removeKeys, returning how many fields each step touched.
func (s *Store) UpdateMetadata(docPK int64, set map[string]any, removeKeys []string) (fieldsSet, fieldsRemoved int, err error) {
	err = s.withTx(func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRow(s.rebind(
			`SELECT metadata FROM pbm_documents WHERE pk = ?`), docPK).Scan(&raw)
		if err == sql.ErrNoRows {
			return errors.WithMessagef(ErrNotFound, "document pk %d", docPK)
		}
		if err != nil {
			return errors.Wrapf(err, "reading metadata for document %d", docPK)
		}
		meta := make(map[string]any)
		if raw != "" {
			if err = json.Unmarshal([]byte(raw), &meta); err != nil {
				return errors.Wrapf(err, "decoding metadata for document %d", docPK)
			}
		}
		for k, v := range set {
			meta[k] = v
			fieldsSet++
		}
		for _, k := range removeKeys {
			if _, ok := meta[k]; ok {
				delete(meta, k)
				fieldsRemoved++
			}
		}
		encoded, err := json.Marshal(meta)
		if err != nil {
			return errors.Wrap(err, "encoding metadata")
		}
		_, err = tx.Exec(s.rebind(
			`UPDATE pbm_documents SET metadata = ? WHERE pk = ?`), string(encoded), docPK)
		return errors.Wrapf(err, "writing metadata for document %d", docPK)
	})
	if err != nil {
		return 0, 0, err
	}
	return fieldsSet, fieldsRemoved, nil
}

func insertProvenance(tx *sql.Tx, s *Store, docPK int64, prov *Provenance) error {
	_, err := tx.Exec(s.rebind(
		`INSERT INTO document_provenance (doc_pk, title, authors, subjects, bookshelves, languages, copyright, catalog_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		docPK, prov.Title, joinList(prov.Authors), joinList(prov.Subjects),
		joinList(prov.Bookshelves), joinList(prov.Languages), prov.Copyright, prov.CatalogID)
	return errors.Wrapf(err, "inserting provenance for document %d", docPK)
}

// StoreProvenance upserts the provenance record of a document.
func (s *Store) StoreProvenance(docPK int64, prov *Provenance) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(s.rebind(
			`DELETE FROM document_provenance WHERE doc_pk = ?`), docPK); err != nil {
			return errors.Wrapf(err, "replacing provenance for document %d", docPK)
		}
		return insertProvenance(tx, s, docPK, prov)
	})
}

// GetProvenance fetches the provenance record, ErrNotFound when the document
// has none.
func (s *Store) GetProvenance(docPK int64) (*Provenance, error) {
	var prov Provenance
	var authors, subjects, bookshelves, languages string
	err := s.db.QueryRow(s.rebind(
		`SELECT title, authors, subjects, bookshelves, languages, copyright, catalog_id
		   FROM document_provenance WHERE doc_pk = ?`), docPK).
		Scan(&prov.Title, &authors, &subjects, &bookshelves, &languages, &prov.Copyright, &prov.CatalogID)
	if err == sql.ErrNoRows {
		return nil, errors.WithMessagef(ErrNotFound, "provenance for document %d", docPK)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading provenance for document %d", docPK)
	}
	prov.Authors = splitList(authors)
	prov.Subjects = splitList(subjects)
	prov.Bookshelves = splitList(bookshelves)
	prov.Languages = splitList(languages)
	return &prov, nil
}

// DocumentSummary is one row of the document listing.
type DocumentSummary struct {
	DocID    string `json:"doc_id"`
	Name     string `json:"name"`
	Starters int64  `json:"starters"`
	Bonds    int64  `json:"bonds"`
}

// ListDocuments returns every stored document with its starter and bond row
// counts, ordered by pk.
func (s *Store) ListDocuments() ([]DocumentSummary, error) {
	rows, err := s.db.Query(
		`SELECT d.pk, d.doc_id, d.name,
		        (SELECT COUNT(*) FROM pbm_starters st WHERE st.doc_pk = d.pk),
		        (SELECT COUNT(*) FROM pbm_word_bonds wb WHERE wb.doc_pk = d.pk) +
		        (SELECT COUNT(*) FROM pbm_char_bonds cb WHERE cb.doc_pk = d.pk) +
		        (SELECT COUNT(*) FROM pbm_marker_bonds mb WHERE mb.doc_pk = d.pk)
		   FROM pbm_documents d ORDER BY d.pk`)
	if err != nil {
		return nil, errors.Wrap(err, "listing documents")
	}
	defer func() { _ = rows.Close() }()
	var out []DocumentSummary
	for rows.Next() {
		var pk int64
		var ds DocumentSummary
		if err = rows.Scan(&pk, &ds.DocID, &ds.Name, &ds.Starters, &ds.Bonds); err != nil {
			return nil, errors.Wrap(err, "scanning document summary")
		}
		out = append(out, ds)
	}
	return out, errors.Wrap(rows.Err(), "iterating documents")
}

// GetAllStarters returns every starter token of a document, ordered.
func (s *Store) GetAllStarters(docPK int64) ([]string, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT token_a FROM pbm_starters WHERE doc_pk = ? ORDER BY token_a`), docPK)
	if err != nil {
		return nil, errors.Wrapf(err, "reading starters for document %d", docPK)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var tok string
		if err = rows.Scan(&tok); err != nil {
			return nil, errors.Wrap(err, "scanning starter")
		}
		out = append(out, tok)
	}
	return out, errors.Wrap(rows.Err(), "iterating starters")
}

// GetBondsForToken returns every bond of a document whose token_a matches,
// across the three sub-tables.
func (s *Store) GetBondsForToken(docPK int64, tokenA string) ([]BondRow, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT token_b, count FROM pbm_word_bonds WHERE doc_pk = ? AND token_a = ?
		 UNION ALL
		 SELECT token_b, count FROM pbm_char_bonds WHERE doc_pk = ? AND token_a = ?
		 UNION ALL
		 SELECT token_b, count FROM pbm_marker_bonds WHERE doc_pk = ? AND token_a = ?
		 ORDER BY count DESC, token_b`),
		docPK, tokenA, docPK, tokenA, docPK, tokenA)
	if err != nil {
		return nil, errors.Wrapf(err, "reading bonds for %s", tokenA)
	}
	defer func() { _ = rows.Close() }()
	var out []BondRow
	for rows.Next() {
		var br BondRow
		if err = rows.Scan(&br.TokenB, &br.Count); err != nil {
			return nil, errors.Wrap(err, "scanning bond row")
		}
		out = append(out, br)
	}
	return out, errors.Wrap(rows.Err(), "iterating bond rows")
}

// Known metadata keys routed to provenance. Everything else is retained
// verbatim under "unreviewed" in the stored metadata.
var provenanceKeys = map[string]bool{
	"title": true, "authors": true, "subjects": true, "bookshelves": true,
	"languages": true, "copyright": true, "catalog_id": true,
}

// routeMetadata splits a caller-supplied metadata object into the
// provenance record and the stored metadata JSON.
func routeMetadata(metadata map[string]any) (*Provenance, json.RawMessage, error) {
	if len(metadata) == 0 {
		return nil, json.RawMessage("{}"), nil
	}
	prov := &Provenance{}
	hasProv := false
	unreviewed := make(map[string]any)
	for k, v := range metadata {
		if !provenanceKeys[k] {
			unreviewed[k] = v
			continue
		}
		hasProv = true
		switch k {
		case "title":
			prov.Title = asString(v)
		case "copyright":
			prov.Copyright = asString(v)
		case "catalog_id":
			prov.CatalogID = asString(v)
		case "authors":
			prov.Authors = asStringList(v)
		case "subjects":
			prov.Subjects = asStringList(v)
		case "bookshelves":
			prov.Bookshelves = asStringList(v)
		case "languages":
			prov.Languages = asStringList(v)
		}
	}
	stored := map[string]any{}
	if len(unreviewed) > 0 {
		stored["unreviewed"] = unreviewed
	}
	encoded, err := json.Marshal(stored)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding metadata")
	}
	if !hasProv {
		prov = nil
	}
	return prov, encoded, nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, _ := json.Marshal(v)
	return string(encoded)
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	default:
		return []string{asString(v)}
	}
}

const listSeparator = "\x1f"

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, listSeparator)
}
