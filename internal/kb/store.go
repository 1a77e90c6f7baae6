package kb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"dav/internal/fol"
	"dav/internal/logging"
)

// formatVersion is bumped whenever the on-disk schema changes.
const formatVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    version      INTEGER NOT NULL,
    record_count INTEGER NOT NULL,
    distance_provider TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS axioms (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lhs_index (
    arity    TEXT NOT NULL,
    axiom_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rhs_index (
    arity    TEXT NOT NULL,
    axiom_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS properties (
    arity    TEXT NOT NULL,
    property TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS distances (
    arity_a TEXT NOT NULL,
    arity_b TEXT NOT NULL,
    dist    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lhs ON lhs_index(arity);
CREATE INDEX IF NOT EXISTS idx_rhs ON rhs_index(arity);
CREATE INDEX IF NOT EXISTS idx_dist ON distances(arity_a, arity_b);
`

// Save persists the compiled base to <dir>/kb.sqlite, replacing any
// previous compilation.
func (b *KnowledgeBase) Save(dir string) error {
	timer := logging.StartTimer(logging.CategoryKB, "Save")
	defer timer.Stop()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kb: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "kb.sqlite")
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("kb: remove stale %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("kb: open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("kb: create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("kb: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO meta (version, record_count, distance_provider) VALUES (?, ?, ?)`,
		formatVersion, len(b.axioms), b.distanceProvider); err != nil {
		return err
	}

	for _, r := range b.axioms {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("kb: encode axiom %q: %w", r.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO axioms (id, name, body) VALUES (?, ?, ?)`,
			int(r.ID), r.Name, string(body)); err != nil {
			return err
		}
	}

	for _, arity := range sortedArities(b.lhsIndex) {
		for _, id := range b.lhsIndex[arity] {
			if _, err := tx.Exec(`INSERT INTO lhs_index (arity, axiom_id) VALUES (?, ?)`, arity, int(id)); err != nil {
				return err
			}
		}
	}
	for _, arity := range sortedArities(b.rhsIndex) {
		for _, id := range b.rhsIndex[arity] {
			if _, err := tx.Exec(`INSERT INTO rhs_index (arity, axiom_id) VALUES (?, ?)`, arity, int(id)); err != nil {
				return err
			}
		}
	}

	for pid, props := range b.props {
		arity := b.lib.ArityOf(pid)
		for p := fol.Irreflexive; p <= fol.RightUnique; p++ {
			if props.Has(p) {
				if _, err := tx.Exec(`INSERT INTO properties (arity, property) VALUES (?, ?)`, arity, p.String()); err != nil {
					return err
				}
			}
		}
	}

	for key, d := range b.dists {
		if _, err := tx.Exec(
			`INSERT INTO distances (arity_a, arity_b, dist) VALUES (?, ?, ?)`,
			b.lib.ArityOf(key[0]), b.lib.ArityOf(key[1]), d); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Open loads a compiled base from <dir>/kb.sqlite, interning every
// predicate into lib.
func Open(dir string, lib *fol.PredicateLibrary) (*KnowledgeBase, error) {
	timer := logging.StartTimer(logging.CategoryKB, "Open")
	defer timer.Stop()

	path := filepath.Join(dir, "kb.sqlite")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("kb: no compiled base at %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kb: open %s: %w", path, err)
	}
	defer db.Close()

	base := &KnowledgeBase{
		lib:      lib,
		lhsIndex: make(map[string][]fol.RuleID),
		rhsIndex: make(map[string][]fol.RuleID),
		props:    make(map[fol.PredicateID]fol.PropertySet),
		dists:    make(map[distKey]float64),
	}

	var version, count int
	if err := db.QueryRow(`SELECT version, record_count, distance_provider FROM meta`).
		Scan(&version, &count, &base.distanceProvider); err != nil {
		return nil, fmt.Errorf("kb: read meta: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("kb: unsupported format version %d", version)
	}

	rows, err := db.Query(`SELECT id, body FROM axioms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var r fol.Rule
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("kb: decode axiom %d: %w", id, err)
		}
		if int(r.ID) != len(base.axioms) {
			return nil, fmt.Errorf("kb: axiom ids not dense at %d", id)
		}
		lib.InternRule(&r)
		base.axioms = append(base.axioms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(base.axioms) != count {
		return nil, fmt.Errorf("kb: axiom count %d does not match header %d", len(base.axioms), count)
	}

	loadIndex := func(table string, into map[string][]fol.RuleID) error {
		rows, err := db.Query(`SELECT arity, axiom_id FROM ` + table + ` ORDER BY arity, axiom_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var arity string
			var id int
			if err := rows.Scan(&arity, &id); err != nil {
				return err
			}
			into[arity] = append(into[arity], fol.RuleID(id))
		}
		return rows.Err()
	}
	if err := loadIndex("lhs_index", base.lhsIndex); err != nil {
		return nil, err
	}
	if err := loadIndex("rhs_index", base.rhsIndex); err != nil {
		return nil, err
	}

	prows, err := db.Query(`SELECT arity, property FROM properties`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var arity, prop string
		if err := prows.Scan(&arity, &prop); err != nil {
			return nil, err
		}
		p, err := fol.ParseProperty(prop)
		if err != nil {
			return nil, fmt.Errorf("kb: %w", err)
		}
		pid := internArity(lib, arity)
		set := base.props[pid]
		if set == nil {
			set = make(fol.PropertySet)
		}
		set[p] = true
		base.props[pid] = set
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	drows, err := db.Query(`SELECT arity_a, arity_b, dist FROM distances`)
	if err != nil {
		return nil, err
	}
	defer drows.Close()
	for drows.Next() {
		var a, c string
		var d float64
		if err := drows.Scan(&a, &c, &d); err != nil {
			return nil, err
		}
		base.dists[newDistKey(internArity(lib, a), internArity(lib, c))] = d
	}
	return base, drows.Err()
}

// internArity splits a "predicate/n" key and interns it.
func internArity(lib *fol.PredicateLibrary, arity string) fol.PredicateID {
	if id := lib.Lookup(arity); id != fol.InvalidPredicateID {
		return id
	}
	// Keys are produced by Atom.Arity, so the final '/' always separates
	// the count.
	for i := len(arity) - 1; i >= 0; i-- {
		if arity[i] == '/' {
			n := 0
			for _, ch := range arity[i+1:] {
				n = n*10 + int(ch-'0')
			}
			return lib.Intern(arity[:i], n)
		}
	}
	return lib.Intern(arity, 0)
}
