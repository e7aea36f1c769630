// Package store keeps a sqlite ledger of tree builds.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quillaja/bhtree/internal/tree"
)

/*
one row per build in "builds", and optionally the whole threaded tree of a
step in "nodes", one row per node in traversal order.

sqlite allows only one writer at a time, so the pool is limited to a single
connection and concurrent recorders simply queue.
*/

const schema = `
CREATE TABLE builds (
	step 		INTEGER PRIMARY KEY,
	bodies 		INTEGER,
	cells 		INTEGER,
	allocated 	INTEGER,
	maxlevel 	INTEGER,
	rsize 		REAL,
	mass 		REAL,
	cmx 		REAL,
	cmy 		REAL,
	cmz 		REAL,
	nanos 		INTEGER);

CREATE TABLE nodes (
	step 	INTEGER,
	seq 	INTEGER, -- position in the threaded order
	kind 	INTEGER, -- 1 body, 2 cell
	idx 	INTEGER, -- body index or cell index
	x 		REAL,
	y 		REAL,
	z 		REAL,
	mass 	REAL,
	rcrit2 	REAL);
`

const indices = `
CREATE INDEX IF NOT EXISTS idx_nodes_step ON nodes (step, seq);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes (kind);
`

const insertBuild = `INSERT INTO builds VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
const insertNode = `INSERT INTO nodes VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
const queryBuilds = `SELECT * FROM builds ORDER BY step ASC;`
const queryNodes = `SELECT seq, kind, idx, x, y, z, mass, rcrit2 FROM nodes WHERE step = ? ORDER BY seq ASC;`

// ErrExists is returned by Open when the ledger file is already there.
var ErrExists = errors.New("ledger already exists")

// Store is an open ledger.
type Store struct {
	db *sql.DB
}

// Build is one row of the builds table.
type Build struct {
	Step  int
	Stats tree.Stats
}

// Node is one node of a threaded tree as stored in the nodes table.
type Node struct {
	Seq    int
	Kind   tree.Kind
	Index  int32
	Pos    mgl64.Vec3
	Mass   float64
	Rcrit2 float64
}

// Open creates a new ledger in filename. It refuses to touch an existing
// file.
func Open(filename string) (*Store, error) {
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, filename)
	}

	db, err := sql.Open("sqlite3", "file:"+filename+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateIndices runs the create index statements. It is cheaper to call
// once after all nodes are written.
func (s *Store) CreateIndices() error {
	_, err := s.db.Exec(indices)
	return err
}

// RecordBuild writes the summary of one build.
func (s *Store) RecordBuild(step int, st tree.Stats) error {
	_, err := s.db.Exec(insertBuild,
		step,
		st.Bodies,
		st.Cells,
		st.Allocated,
		st.MaxLevel,
		st.RootSize,
		st.Mass,
		st.COM[0],
		st.COM[1],
		st.COM[2],
		st.Elapsed.Nanoseconds())
	if err != nil {
		return fmt.Errorf("record build %d: %w", step, err)
	}
	return nil
}

// Builds reads back every build in step order.
func (s *Store) Builds() ([]Build, error) {
	rows, err := s.db.Query(queryBuilds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		var nanos int64
		err := rows.Scan(
			&b.Step,
			&b.Stats.Bodies,
			&b.Stats.Cells,
			&b.Stats.Allocated,
			&b.Stats.MaxLevel,
			&b.Stats.RootSize,
			&b.Stats.Mass,
			&b.Stats.COM[0],
			&b.Stats.COM[1],
			&b.Stats.COM[2],
			&nanos)
		if err != nil {
			return nil, err
		}
		b.Stats.Elapsed = time.Duration(nanos)
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Snapshot copies a built tree into rows in threaded order, so that it can
// be recorded after the tree has been rebuilt.
func Snapshot(tr *tree.Tree) []Node {
	nodes := make([]Node, 0, tr.CellsUsed()+tr.Stats().Bodies)
	tr.Walk(func(r tree.Ref) bool {
		nodes = append(nodes, Node{
			Seq:    len(nodes),
			Kind:   r.Kind,
			Index:  r.Index,
			Pos:    tr.Pos(r),
			Mass:   tr.Mass(r),
			Rcrit2: tr.Rcrit2(r),
		})
		return true
	})
	return nodes
}

// RecordNodes writes a snapshot in one transaction.
func (s *Store) RecordNodes(step int, nodes []Node) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(insertNode)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		_, err = stmt.Exec(
			step,
			n.Seq,
			int(n.Kind),
			n.Index,
			n.Pos[0],
			n.Pos[1],
			n.Pos[2],
			n.Mass,
			n.Rcrit2)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record nodes of step %d: %w", step, err)
		}
	}
	return tx.Commit()
}

// Nodes reads back the snapshot recorded for step.
func (s *Store) Nodes(step int) ([]Node, error) {
	rows, err := s.db.Query(queryNodes, step)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		var kind int
		err := rows.Scan(&n.Seq, &kind, &n.Index, &n.Pos[0], &n.Pos[1], &n.Pos[2], &n.Mass, &n.Rcrit2)
		if err != nil {
			return nil, err
		}
		n.Kind = tree.Kind(kind)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
