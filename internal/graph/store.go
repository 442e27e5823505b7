package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id      TEXT PRIMARY KEY,
	source  TEXT NOT NULL,
	created TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	snapshot TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	id       TEXT NOT NULL,
	type     TEXT NOT NULL,
	name     TEXT NOT NULL,
	parent   TEXT NOT NULL,
	kind     TEXT NOT NULL,
	terminal TEXT NOT NULL,
	PRIMARY KEY (snapshot, id)
);
CREATE TABLE IF NOT EXISTS ports (
	snapshot TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	node     TEXT NOT NULL,
	side     TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	name     TEXT NOT NULL,
	type     TEXT NOT NULL,
	fan_in   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS literals (
	snapshot TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	node     TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	port     TEXT NOT NULL,
	value    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	snapshot TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	node     TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	snapshot  TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	from_node TEXT NOT NULL,
	from_port TEXT NOT NULL,
	to_node   TEXT NOT NULL,
	to_port   TEXT NOT NULL
);
`

const (
	sideIn  = "in"
	sideOut = "out"
)

// Store persists snapshots in a sqlite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and creates if needed) the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema in %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save writes a snapshot inside one transaction. A snapshot with the same
// id is replaced.
func (s *Store) Save(ctx context.Context, snap *Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"nodes", "ports", "literals", "metadata", "edges", "snapshots"} {
		col := "snapshot"
		if table == "snapshots" {
			col = "id"
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+col+" = ?", snap.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO snapshots (id, source, created) VALUES (?, ?, ?)`,
		snap.ID, snap.Source, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	for i, n := range snap.Nodes {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (snapshot, seq, id, type, name, parent, kind, terminal) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, string(n.ID), n.Type, n.Name, string(n.Parent), n.Kind, n.Terminal); err != nil {
			return fmt.Errorf("saving node %s: %w", n.ID, err)
		}
		for side, ports := range map[string][]Port{sideIn: n.Inputs, sideOut: n.Outputs} {
			for j, p := range ports {
				if _, err = tx.ExecContext(ctx,
					`INSERT INTO ports (snapshot, node, side, seq, name, type, fan_in) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					snap.ID, string(n.ID), side, j, p.Name, p.Type, boolInt(p.FanIn)); err != nil {
					return fmt.Errorf("saving port %s.%s: %w", n.ID, p.Name, err)
				}
			}
		}
		for j, l := range n.Literals {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO literals (snapshot, node, seq, port, value) VALUES (?, ?, ?, ?, ?)`,
				snap.ID, string(n.ID), j, l.Port, l.Value); err != nil {
				return fmt.Errorf("saving literal %s.%s: %w", n.ID, l.Port, err)
			}
		}
		for j, m := range n.Metadata {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO metadata (snapshot, node, seq, key, value) VALUES (?, ?, ?, ?, ?)`,
				snap.ID, string(n.ID), j, m.Key, m.Value); err != nil {
				return fmt.Errorf("saving metadata %s.%s: %w", n.ID, m.Key, err)
			}
		}
	}
	for i, e := range snap.Edges {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO edges (snapshot, seq, from_node, from_port, to_node, to_port) VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, i, string(e.From.Node), e.From.Port, string(e.To.Node), e.To.Port); err != nil {
			return fmt.Errorf("saving edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns the stored snapshot ids, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshots ORDER BY created, id`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Load reads a snapshot back.
func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	snap := &Snapshot{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT source FROM snapshots WHERE id = ?`, id).Scan(&snap.Source)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, parent, kind, terminal FROM nodes WHERE snapshot = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	index := make(map[NodeID]int)
	for rows.Next() {
		var n Node
		var nid, parent string
		if err := rows.Scan(&nid, &n.Type, &n.Name, &parent, &n.Kind, &n.Terminal); err != nil {
			rows.Close()
			return nil, err
		}
		n.ID, n.Parent = NodeID(nid), NodeID(parent)
		index[n.ID] = len(snap.Nodes)
		snap.Nodes = append(snap.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadPorts(ctx, snap, index); err != nil {
		return nil, err
	}
	if err := s.loadPairs(ctx, snap, index); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT from_node, from_port, to_node, to_port FROM edges WHERE snapshot = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fn, fp, tn, tp string
		if err := rows.Scan(&fn, &fp, &tn, &tp); err != nil {
			return nil, err
		}
		snap.Edges = append(snap.Edges, Edge{
			From: PortRef{Node: NodeID(fn), Port: fp},
			To:   PortRef{Node: NodeID(tn), Port: tp},
		})
	}
	return snap, rows.Err()
}

func (s *Store) loadPorts(ctx context.Context, snap *Snapshot, index map[NodeID]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node, side, name, type, fan_in FROM ports WHERE snapshot = ? ORDER BY node, side, seq`, snap.ID)
	if err != nil {
		return fmt.Errorf("loading ports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var node, side string
		var p Port
		var fanIn int
		if err := rows.Scan(&node, &side, &p.Name, &p.Type, &fanIn); err != nil {
			return err
		}
		p.FanIn = fanIn != 0
		i, ok := index[NodeID(node)]
		if !ok {
			continue
		}
		n := &snap.Nodes[i]
		switch side {
		case sideIn:
			n.Inputs = append(n.Inputs, p)
		case sideOut:
			n.Outputs = append(n.Outputs, p)
		}
	}
	return rows.Err()
}

func (s *Store) loadPairs(ctx context.Context, snap *Snapshot, index map[NodeID]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node, port, value FROM literals WHERE snapshot = ? ORDER BY node, seq`, snap.ID)
	if err != nil {
		return fmt.Errorf("loading literals: %w", err)
	}
	for rows.Next() {
		var node string
		var l Literal
		if err := rows.Scan(&node, &l.Port, &l.Value); err != nil {
			rows.Close()
			return err
		}
		if i, ok := index[NodeID(node)]; ok {
			snap.Nodes[i].Literals = append(snap.Nodes[i].Literals, l)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT node, key, value FROM metadata WHERE snapshot = ? ORDER BY node, seq`, snap.ID)
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var node string
		var m Metadata
		if err := rows.Scan(&node, &m.Key, &m.Value); err != nil {
			return err
		}
		if i, ok := index[NodeID(node)]; ok {
			snap.Nodes[i].Metadata = append(snap.Nodes[i].Metadata, m)
		}
	}
	return rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
