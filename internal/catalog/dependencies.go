package catalog

import (
	"fmt"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/depgraph"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// graphSource presents the stored dependency graph to depgraph.
type graphSource struct {
	q store.Querier
	s *schema
}

func (c *Catalog) graph(q store.Querier) depgraph.Source {
	return graphSource{q: q, s: c.schema}
}

func (g graphSource) Versions(id string) ([]depgraph.Node, bool, error) {
	rows, err := g.q.Query(fmt.Sprintf(`SELECT m.rowid, i.id, v.version FROM %s m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		WHERE i.id = ?`, g.s.primary), id)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var nodes []depgraph.Node
	for rows.Next() {
		var n depgraph.Node
		if err := rows.Scan(&n.Key, &n.ID, &n.Version); err != nil {
			return nil, false, err
		}
		nodes = append(nodes, n)
	}
	return nodes, len(nodes) > 0, rows.Err()
}

func (g graphSource) Dependencies(n depgraph.Node) ([]depgraph.Edge, error) {
	deps, err := readDependencies(g.q, n.Key)
	if err != nil {
		return nil, err
	}
	edges := make([]depgraph.Edge, len(deps))
	for i, d := range deps {
		edges[i] = depgraph.Edge{ID: d.id, MinVersion: d.minVersion}
	}
	return edges, nil
}

func (g graphSource) Dependents(id string) ([]depgraph.Dependent, error) {
	rows, err := g.q.Query(fmt.Sprintf(`SELECT m.rowid, mi.id, mv.version, COALESCE(dv.version, '') FROM dependencies d
		JOIN ids di ON di.rowid = d.package_id
		JOIN %s m ON m.rowid = d.manifest
		JOIN ids mi ON mi.rowid = m.id
		JOIN versions mv ON mv.rowid = m.version
		LEFT JOIN versions dv ON dv.rowid = d.min_version
		WHERE di.id = ?
		ORDER BY m.rowid`, g.s.primary), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []depgraph.Dependent
	for rows.Next() {
		var d depgraph.Dependent
		if err := rows.Scan(&d.From.Key, &d.From.ID, &d.From.Version, &d.MinVersion); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Catalog) validateDependencies(q store.Querier, rec *record) error {
	if !c.schema.dependencies || len(rec.deps) == 0 {
		return nil
	}
	edges := make([]depgraph.Edge, len(rec.deps))
	for i, d := range rec.deps {
		edges[i] = depgraph.Edge{ID: d.id, MinVersion: d.minVersion}
	}
	return depgraph.ValidateManifestDependencies(c.graph(q), rec.id, edges)
}

// Dependencies returns the package dependencies declared by a manifest.
func (c *Catalog) Dependencies(id ManifestID) ([]depgraph.Edge, error) {
	if !c.schema.dependencies {
		return nil, nil
	}
	return c.graph(c.db()).Dependencies(depgraph.Node{Key: int64(id)})
}

// Dependents returns every stored version that depends on package pkgID.
func (c *Catalog) Dependents(pkgID string) ([]depgraph.Dependent, error) {
	if !c.schema.dependencies {
		return nil, nil
	}
	return c.graph(c.db()).Dependents(pkgID)
}

// InstallOrder returns the versions pkgID needs, dependencies first, ending
// with the newest version of pkgID itself.
func (c *Catalog) InstallOrder(pkgID string) ([]depgraph.Node, error) {
	if !c.schema.dependencies {
		nodes, ok, err := c.graph(c.db()).Versions(pkgID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalogerr.ErrNotFound, pkgID)
		}
		best := nodes[0]
		for _, n := range nodes[1:] {
			if version.Compare(n.Version, best.Version) > 0 {
				best = n
			}
		}
		return []depgraph.Node{best}, nil
	}
	return depgraph.InstallOrder(c.graph(c.db()), pkgID)
}
