// Package depgraph validates the package dependency graph of a catalog.
//
// The graph is read through a Source so the checks run against whatever
// state the caller presents, typically a catalog mid-transaction. Package
// ids are compared case-insensitively: "Contoso.Lib" and "contoso.lib" are
// the same node.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// Node is one stored package version.
type Node struct {
	ID      string
	Version string
	Key     int64 // manifest row
}

// Edge is a dependency on a package, optionally bounded below.
type Edge struct {
	ID         string
	MinVersion string
}

// Dependent is an edge seen from its target: From depends on the target
// package with the given bound.
type Dependent struct {
	From       Node
	MinVersion string
}

// Source exposes the stored graph.
type Source interface {
	// Versions lists every stored version of the package. ok is false when
	// the package does not exist at all.
	Versions(id string) (nodes []Node, ok bool, err error)
	// Dependencies lists the edges declared by n.
	Dependencies(n Node) ([]Edge, error)
	// Dependents lists every stored version that depends on package id.
	Dependents(id string) ([]Dependent, error)
}

func key(id string) string {
	return strings.ToLower(id)
}

func satisfies(v, min string) bool {
	return min == "" || version.Compare(v, min) >= 0
}

// best returns the highest version in nodes satisfying min.
func best(nodes []Node, min string) (Node, bool) {
	var (
		out   Node
		found bool
	)
	for _, n := range nodes {
		if !satisfies(n.Version, min) {
			continue
		}
		if !found || version.Compare(n.Version, out.Version) > 0 {
			out, found = n, true
		}
	}
	return out, found
}

const (
	white = iota
	gray
	black
)

type walker struct {
	src   Source
	root  string
	color map[string]int
	chain []string
}

// resolve picks the node an edge leads to.
func (w *walker) resolve(e Edge, direct bool) (Node, error) {
	nodes, ok, err := w.src.Versions(e.ID)
	if err != nil {
		return Node{}, fmt.Errorf("failed to read versions of %s: %w", e.ID, err)
	}
	chain := append(append([]string(nil), w.chain...), e.ID)
	if !ok || len(nodes) == 0 {
		if direct {
			return Node{}, &catalogerr.DependencyError{Kind: catalogerr.ErrMissingPackage, Package: e.ID, Chain: chain}
		}
		return Node{}, &catalogerr.DependencyError{
			Kind:    catalogerr.ErrDependenciesValidationFailed,
			Package: e.ID,
			Chain:   chain,
			Detail:  "required package does not exist",
		}
	}
	n, ok := best(nodes, e.MinVersion)
	if !ok {
		return Node{}, &catalogerr.DependencyError{
			Kind:    catalogerr.ErrDependenciesValidationFailed,
			Package: e.ID,
			Chain:   chain,
			Detail:  fmt.Sprintf("no version satisfies minimum %s", e.MinVersion),
			Also:    []error{catalogerr.ErrMissingVersion},
		}
	}
	return n, nil
}

func (w *walker) visit(e Edge, direct bool) error {
	k := key(e.ID)
	if k == w.root || w.color[k] == gray {
		return &catalogerr.DependencyError{
			Kind:    catalogerr.ErrDependenciesValidationFailed,
			Package: e.ID,
			Chain:   append(append([]string(nil), w.chain...), e.ID),
			Detail:  "dependency cycle",
		}
	}

	n, err := w.resolve(e, direct)
	if err != nil {
		return err
	}
	if w.color[k] == black {
		return nil
	}

	w.color[k] = gray
	w.chain = append(w.chain, e.ID)
	edges, err := w.src.Dependencies(n)
	if err != nil {
		return fmt.Errorf("failed to read dependencies of %s %s: %w", n.ID, n.Version, err)
	}
	for _, child := range edges {
		if err := w.visit(child, false); err != nil {
			return err
		}
	}
	w.chain = w.chain[:len(w.chain)-1]
	w.color[k] = black
	return nil
}

// ValidateManifestDependencies checks the edges a version of rootID is
// about to declare. Each edge resolves to the highest stored version
// meeting its bound and the walk continues from there. rootID's own stored
// edges are never followed since they are being replaced.
func ValidateManifestDependencies(src Source, rootID string, edges []Edge) error {
	w := &walker{
		src:   src,
		root:  key(rootID),
		color: make(map[string]int),
		chain: []string{rootID},
	}
	for _, e := range edges {
		if err := w.visit(e, true); err != nil {
			return err
		}
	}
	return nil
}

// VerifyDependenciesStructureForManifestDelete checks that removing node
// leaves every dependent that relied on it with another satisfying version.
func VerifyDependenciesStructureForManifestDelete(src Source, node Node) error {
	return verifyDependents(src, node, nil)
}

// VerifyDependenciesStructureForManifestReplace checks that rewriting node
// in place as newVersion leaves every dependent that relied on it with a
// satisfying version, either newVersion or another stored one.
func VerifyDependenciesStructureForManifestReplace(src Source, node Node, newVersion string) error {
	return verifyDependents(src, node, &Node{ID: node.ID, Version: newVersion, Key: node.Key})
}

func verifyDependents(src Source, node Node, replacement *Node) error {
	dependents, err := src.Dependents(node.ID)
	if err != nil {
		return fmt.Errorf("failed to read dependents of %s: %w", node.ID, err)
	}
	if len(dependents) == 0 {
		return nil
	}

	versions, _, err := src.Versions(node.ID)
	if err != nil {
		return fmt.Errorf("failed to read versions of %s: %w", node.ID, err)
	}
	remaining := versions[:0:0]
	for _, v := range versions {
		if v.Key != node.Key {
			remaining = append(remaining, v)
		}
	}
	if replacement != nil {
		remaining = append(remaining, *replacement)
	}

	for _, d := range dependents {
		if d.From.Key == node.Key || key(d.From.ID) == key(node.ID) {
			continue
		}
		if !satisfies(node.Version, d.MinVersion) {
			continue
		}
		if _, ok := best(remaining, d.MinVersion); ok {
			continue
		}
		detail := "no remaining version"
		if d.MinVersion != "" {
			detail = fmt.Sprintf("no remaining version satisfies minimum %s", d.MinVersion)
		}
		return &catalogerr.DependencyError{
			Kind:    catalogerr.ErrDependenciesValidationFailed,
			Package: node.ID,
			Chain:   []string{d.From.ID, node.ID},
			Detail:  fmt.Sprintf("%s %s depends on it, %s", d.From.ID, d.From.Version, detail),
		}
	}
	return nil
}

// InstallOrder returns the versions rootID needs, dependencies before the
// packages that require them, ending with rootID itself.
func InstallOrder(src Source, rootID string) ([]Node, error) {
	nodes, ok, err := src.Versions(rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to read versions of %s: %w", rootID, err)
	}
	if !ok || len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", catalogerr.ErrNotFound, rootID)
	}
	root, _ := best(nodes, "")

	var (
		order []Node
		color = make(map[string]int)
		walk  func(n Node, chain []string) error
	)
	walk = func(n Node, chain []string) error {
		k := key(n.ID)
		color[k] = gray
		edges, err := src.Dependencies(n)
		if err != nil {
			return fmt.Errorf("failed to read dependencies of %s %s: %w", n.ID, n.Version, err)
		}
		edges = append([]Edge(nil), edges...)
		sort.SliceStable(edges, func(i, j int) bool { return key(edges[i].ID) < key(edges[j].ID) })
		for _, e := range edges {
			next := append(append([]string(nil), chain...), e.ID)
			switch color[key(e.ID)] {
			case gray:
				return &catalogerr.DependencyError{
					Kind:    catalogerr.ErrDependenciesValidationFailed,
					Package: e.ID,
					Chain:   next,
					Detail:  "dependency cycle",
				}
			case black:
				continue
			}
			versions, ok, err := src.Versions(e.ID)
			if err != nil {
				return fmt.Errorf("failed to read versions of %s: %w", e.ID, err)
			}
			if !ok {
				return &catalogerr.DependencyError{Kind: catalogerr.ErrMissingPackage, Package: e.ID, Chain: next}
			}
			child, ok := best(versions, e.MinVersion)
			if !ok {
				return &catalogerr.DependencyError{
					Kind:    catalogerr.ErrDependenciesValidationFailed,
					Package: e.ID,
					Chain:   next,
					Detail:  fmt.Sprintf("no version satisfies minimum %s", e.MinVersion),
					Also:    []error{catalogerr.ErrMissingVersion},
				}
			}
			if err := walk(child, next); err != nil {
				return err
			}
		}
		color[k] = black
		order = append(order, n)
		return nil
	}

	if err := walk(root, []string{root.ID}); err != nil {
		return nil, err
	}
	return order, nil
}
