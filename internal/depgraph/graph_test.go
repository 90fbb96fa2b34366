package depgraph

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

type fakeVersion struct {
	node Node
	deps []Edge
}

// fakeSource is an in-memory graph keyed by lower-cased package id.
type fakeSource struct {
	packages map[string][]fakeVersion
	nextKey  int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{packages: make(map[string][]fakeVersion)}
}

func (f *fakeSource) add(id, ver string, deps ...Edge) Node {
	f.nextKey++
	n := Node{ID: id, Version: ver, Key: f.nextKey}
	k := strings.ToLower(id)
	f.packages[k] = append(f.packages[k], fakeVersion{node: n, deps: deps})
	return n
}

func (f *fakeSource) Versions(id string) ([]Node, bool, error) {
	versions, ok := f.packages[strings.ToLower(id)]
	var out []Node
	for _, v := range versions {
		out = append(out, v.node)
	}
	return out, ok, nil
}

func (f *fakeSource) Dependencies(n Node) ([]Edge, error) {
	for _, v := range f.packages[strings.ToLower(n.ID)] {
		if v.node.Key == n.Key {
			return v.deps, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) Dependents(id string) ([]Dependent, error) {
	var out []Dependent
	for _, versions := range f.packages {
		for _, v := range versions {
			for _, e := range v.deps {
				if strings.EqualFold(e.ID, id) {
					out = append(out, Dependent{From: v.node, MinVersion: e.MinVersion})
				}
			}
		}
	}
	return out, nil
}

func TestValidateManifestDependencies_Acyclic(t *testing.T) {
	src := newFakeSource()
	src.add("C", "1.0")
	src.add("B", "2.0", Edge{ID: "C", MinVersion: "1.0"})

	if err := ValidateManifestDependencies(src, "A", []Edge{{ID: "B", MinVersion: "1.5"}}); err != nil {
		t.Fatalf("ValidateManifestDependencies() failed: %v", err)
	}
}

func TestValidateManifestDependencies_Cycle(t *testing.T) {
	src := newFakeSource()
	src.add("A", "1.0")
	src.add("C", "1.0", Edge{ID: "A"})
	src.add("B", "1.0", Edge{ID: "C"})

	err := ValidateManifestDependencies(src, "A", []Edge{{ID: "B"}})
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Fatalf("ValidateManifestDependencies() error = %v, want ErrDependenciesValidationFailed", err)
	}

	var depErr *catalogerr.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("error %T is not a *DependencyError", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "A"}, depErr.Chain); diff != "" {
		t.Errorf("Chain mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateManifestDependencies_CycleNotThroughRoot(t *testing.T) {
	src := newFakeSource()
	src.add("C", "1.0", Edge{ID: "B"})
	src.add("B", "1.0", Edge{ID: "C"})

	err := ValidateManifestDependencies(src, "A", []Edge{{ID: "B"}})
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Fatalf("ValidateManifestDependencies() error = %v, want ErrDependenciesValidationFailed", err)
	}
}

func TestValidateManifestDependencies_SelfDependency(t *testing.T) {
	src := newFakeSource()
	err := ValidateManifestDependencies(src, "Contoso.App", []Edge{{ID: "contoso.app"}})
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Fatalf("ValidateManifestDependencies() error = %v, want ErrDependenciesValidationFailed", err)
	}
}

func TestValidateManifestDependencies_MissingPackage(t *testing.T) {
	src := newFakeSource()
	src.add("B", "1.0", Edge{ID: "Gone"})

	err := ValidateManifestDependencies(src, "A", []Edge{{ID: "Nope"}})
	if !errors.Is(err, catalogerr.ErrMissingPackage) {
		t.Errorf("direct: error = %v, want ErrMissingPackage", err)
	}

	err = ValidateManifestDependencies(src, "A", []Edge{{ID: "B"}})
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Errorf("transitive: error = %v, want ErrDependenciesValidationFailed", err)
	}
	if errors.Is(err, catalogerr.ErrMissingPackage) {
		t.Errorf("transitive: error = %v should not match ErrMissingPackage", err)
	}
}

func TestValidateManifestDependencies_MinVersion(t *testing.T) {
	src := newFakeSource()
	src.add("B", "1.0")
	src.add("B", "1.9")

	err := ValidateManifestDependencies(src, "A", []Edge{{ID: "B", MinVersion: "1.10"}})
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Errorf("error = %v, want ErrDependenciesValidationFailed", err)
	}
	if !errors.Is(err, catalogerr.ErrMissingVersion) {
		t.Errorf("error = %v, want it to also match ErrMissingVersion", err)
	}

	if err := ValidateManifestDependencies(src, "A", []Edge{{ID: "b", MinVersion: "1.9"}}); err != nil {
		t.Errorf("ValidateManifestDependencies() with satisfied bound failed: %v", err)
	}
}

func TestValidateManifestDependencies_FollowsHighestSatisfyingVersion(t *testing.T) {
	src := newFakeSource()
	src.add("A", "1.0")
	// Only the old version of B loops back to A.
	src.add("B", "1.0", Edge{ID: "A"})
	src.add("B", "2.0")

	if err := ValidateManifestDependencies(src, "A", []Edge{{ID: "B"}}); err != nil {
		t.Fatalf("ValidateManifestDependencies() failed: %v", err)
	}
}

func TestVerifyDependenciesStructureForManifestDelete(t *testing.T) {
	src := newFakeSource()
	lib10 := src.add("Lib", "1.0")
	lib20 := src.add("Lib", "2.0")
	src.add("App", "1.0", Edge{ID: "lib", MinVersion: "1.5"})

	if err := VerifyDependenciesStructureForManifestDelete(src, lib10); err != nil {
		t.Errorf("removing an unneeded version failed: %v", err)
	}

	err := VerifyDependenciesStructureForManifestDelete(src, lib20)
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Errorf("removing the only satisfying version: error = %v, want ErrDependenciesValidationFailed", err)
	}

	src.add("Lib", "3.0")
	if err := VerifyDependenciesStructureForManifestDelete(src, lib20); err != nil {
		t.Errorf("removing with another satisfying version left failed: %v", err)
	}
}

func TestVerifyDependenciesStructureForManifestReplace(t *testing.T) {
	src := newFakeSource()
	foo := src.add("Foo", "2.0")
	src.add("App", "1.0", Edge{ID: "foo", MinVersion: "2.0"})

	tests := []struct {
		name       string
		newVersion string
		wantErr    bool
	}{
		{name: "upgrade", newVersion: "2.1"},
		{name: "same bound", newVersion: "2.0.0"},
		{name: "downgrade below bound", newVersion: "1.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyDependenciesStructureForManifestReplace(src, foo, tt.newVersion)
			if tt.wantErr {
				if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
					t.Errorf("error = %v, want ErrDependenciesValidationFailed", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestInstallOrder(t *testing.T) {
	src := newFakeSource()
	src.add("Runtime", "1.0")
	src.add("Runtime", "2.0")
	src.add("Lib", "1.0", Edge{ID: "runtime", MinVersion: "2.0"})
	src.add("App", "1.0", Edge{ID: "Lib"}, Edge{ID: "Runtime"})

	order, err := InstallOrder(src, "App")
	if err != nil {
		t.Fatalf("InstallOrder() failed: %v", err)
	}

	var got []string
	for _, n := range order {
		got = append(got, n.ID+"@"+n.Version)
	}
	want := []string{"Runtime@2.0", "Lib@1.0", "App@1.0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InstallOrder() mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallOrder_UnknownPackage(t *testing.T) {
	_, err := InstallOrder(newFakeSource(), "Missing")
	if !errors.Is(err, catalogerr.ErrNotFound) {
		t.Errorf("InstallOrder() error = %v, want ErrNotFound", err)
	}
}
