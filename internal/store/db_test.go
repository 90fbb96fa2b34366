package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(InMemory)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	testNames = ValueTable{Name: "names", Column: "name"}
	testIDs   = ValueTable{Name: "ids", Column: "id", NoCase: true}
	testTags  = MultiValueTable{Name: "tags", Column: "tag"}
	testCodes = MultiValueTable{Name: "productcodes", Column: "productcode", Scoped: true}
)

func TestValueTable_EnsureInternsOnce(t *testing.T) {
	s := newTestStore(t)
	if err := testNames.Create(s.DB()); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	first, err := testNames.Ensure(s.DB(), "Visual Studio Code")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	second, err := testNames.Ensure(s.DB(), "Visual Studio Code")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if first != second {
		t.Errorf("Ensure() returned %d then %d for the same value", first, second)
	}

	other, err := testNames.Ensure(s.DB(), "visual studio code")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if other == first {
		t.Error("case-sensitive table folded values differing only in case")
	}

	n, err := Count(s.DB(), "names")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestValueTable_NoCase(t *testing.T) {
	s := newTestStore(t)
	if err := testIDs.Create(s.DB()); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	id, err := testIDs.Ensure(s.DB(), "Contoso.App")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	found, ok, err := testIDs.Find(s.DB(), "contoso.app")
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if !ok || found != id {
		t.Fatalf("Find() = %d, %v; want %d, true", found, ok, id)
	}

	if err := testIDs.SetValue(s.DB(), id, "contoso.App"); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}
	got, err := testIDs.Value(s.DB(), id)
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if got != "contoso.App" {
		t.Errorf("Value() = %q, want %q", got, "contoso.App")
	}
}

func TestValueTable_Prune(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	if err := testNames.Create(db); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE manifest (rowid INTEGER PRIMARY KEY, name INT NOT NULL)"); err != nil {
		t.Fatalf("create manifest: %v", err)
	}

	used, _ := testNames.Ensure(db, "used")
	unused, _ := testNames.Ensure(db, "unused")
	if _, err := db.Exec("INSERT INTO manifest (name) VALUES (?)", used); err != nil {
		t.Fatalf("insert manifest: %v", err)
	}

	ref := Reference{Table: "manifest", Column: "name"}

	orphans, err := testNames.Orphans(db, ref)
	if err != nil {
		t.Fatalf("Orphans() failed: %v", err)
	}
	if diff := cmp.Diff([]int64{unused}, orphans); diff != "" {
		t.Errorf("Orphans() mismatch (-want +got):\n%s", diff)
	}

	deleted, err := testNames.Prune(db, used, ref)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted {
		t.Error("Prune() deleted a referenced value")
	}

	deleted, err = testNames.Prune(db, unused, ref)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if !deleted {
		t.Error("Prune() kept an unreferenced value")
	}
}

func TestMultiValueTable_Set(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	if err := testTags.Create(db); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := testTags.Set(db, 1, 0, []string{"editor", "ide", "editor"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := testTags.Set(db, 2, 0, []string{"editor"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := testTags.Values(db, 1)
	if err != nil {
		t.Fatalf("Values() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"editor", "ide"}, got); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}

	n, _ := Count(db, "tags")
	if n != 2 {
		t.Errorf("tags rows = %d, want 2 (shared value stored once)", n)
	}

	if err := testTags.Set(db, 1, 0, []string{"terminal"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	values, _ := Strings(db, "SELECT tag FROM tags ORDER BY tag")
	if diff := cmp.Diff([]string{"editor", "terminal"}, values); diff != "" {
		t.Errorf("tags after replace mismatch (-want +got):\n%s", diff)
	}

	if err := testTags.Remove(db, 2); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	values, _ = Strings(db, "SELECT tag FROM tags ORDER BY tag")
	if diff := cmp.Diff([]string{"terminal"}, values); diff != "" {
		t.Errorf("tags after remove mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiValueTable_ScopedValuesAreDistinct(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	if err := testCodes.Create(db); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := testCodes.Set(db, 1, 10, []string{"{ABC}"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := testCodes.Set(db, 2, 20, []string{"{ABC}"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := testCodes.Set(db, 3, 10, []string{"{ABC}"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	n, _ := Count(db, "productcodes")
	if n != 2 {
		t.Errorf("productcodes rows = %d, want 2", n)
	}

	orphans, err := testCodes.Orphans(db)
	if err != nil {
		t.Fatalf("Orphans() failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("Orphans() = %v, want none", orphans)
	}
}

func TestMultiValueTable_DanglingMaps(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	if err := testTags.Create(db); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE manifest (rowid INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create manifest: %v", err)
	}
	if _, err := db.Exec("INSERT INTO manifest (rowid) VALUES (1)"); err != nil {
		t.Fatalf("insert manifest: %v", err)
	}
	if err := testTags.Set(db, 1, 0, []string{"ok"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := testTags.Set(db, 7, 0, []string{"stale"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	dangling, err := testTags.DanglingMaps(db, "manifest")
	if err != nil {
		t.Fatalf("DanglingMaps() failed: %v", err)
	}
	if len(dangling) != 1 || dangling[0].Manifest != 7 {
		t.Fatalf("DanglingMaps() = %+v, want the row for manifest 7", dangling)
	}
	if err := testTags.DeleteMaps(db, dangling); err != nil {
		t.Fatalf("DeleteMaps() failed: %v", err)
	}
	orphans, _ := testTags.Orphans(db)
	if len(orphans) != 1 {
		t.Errorf("Orphans() after DeleteMaps = %v, want the stale value", orphans)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path    string
		want    []string
		wantErr bool
	}{
		{path: "manifests/c/Contoso/App/1.0.yaml", want: []string{"manifests", "c", "Contoso", "App", "1.0.yaml"}},
		{path: `manifests\c\app.yaml`, want: []string{"manifests", "c", "app.yaml"}},
		{path: "app.yaml", want: []string{"app.yaml"}},
		{path: "", wantErr: true},
		{path: "/abs/app.yaml", wantErr: true},
		{path: `\abs\app.yaml`, wantErr: true},
		{path: "C:/app.yaml", wantErr: true},
		{path: "a//b", wantErr: true},
		{path: "a/./b", wantErr: true},
		{path: "a/../b", wantErr: true},
		{path: "a/", wantErr: true},
	}

	for _, tt := range tests {
		got, err := SplitPath(tt.path)
		if tt.wantErr {
			if !errors.Is(err, catalogerr.ErrInvalidArgument) {
				t.Errorf("SplitPath(%q) error = %v, want ErrInvalidArgument", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitPath(%q) failed: %v", tt.path, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitPath(%q) mismatch (-want +got):\n%s", tt.path, diff)
		}
	}
}

func TestPathParts_SharedPrefixes(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	var parts PathPartTable
	if err := parts.Create(db); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	a, err := parts.Ensure(db, "m/contoso/app/1.0.yaml")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	b, err := parts.Ensure(db, "m/contoso/app/2.0.yaml")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if a == b {
		t.Fatal("distinct paths share a leaf row")
	}
	n, _ := Count(db, "pathparts")
	if n != 5 {
		t.Errorf("pathparts rows = %d, want 5", n)
	}

	path, err := parts.Path(db, b)
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	if path != "m/contoso/app/2.0.yaml" {
		t.Errorf("Path() = %q", path)
	}

	found, ok, err := parts.Find(db, `m\contoso\app\1.0.yaml`)
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if !ok || found != a {
		t.Errorf("Find() = %d, %v; want %d, true", found, ok, a)
	}

	if err := parts.Prune(db, a); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	n, _ = Count(db, "pathparts")
	if n != 4 {
		t.Errorf("pathparts rows after pruning one leaf = %d, want 4", n)
	}

	if err := parts.Prune(db, b); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	n, _ = Count(db, "pathparts")
	if n != 0 {
		t.Errorf("pathparts rows after pruning both leaves = %d, want 0", n)
	}
}

func TestMatchFunction(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		matchType string
		value     string
		query     string
		want      int
	}{
		{"Exact", "Contoso", "Contoso", 1},
		{"Exact", "Contoso", "contoso", 0},
		{"CaseInsensitive", "Contoso", "CONTOSO", 1},
		{"StartsWith", "Contoso.App", "contoso", 1},
		{"Substring", "Contoso.App", "o.a", 1},
		{"Substring", "Contoso.App", "zzz", 0},
	}

	for _, tt := range tests {
		var got int
		err := s.DB().QueryRow("SELECT "+MatchFunction+"(?, ?, ?)", tt.matchType, tt.value, tt.query).Scan(&got)
		if err != nil {
			t.Fatalf("%s(%s) failed: %v", MatchFunction, tt.matchType, err)
		}
		if got != tt.want {
			t.Errorf("%s(%q, %q, %q) = %d, want %d", MatchFunction, tt.matchType, tt.value, tt.query, got, tt.want)
		}
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	if err := testNames.Create(s.DB()); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	boom := errors.New("boom")
	err := s.WithTx(func(tx *sql.Tx) error {
		if _, err := testNames.Ensure(tx, "discarded"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	n, _ := Count(s.DB(), "names")
	if n != 0 {
		t.Errorf("names rows = %d after rollback, want 0", n)
	}
}

func TestOpen_ReadOnlyModes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := testNames.Create(s.DB()); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := testNames.Ensure(s.DB(), "kept"); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	for _, mode := range []Mode{ModeRead, ModeImmutable} {
		ro, err := Open(path, mode)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", mode, err)
		}
		if _, ok, err := testNames.Find(ro.DB(), "kept"); err != nil || !ok {
			t.Errorf("Find() on %s store = %v, %v; want true, nil", mode, ok, err)
		}
		if _, err := testNames.Ensure(ro.DB(), "rejected"); err == nil {
			t.Errorf("Ensure() on %s store succeeded, want a read-only error", mode)
		}
		ro.Close()
	}
}
