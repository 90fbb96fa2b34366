package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

// SchemaVersion identifies an on-disk catalog layout.
type SchemaVersion struct {
	Major int
	Minor int
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v precedes o.
func (v SchemaVersion) Less(o SchemaVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// ParseSchemaVersion parses "major.minor". "latest" selects LatestVersion.
func ParseSchemaVersion(s string) (SchemaVersion, error) {
	if strings.EqualFold(s, "latest") {
		return LatestVersion, nil
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		minor = "0"
	}
	ma, err1 := strconv.Atoi(major)
	mi, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil || ma < 0 || mi < 0 {
		return SchemaVersion{}, fmt.Errorf("%w: schema version %q", catalogerr.ErrInvalidArgument, s)
	}
	v := SchemaVersion{Major: ma, Minor: mi}
	if _, ok := schemaFor(v); !ok {
		return SchemaVersion{}, fmt.Errorf("%w: unsupported schema version %s", catalogerr.ErrInvalidArgument, v)
	}
	return v, nil
}

// LatestVersion is the newest supported schema.
var LatestVersion = SchemaVersion{Major: 2, Minor: 0}

// SupportedVersions lists every schema version a catalog can be created at,
// oldest first.
func SupportedVersions() []SchemaVersion {
	out := make([]SchemaVersion, len(schemas))
	for i, s := range schemas {
		out[i] = s.version
	}
	return out
}

// Interned and multi-value tables shared by all layouts.
var (
	idTable      = store.ValueTable{Name: "ids", Column: "id", NoCase: true}
	nameTable    = store.ValueTable{Name: "names", Column: "name"}
	monikerTable = store.ValueTable{Name: "monikers", Column: "moniker"}
	versionTable = store.ValueTable{Name: "versions", Column: "version"}
	channelTable = store.ValueTable{Name: "channels", Column: "channel"}
	pathParts    store.PathPartTable

	tagTable           = store.MultiValueTable{Name: "tags", Column: "tag"}
	commandTable       = store.MultiValueTable{Name: "commands", Column: "command"}
	pfnTable           = store.MultiValueTable{Name: "pfns", Column: "pfn", Scoped: true}
	productCodeTable   = store.MultiValueTable{Name: "productcodes", Column: "productcode", Scoped: true}
	upgradeCodeTable   = store.MultiValueTable{Name: "upgradecodes", Column: "upgradecode", Scoped: true}
	normNameTable      = store.MultiValueTable{Name: "norm_names", Column: "norm_name"}
	normPublisherTable = store.MultiValueTable{Name: "norm_publishers", Column: "norm_publisher"}
	// norm_pairs holds "name|publisher" keys taken from the same
	// localization or ARP entry.
	normPairTable = store.MultiValueTable{Name: "norm_pairs", Column: "norm_pair"}
)

// schema is one catalog layout. The set is closed: every supported version
// has exactly one entry in schemas, and behavior differences between
// layouts are expressed only through these flags.
type schema struct {
	version SchemaVersion

	// primary is the table holding one row per indexed manifest.
	primary string
	// channels is set when rows are keyed by (id, version, channel) and a
	// package may hold many versions. Otherwise a package has one row.
	channels bool

	pfns         bool // 1.1
	productCodes bool // 1.1
	metadata     bool // 1.1
	normNames    bool // 1.2
	hash         bool // 1.3
	dependencies bool // 1.4
	arp          bool // 1.5
	upgradeCodes bool // 1.6

	// foldsMultiValueAcrossVersions scopes PFN, ProductCode and UpgradeCode
	// values to the package rather than the manifest row, so versions of
	// one package share value rows.
	foldsMultiValueAcrossVersions bool

	updateTracking bool // 2.0
}

var schemas = []*schema{
	{version: SchemaVersion{1, 0}, primary: "manifest", channels: true},
	{version: SchemaVersion{1, 1}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true},
	{version: SchemaVersion{1, 2}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true},
	{version: SchemaVersion{1, 3}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true},
	{version: SchemaVersion{1, 4}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true,
		dependencies: true},
	{version: SchemaVersion{1, 5}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true,
		dependencies: true, arp: true},
	{version: SchemaVersion{1, 6}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true,
		dependencies: true, arp: true, upgradeCodes: true},
	{version: SchemaVersion{1, 7}, primary: "manifest", channels: true,
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true,
		dependencies: true, arp: true, upgradeCodes: true,
		foldsMultiValueAcrossVersions: true},
	{version: SchemaVersion{2, 0}, primary: "packages",
		pfns: true, productCodes: true, metadata: true, normNames: true, hash: true,
		dependencies: true, arp: true, upgradeCodes: true,
		foldsMultiValueAcrossVersions: true, updateTracking: true},
}

func schemaFor(v SchemaVersion) (*schema, bool) {
	for _, s := range schemas {
		if s.version == v {
			return s, true
		}
	}
	return nil, false
}

// multiField binds a multi-value table to the manifest property it stores.
type multiField struct {
	table    store.MultiValueTable
	property MultiProperty
}

func (s *schema) multiFields() []multiField {
	fields := []multiField{
		{tagTable, MultiPropertyTag},
		{commandTable, MultiPropertyCommand},
	}
	if s.pfns {
		fields = append(fields, multiField{pfnTable, MultiPropertyPackageFamilyName})
	}
	if s.productCodes {
		fields = append(fields, multiField{productCodeTable, MultiPropertyProductCode})
	}
	if s.upgradeCodes {
		fields = append(fields, multiField{upgradeCodeTable, MultiPropertyUpgradeCode})
	}
	if s.normNames {
		fields = append(fields,
			multiField{normNameTable, MultiPropertyNormalizedName},
			multiField{normPublisherTable, MultiPropertyNormalizedPublisher},
			multiField{normPairTable, MultiPropertyNormalizedNamePublisher},
		)
	}
	return fields
}

func (s *schema) multiField(p MultiProperty) (multiField, bool) {
	for _, f := range s.multiFields() {
		if f.property == p {
			return f, true
		}
	}
	return multiField{}, false
}

// scope returns the scope value for scoped multi-value rows of a manifest.
func (s *schema) scope(manifest, pkg int64) int64 {
	if s.foldsMultiValueAcrossVersions {
		return pkg
	}
	return manifest
}

func (s *schema) valueTables() []store.ValueTable {
	tables := []store.ValueTable{idTable, nameTable, monikerTable, versionTable}
	if s.channels {
		tables = append(tables, channelTable)
	}
	return tables
}

// refs lists every column that may hold a rowid of the named value table.
func (s *schema) refs(table string) []store.Reference {
	switch table {
	case idTable.Name:
		refs := []store.Reference{{Table: s.primary, Column: "id"}}
		if s.dependencies {
			refs = append(refs, store.Reference{Table: "dependencies", Column: "package_id"})
		}
		return refs
	case nameTable.Name:
		return []store.Reference{{Table: s.primary, Column: "name"}}
	case monikerTable.Name:
		return []store.Reference{{Table: s.primary, Column: "moniker"}}
	case versionTable.Name:
		refs := []store.Reference{{Table: s.primary, Column: "version"}}
		if s.arp {
			refs = append(refs,
				store.Reference{Table: s.primary, Column: "arp_min_version"},
				store.Reference{Table: s.primary, Column: "arp_max_version"},
			)
		}
		if s.dependencies {
			refs = append(refs, store.Reference{Table: "dependencies", Column: "min_version"})
		}
		return refs
	case channelTable.Name:
		return []store.Reference{{Table: s.primary, Column: "channel"}}
	case "pathparts":
		return []store.Reference{{Table: s.primary, Column: "pathpart"}}
	}
	return nil
}

func (s *schema) primaryDDL() []string {
	var cols strings.Builder
	cols.WriteString("rowid INTEGER PRIMARY KEY, id INT NOT NULL, name INT NOT NULL, moniker INT, version INT NOT NULL")
	if s.channels {
		cols.WriteString(", channel INT NOT NULL")
	}
	cols.WriteString(", pathpart INT")
	if s.hash {
		cols.WriteString(", hash BLOB")
	}
	if s.arp {
		cols.WriteString(", arp_min_version INT, arp_max_version INT")
	}

	key := "id"
	if s.channels {
		key = "id, version, channel"
	}
	return []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", s.primary, cols.String()),
		fmt.Sprintf("CREATE UNIQUE INDEX %s_pkindex ON %s(%s)", s.primary, s.primary, key),
		fmt.Sprintf("CREATE INDEX %s_pathpart_index ON %s(pathpart)", s.primary, s.primary),
	}
}

const (
	createCatalogMetadata = `CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY NOT NULL, value TEXT)`

	createManifestMetadata = `
CREATE TABLE manifest_metadata (
    manifest INT NOT NULL,
    metadata TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY(manifest, metadata)
) WITHOUT ROWID`

	createDependencies = `
CREATE TABLE dependencies (
    manifest INT NOT NULL,
    package_id INT NOT NULL,
    min_version INT,
    PRIMARY KEY(manifest, package_id)
) WITHOUT ROWID;
CREATE INDEX dependencies_package_id_index ON dependencies(package_id)`

	createUpdateTracking = `
CREATE TABLE update_tracking (
    rowid INTEGER PRIMARY KEY,
    package_id TEXT NOT NULL,
    written_time INT NOT NULL,
    removed INT NOT NULL DEFAULT 0
);
CREATE INDEX update_tracking_time_index ON update_tracking(written_time)`
)

func execAll(q store.Querier, stmts ...string) error {
	for _, stmt := range stmts {
		for _, part := range strings.Split(stmt, ";") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if _, err := q.Exec(part); err != nil {
				return err
			}
		}
	}
	return nil
}

// create builds every table of the layout and records its version.
func (s *schema) create(q store.Querier) error {
	if err := execAll(q, createCatalogMetadata); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	for _, t := range s.valueTables() {
		if err := t.Create(q); err != nil {
			return err
		}
	}
	if err := pathParts.Create(q); err != nil {
		return err
	}
	if err := execAll(q, s.primaryDDL()...); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.primary, err)
	}
	for _, f := range s.multiFields() {
		if err := f.table.Create(q); err != nil {
			return err
		}
	}
	if s.metadata {
		if err := execAll(q, createManifestMetadata); err != nil {
			return fmt.Errorf("failed to create manifest_metadata table: %w", err)
		}
	}
	if s.dependencies {
		if err := execAll(q, createDependencies); err != nil {
			return fmt.Errorf("failed to create dependencies table: %w", err)
		}
	}
	if s.updateTracking {
		if err := execAll(q, createUpdateTracking); err != nil {
			return fmt.Errorf("failed to create update_tracking table: %w", err)
		}
	}
	return writeSchemaVersion(q, s.version)
}

const (
	metaMajorVersion = "majorVersion"
	metaMinorVersion = "minorVersion"
)

func writeSchemaVersion(q store.Querier, v SchemaVersion) error {
	if err := setMeta(q, metaMajorVersion, strconv.Itoa(v.Major)); err != nil {
		return err
	}
	return setMeta(q, metaMinorVersion, strconv.Itoa(v.Minor))
}

func readSchemaVersion(q store.Querier) (SchemaVersion, error) {
	major, ok, err := getMeta(q, metaMajorVersion)
	if err != nil {
		return SchemaVersion{}, err
	}
	minor, ok2, err := getMeta(q, metaMinorVersion)
	if err != nil {
		return SchemaVersion{}, err
	}
	if !ok || !ok2 {
		return SchemaVersion{}, fmt.Errorf("%w: database has no schema version", catalogerr.ErrInvalidState)
	}
	ma, err1 := strconv.Atoi(major)
	mi, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil {
		return SchemaVersion{}, fmt.Errorf("%w: malformed schema version %q.%q", catalogerr.ErrInvalidState, major, minor)
	}
	return SchemaVersion{Major: ma, Minor: mi}, nil
}

func setMeta(q store.Querier, name, value string) error {
	if _, err := q.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", name, err)
	}
	return nil
}

func getMeta(q store.Querier, name string) (string, bool, error) {
	values, err := store.Strings(q, "SELECT value FROM metadata WHERE name = ?", name)
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", name, err)
	}
	if len(values) == 0 {
		return "", false, nil
	}
	return values[0], true, nil
}
