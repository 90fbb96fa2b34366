package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

// Field is a searchable manifest field. Lower fields rank first when two
// matches have the same match type.
type Field int

const (
	FieldID Field = iota
	FieldName
	FieldMoniker
	FieldCommand
	FieldTag
	FieldPackageFamilyName
	FieldProductCode
	FieldUpgradeCode
	FieldNormalizedNameAndPublisher
)

var fieldNames = [...]string{
	FieldID:                         "Id",
	FieldName:                       "Name",
	FieldMoniker:                    "Moniker",
	FieldCommand:                    "Command",
	FieldTag:                        "Tag",
	FieldPackageFamilyName:          "PackageFamilyName",
	FieldProductCode:                "ProductCode",
	FieldUpgradeCode:                "UpgradeCode",
	FieldNormalizedNameAndPublisher: "NormalizedNameAndPublisher",
}

func (f Field) String() string {
	if f >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "Unknown"
}

// ParseField converts a name such as "tag" into a Field.
func ParseField(s string) (Field, bool) {
	for i, name := range fieldNames {
		if strings.EqualFold(name, s) {
			return Field(i), true
		}
	}
	return 0, false
}

// RequestMatch is a value to look for and how to compare it.
type RequestMatch struct {
	Type  normalize.MatchType
	Value string
	// Additional is the publisher for FieldNormalizedNameAndPublisher.
	Additional string
}

// PackageMatchFilter applies a RequestMatch to one field.
type PackageMatchFilter struct {
	Field Field
	RequestMatch
}

// SearchRequest selects manifests. A manifest matches when it satisfies the
// Query and every Filter, or when it satisfies any one Inclusion. Without a
// Query every manifest satisfies it, unless Inclusions are given, in which
// case only the Inclusions select manifests.
type SearchRequest struct {
	// Query is matched against Id, Name, Moniker, Command and Tag, plus
	// PackageFamilyName and ProductCode where the layout has them.
	Query          *RequestMatch
	Inclusions     []PackageMatchFilter
	Filters        []PackageMatchFilter
	MaximumResults int
}

// SearchMatch is one package in a search result.
type SearchMatch struct {
	ID        string
	Package   int64 // ids row of the package
	Manifests []ManifestID
	// Match is the strongest criterion the package matched.
	Match PackageMatchFilter
}

// SearchResult holds the matched packages, best first.
type SearchResult struct {
	Matches   []SearchMatch
	Truncated bool
}

func better(a, b PackageMatchFilter) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.Field < b.Field
}

type hitSet map[int64]PackageMatchFilter

func (h hitSet) record(manifest int64, d PackageMatchFilter) {
	if cur, ok := h[manifest]; !ok || better(d, cur) {
		h[manifest] = d
	}
}

func (s *schema) defaultQueryFields() []Field {
	fields := []Field{FieldID, FieldName, FieldMoniker, FieldCommand, FieldTag}
	if s.pfns {
		fields = append(fields, FieldPackageFamilyName)
	}
	if s.productCodes {
		fields = append(fields, FieldProductCode)
	}
	return fields
}

func (s *schema) multiTableFor(f Field) (store.MultiValueTable, bool) {
	var p MultiProperty
	switch f {
	case FieldCommand:
		p = MultiPropertyCommand
	case FieldTag:
		p = MultiPropertyTag
	case FieldPackageFamilyName:
		p = MultiPropertyPackageFamilyName
	case FieldProductCode:
		p = MultiPropertyProductCode
	case FieldUpgradeCode:
		p = MultiPropertyUpgradeCode
	default:
		return store.MultiValueTable{}, false
	}
	mf, ok := s.multiField(p)
	return mf.table, ok
}

func (s *schema) matchValueColumn(q store.Querier, table, column string, t normalize.MatchType, value string) ([]int64, error) {
	return store.Int64s(q, fmt.Sprintf(`SELECT m.rowid FROM %s m JOIN %s v ON v.rowid = m.%s
		WHERE %s(?, v.%s, ?)`, s.primary, table, column, store.MatchFunction, column), t.String(), value)
}

func (s *schema) matchMultiValue(q store.Querier, t store.MultiValueTable, mt normalize.MatchType, value string) ([]int64, error) {
	return store.Int64s(q, fmt.Sprintf(`SELECT DISTINCT mp.manifest FROM %[1]s mp
		JOIN %[2]s v ON v.rowid = mp.%[3]s
		JOIN %[4]s m ON m.rowid = mp.manifest
		WHERE %[5]s(?, v.%[3]s, ?)`, t.MapName(), t.Name, t.Column, s.primary, store.MatchFunction), mt.String(), value)
}

// matchField returns the manifests whose field matches. Fields the layout
// does not have match nothing.
func (s *schema) matchField(q store.Querier, f PackageMatchFilter) ([]int64, error) {
	switch f.Field {
	case FieldID:
		return s.matchValueColumn(q, idTable.Name, idTable.Column, f.Type, f.Value)
	case FieldName:
		return s.matchValueColumn(q, nameTable.Name, nameTable.Column, f.Type, f.Value)
	case FieldMoniker:
		return s.matchValueColumn(q, monikerTable.Name, monikerTable.Column, f.Type, f.Value)
	case FieldNormalizedNameAndPublisher:
		return s.matchNormalized(q, f)
	}
	t, ok := s.multiTableFor(f.Field)
	if !ok {
		return nil, nil
	}
	return s.matchMultiValue(q, t, f.Type, f.Value)
}

// matchNormalized compares normalized forms of the name in Value and the
// publisher in Additional. Normalized names include ARP display names.
func (s *schema) matchNormalized(q store.Querier, f PackageMatchFilter) ([]int64, error) {
	if !s.normNames {
		return nil, nil
	}
	name := normalize.Name(f.Value)
	if name == "" {
		return nil, nil
	}
	if f.Additional == "" {
		return s.matchMultiValue(q, normNameTable, f.Type, name)
	}
	publisher := normalize.Publisher(f.Additional)

	// Name and publisher must come from the same localization or ARP entry.
	rows, err := q.Query(fmt.Sprintf(`SELECT mp.manifest, v.%[3]s FROM %[1]s mp
		JOIN %[2]s v ON v.rowid = mp.%[3]s
		JOIN %[4]s m ON m.rowid = mp.manifest`, normPairTable.MapName(), normPairTable.Name, normPairTable.Column, s.primary))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var out []int64
	for rows.Next() {
		var (
			manifest int64
			pair     string
		)
		if err := rows.Scan(&manifest, &pair); err != nil {
			return nil, err
		}
		if seen[manifest] {
			continue
		}
		n, p := splitPair(pair)
		if normalize.Match(f.Type, n, name) && normalize.Match(f.Type, p, publisher) {
			seen[manifest] = true
			out = append(out, manifest)
		}
	}
	return out, rows.Err()
}

type manifestOwner struct {
	pkg int64
	id  string
}

func (s *schema) owners(q store.Querier) (map[int64]manifestOwner, error) {
	rows, err := q.Query(fmt.Sprintf("SELECT m.rowid, m.id, i.id FROM %s m JOIN ids i ON i.rowid = m.id", s.primary))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifests: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]manifestOwner)
	for rows.Next() {
		var (
			rowid int64
			o     manifestOwner
		)
		if err := rows.Scan(&rowid, &o.pkg, &o.id); err != nil {
			return nil, err
		}
		out[rowid] = o
	}
	return out, rows.Err()
}

// Search runs req and groups the matching manifests by package.
func (c *Catalog) Search(req SearchRequest) (*SearchResult, error) {
	q := c.db()
	owners, err := c.schema.owners(q)
	if err != nil {
		return nil, err
	}

	base := make(hitSet)
	matchedAll := PackageMatchFilter{Field: FieldID, RequestMatch: RequestMatch{Type: normalize.Wildcard, Value: "*"}}
	describedByFilter := false

	switch {
	case req.Query != nil:
		for _, field := range c.schema.defaultQueryFields() {
			f := PackageMatchFilter{Field: field, RequestMatch: *req.Query}
			hits, err := c.schema.matchField(q, f)
			if err != nil {
				return nil, fmt.Errorf("failed to search %s: %w", field, err)
			}
			for _, m := range hits {
				base.record(m, f)
			}
			if f.Type == normalize.Exact {
				continue
			}

			exact := f
			exact.Type = normalize.Exact
			hits, err = c.schema.matchField(q, exact)
			if err != nil {
				return nil, fmt.Errorf("failed to search %s: %w", field, err)
			}
			for _, m := range hits {
				if _, ok := base[m]; ok {
					base.record(m, exact)
				}
			}
		}
	case len(req.Inclusions) > 0 && len(req.Filters) == 0:
		// Inclusions alone select only what they match.
	default:
		describedByFilter = len(req.Filters) > 0
		for m := range owners {
			base[m] = matchedAll
		}
	}

	for i, f := range req.Filters {
		hits, err := c.schema.matchField(q, f)
		if err != nil {
			return nil, fmt.Errorf("failed to filter on %s: %w", f.Field, err)
		}
		keep := make(map[int64]bool, len(hits))
		for _, m := range hits {
			keep[m] = true
		}
		for m := range base {
			if !keep[m] {
				delete(base, m)
			} else if describedByFilter && i == 0 {
				base[m] = f
			}
		}
	}

	for _, f := range req.Inclusions {
		hits, err := c.schema.matchField(q, f)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", f.Field, err)
		}
		for _, m := range hits {
			base.record(m, f)
		}
	}

	result := groupByPackage(base, owners)
	if req.MaximumResults > 0 && len(result.Matches) > req.MaximumResults {
		result.Matches = result.Matches[:req.MaximumResults]
		result.Truncated = true
	}

	c.logger.Debug("search", "matches", len(result.Matches), "truncated", result.Truncated)
	return result, nil
}

func groupByPackage(hits hitSet, owners map[int64]manifestOwner) *SearchResult {
	byPackage := make(map[int64]*SearchMatch)
	for m, d := range hits {
		o, ok := owners[m]
		if !ok {
			continue
		}
		sm, ok := byPackage[o.pkg]
		if !ok {
			sm = &SearchMatch{ID: o.id, Package: o.pkg, Match: d}
			byPackage[o.pkg] = sm
		} else if better(d, sm.Match) {
			sm.Match = d
		}
		sm.Manifests = append(sm.Manifests, ManifestID(m))
	}

	result := &SearchResult{Matches: make([]SearchMatch, 0, len(byPackage))}
	for _, sm := range byPackage {
		sort.Slice(sm.Manifests, func(i, j int) bool { return sm.Manifests[i] < sm.Manifests[j] })
		result.Matches = append(result.Matches, *sm)
	}
	sort.Slice(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.Match.Type != b.Match.Type || a.Match.Field != b.Match.Field {
			return better(a.Match, b.Match)
		}
		if la, lb := strings.ToLower(a.ID), strings.ToLower(b.ID); la != lb {
			return la < lb
		}
		return a.Package < b.Package
	})
	return result
}
