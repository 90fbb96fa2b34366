package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var (
	searchMatch      string
	searchFilters    []string
	searchInclusions []string
	searchCount      int

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Long: `Search packages by a free-text query, field filters and inclusions.

The query is matched against id, name, moniker, commands and tags (plus
package family names and product codes where the schema has them). Filters
narrow the result; inclusions add packages that match them regardless of
the query. Filters and inclusions take the form field=value, where field is
one of: id, name, moniker, command, tag, packagefamilyname, productcode,
upgradecode. Match types: exact, caseinsensitive, startswith, substring,
wildcard, fuzzy, fuzzysubstring.`,
		Example: `  # Packages mentioning "editor" anywhere
  pkgcatalog search editor

  # Exact id lookup
  pkgcatalog search --match exact --filter id=Contoso.App

  # Substring query restricted to a tag
  pkgcatalog search code --filter tag=editor --count 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSearch,
	}
)

func init() {
	searchCmd.Flags().StringVar(&searchMatch, "match", "substring", "match type for the query, filters and inclusions")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "field=value every result must match (repeatable)")
	searchCmd.Flags().StringArrayVar(&searchInclusions, "include", nil, "field=value that selects a package on its own (repeatable)")
	searchCmd.Flags().IntVar(&searchCount, "count", 0, "maximum number of packages (0 for no limit)")
}

// buildSearchRequest turns the command line into a catalog search.
func buildSearchRequest(args []string) (catalog.SearchRequest, error) {
	mt, ok := normalize.ParseMatchType(searchMatch)
	if !ok {
		return catalog.SearchRequest{}, fmt.Errorf("unknown match type %q", searchMatch)
	}

	req := catalog.SearchRequest{MaximumResults: searchCount}
	if len(args) == 1 {
		req.Query = &catalog.RequestMatch{Type: mt, Value: args[0]}
	}

	var err error
	if req.Filters, err = parseFieldMatches(searchFilters, mt); err != nil {
		return req, err
	}
	if req.Inclusions, err = parseFieldMatches(searchInclusions, mt); err != nil {
		return req, err
	}
	return req, nil
}

func parseFieldMatches(pairs []string, mt normalize.MatchType) ([]catalog.PackageMatchFilter, error) {
	var out []catalog.PackageMatchFilter
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid field match %q, want field=value", pair)
		}
		field, ok := catalog.ParseField(strings.TrimSpace(name))
		if !ok || field == catalog.FieldNormalizedNameAndPublisher {
			return nil, fmt.Errorf("unknown search field %q", name)
		}
		out = append(out, catalog.PackageMatchFilter{
			Field:        field,
			RequestMatch: catalog.RequestMatch{Type: mt, Value: value},
		})
	}
	return out, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := buildSearchRequest(args)
	if err != nil {
		return err
	}

	c, err := openCatalog(catalog.Read)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Search(req)
	if err != nil {
		return err
	}

	rows := make([]output.SearchRow, 0, len(result.Matches))
	for _, m := range result.Matches {
		mid, ver, err := newestVersion(c, m.Manifests)
		if err != nil {
			return err
		}
		name, _, err := c.GetPropertyByManifestID(mid, catalog.PropertyName)
		if err != nil {
			return err
		}
		rows = append(rows, output.SearchRow{ID: m.ID, Name: name, Version: ver, Match: m.Match})
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderSearchTable(rows, result.Truncated))
	return nil
}
