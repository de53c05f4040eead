// Package loader reads rate cards and zone charts from their configured source.
package loader

import (
	"context"
	"fmt"
	"strings"

	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

// Catalog is everything a source provides: rate tables, the region directory and the
// carriers' zone charts.
type Catalog struct {
	Tables  []ratecard.RateTable
	Regions []zone.Region
	Rules   []zone.Rules
}

// Loader reads a full catalog.
type Loader interface {
	Load(ctx context.Context) (Catalog, error)
}

// Options carries what the sources need.
type Options struct {
	Path string  // file source
	DB   Querier // postgres source
}

// NewByName returns the loader for source: "file" (default) or "postgres".
func NewByName(source string, opts Options) (Loader, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "file", "yaml", "":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("rate card path is not set")
		}
		return NewYAML(opts.Path), nil
	case "postgres", "postgresql":
		if opts.DB == nil {
			return nil, fmt.Errorf("postgres rate card source needs a database")
		}
		return NewPostgres(opts.DB), nil
	default:
		return nil, fmt.Errorf("unknown rate card source %q", source)
	}
}

// Apply validates the catalog and installs it into live with one swap. Nothing is
// installed when any part is invalid.
func (c Catalog) Apply(live *Live) error {
	dir, err := zone.NewDirectory(c.Regions...)
	if err != nil {
		return err
	}
	zones, err := zone.NewResolver(dir, c.Rules...)
	if err != nil {
		return err
	}
	tables := ratecard.NewRegistry()
	if err := tables.Replace(c.Tables); err != nil {
		return err
	}
	live.cur.Store(&installed{tables: tables, zones: zones})
	return nil
}
