// Package catalog implements the package catalog engine: a versioned SQLite
// index of package manifests with schema migration, search, dependency and
// ARP validation, and consistency checking.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

// InMemory creates a catalog that lives only as long as its handle.
const InMemory = store.InMemory

// Disposition controls how an existing catalog is opened.
type Disposition int

const (
	// Read opens the catalog read-only.
	Read Disposition = iota
	// ReadWrite opens the catalog for mutation.
	ReadWrite
	// Immutable opens the catalog read-only without taking any lock. The
	// file must only ever be replaced atomically while opened this way.
	Immutable
)

func (d Disposition) String() string {
	switch d {
	case Read:
		return "Read"
	case ReadWrite:
		return "ReadWrite"
	case Immutable:
		return "Immutable"
	}
	return "Unknown"
}

// ParseDisposition converts a name such as "readwrite" into a Disposition.
func ParseDisposition(s string) (Disposition, error) {
	for _, d := range []Disposition{Read, ReadWrite, Immutable} {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return Read, fmt.Errorf("%w: disposition %q", catalogerr.ErrInvalidArgument, s)
}

func (d Disposition) mode() store.Mode {
	switch d {
	case ReadWrite:
		return store.ModeReadWrite
	case Immutable:
		return store.ModeImmutable
	}
	return store.ModeRead
}

// ManifestID identifies one indexed manifest row.
type ManifestID int64

// Catalog is an open package catalog.
type Catalog struct {
	store       *store.Store
	schema      *schema
	disposition Disposition
	logger      *log.Logger
	now         func() time.Time
	props       map[Property]string
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source used for update tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

func newCatalog(s *store.Store, sch *schema, d Disposition, opts []Option) *Catalog {
	c := &Catalog{
		store:       s,
		schema:      sch,
		disposition: d,
		logger:      log.New(io.Discard),
		now:         time.Now,
		props:       make(map[Property]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.props[DatabaseFilePath] = s.Path()
	return c
}

// CreateNew creates a catalog at path with the given schema version. Pass
// InMemory for a catalog without a backing file.
func CreateNew(path string, v SchemaVersion, opts ...Option) (*Catalog, error) {
	sch, ok := schemaFor(v)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported schema version %s", catalogerr.ErrInvalidArgument, v)
	}
	if path != InMemory {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: %s", catalogerr.ErrAlreadyExists, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to check %s: %w", path, err)
		}
	}

	s, err := store.New(path)
	if err != nil {
		return nil, err
	}
	if err := s.WithTx(func(tx *sql.Tx) error { return sch.create(tx) }); err != nil {
		s.Close()
		if path != InMemory {
			os.Remove(path)
		}
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}

	c := newCatalog(s, sch, ReadWrite, opts)
	c.logger.Debug("created catalog", "path", path, "version", v)
	return c, nil
}

// Open opens the existing catalog at path.
func Open(path string, d Disposition, opts ...Option) (*Catalog, error) {
	if path == InMemory {
		return nil, fmt.Errorf("%w: an in-memory catalog cannot be reopened", catalogerr.ErrNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", catalogerr.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to check %s: %w", path, err)
	}

	s, err := store.Open(path, d.mode())
	if err != nil {
		return nil, err
	}
	v, err := readSchemaVersion(s.DB())
	if err != nil {
		s.Close()
		return nil, err
	}
	sch, ok := schemaFor(v)
	if !ok {
		s.Close()
		return nil, fmt.Errorf("%w: unsupported schema version %s", catalogerr.ErrInvalidState, v)
	}

	c := newCatalog(s, sch, d, opts)
	if base, ok, err := getMeta(s.DB(), metaTrackingBaseTime); err != nil {
		s.Close()
		return nil, err
	} else if ok {
		c.props[PackageUpdateTrackingBaseTime] = base
	}
	c.logger.Debug("opened catalog", "path", path, "version", v, "disposition", d)
	return c, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	return c.store.Close()
}

// Version returns the schema version of the catalog.
func (c *Catalog) Version() SchemaVersion {
	return c.schema.version
}

// Disposition returns how the catalog was opened.
func (c *Catalog) Disposition() Disposition {
	return c.disposition
}

// Logger returns the catalog's logger.
func (c *Catalog) Logger() *log.Logger {
	return c.logger
}

func (c *Catalog) writable() error {
	if c.disposition != ReadWrite {
		return fmt.Errorf("%w: catalog is open %s", catalogerr.ErrInvalidState, c.disposition)
	}
	return nil
}

func (c *Catalog) db() *sql.DB {
	return c.store.DB()
}

// Property names a catalog-level setting.
type Property int

const (
	// DatabaseFilePath is the path the catalog was opened from. Read-only.
	DatabaseFilePath Property = iota
	// IntermediateFileOutputPath is the directory PrepareForPackaging writes to.
	IntermediateFileOutputPath
	// PackageUpdateTrackingBaseTime is the update-tracking time, in Unix
	// milliseconds, the last packaging run covered. Persisted.
	PackageUpdateTrackingBaseTime
)

func (p Property) String() string {
	switch p {
	case DatabaseFilePath:
		return "DatabaseFilePath"
	case IntermediateFileOutputPath:
		return "IntermediateFileOutputPath"
	case PackageUpdateTrackingBaseTime:
		return "PackageUpdateTrackingBaseTime"
	}
	return "Unknown"
}

const metaTrackingBaseTime = "packageUpdateTrackingBaseTime"

// Property returns the value of p, or "" when unset.
func (c *Catalog) Property(p Property) string {
	return c.props[p]
}

// SetProperty sets p. PackageUpdateTrackingBaseTime must be an integer and is
// written to the database.
func (c *Catalog) SetProperty(p Property, value string) error {
	switch p {
	case DatabaseFilePath:
		return fmt.Errorf("%w: %s is read-only", catalogerr.ErrInvalidArgument, p)
	case PackageUpdateTrackingBaseTime:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("%w: %s must be an integer: %q", catalogerr.ErrInvalidArgument, p, value)
		}
		if err := c.writable(); err != nil {
			return err
		}
		if err := setMeta(c.db(), metaTrackingBaseTime, value); err != nil {
			return err
		}
	case IntermediateFileOutputPath:
	default:
		return fmt.Errorf("%w: unknown property %d", catalogerr.ErrInvalidArgument, p)
	}
	c.props[p] = value
	return nil
}
