// Package medicine loads the reference medicine list used as the dictation
// vocabulary and for manual entry lookups.
package medicine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Lookup for an unknown name
var ErrNotFound = errors.New("medicine not found")

const (
	columnName         = "name"
	columnManufacturer = "manufacturer_name"
	columnType         = "type"
	columnComposition1 = "short_composition1"
	columnComposition2 = "short_composition2"
)

// Medicine is one catalog row
type Medicine struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer_name,omitempty"`
	Type         string `json:"type,omitempty"`
	Composition1 string `json:"short_composition1,omitempty"`
	Composition2 string `json:"short_composition2,omitempty"`
}

// Composition joins the non-empty composition columns
func (m Medicine) Composition() string {
	parts := make([]string, 0, 2)
	for _, c := range []string{m.Composition1, m.Composition2} {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " + ")
}

// Catalog is an immutable, ordered medicine list
type Catalog struct {
	medicines []Medicine
	byKey     map[string]int
}

// NewCatalog builds a catalog from rows in order. Rows without a name are
// skipped; a repeated name keeps its first row.
func NewCatalog(rows []Medicine) *Catalog {
	c := &Catalog{
		medicines: make([]Medicine, 0, len(rows)),
		byKey:     make(map[string]int, len(rows)),
	}
	for _, m := range rows {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		k := key(m.Name)
		if _, ok := c.byKey[k]; ok {
			continue
		}
		c.byKey[k] = len(c.medicines)
		c.medicines = append(c.medicines, m)
	}
	return c
}

// Load reads a catalog from a CSV file with a header row
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open medicine catalog: %w", err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read medicine catalog %s: %w", path, err)
	}

	logger.Info("medicine catalog loaded",
		zap.String("path", path),
		zap.Int("medicines", c.Len()))
	return c, nil
}

// Read parses CSV rows. Only the name column is required; unknown columns
// are ignored.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols[columnName]; !ok {
		return nil, fmt.Errorf("missing %q column", columnName)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Medicine
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Medicine{
			Name:         field(rec, columnName),
			Manufacturer: field(rec, columnManufacturer),
			Type:         field(rec, columnType),
			Composition1: field(rec, columnComposition1),
			Composition2: field(rec, columnComposition2),
		})
	}
	return NewCatalog(rows), nil
}

// Len returns the number of medicines
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.medicines)
}

// Names returns medicine names in file order
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.medicines))
	for i, m := range c.medicines {
		names[i] = m.Name
	}
	return names
}

// All returns a copy of the catalog rows
func (c *Catalog) All() []Medicine {
	if c == nil {
		return nil
	}
	out := make([]Medicine, len(c.medicines))
	copy(out, c.medicines)
	return out
}

// Head returns at most n rows from the top of the catalog
func (c *Catalog) Head(n int) []Medicine {
	all := c.All()
	if n < len(all) {
		all = all[:max(n, 0)]
	}
	return all
}

// Lookup finds a medicine by name, ignoring case and surrounding whitespace
func (c *Catalog) Lookup(name string) (Medicine, error) {
	if c != nil {
		if i, ok := c.byKey[key(name)]; ok {
			return c.medicines[i], nil
		}
	}
	return Medicine{}, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimSpace(name))
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
