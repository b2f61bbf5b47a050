package service

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/pkg/fieldpath"
)

//go:embed remap_tables.yaml
var defaultRemapYAML []byte

// RemapTable maps a report form to its normalized-name → field-path entries.
type RemapTable map[string]map[string]string

// RemapTables projects one form's answers onto another form's expected
// shape. Tables are keyed by source name, then by the projected report's
// form.
type RemapTables struct {
	tables map[string]RemapTable
}

// DefaultRemapTables returns the built-in tables.
func DefaultRemapTables() (*RemapTables, error) {
	return ParseRemapTables(defaultRemapYAML)
}

// ParseRemapTables decodes tables from YAML.
func ParseRemapTables(data []byte) (*RemapTables, error) {
	tables := map[string]RemapTable{}
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse remap tables: %w", err)
	}
	for source, table := range tables {
		for form, entries := range table {
			for name, path := range entries {
				if _, err := fieldpath.Compile(path); err != nil {
					return nil, fmt.Errorf("remap table %s/%s entry %s: %w", source, form, name, err)
				}
			}
		}
	}
	return &RemapTables{tables: tables}, nil
}

// LoadRemapTables reads tables from a YAML file and layers them over the
// built-in tables; a source named in the file replaces the built-in one.
func LoadRemapTables(path string) (*RemapTables, error) {
	base, err := DefaultRemapTables()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remap tables: %w", err)
	}
	override, err := ParseRemapTables(data)
	if err != nil {
		return nil, err
	}
	for source, table := range override.tables {
		base.tables[source] = table
	}
	return base, nil
}

// Sources lists the table names in sorted order.
func (t *RemapTables) Sources() []string {
	names := make([]string, 0, len(t.tables))
	for name := range t.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map projects r through the table named source, or through the table named
// after r's form when source is empty. A nil report, an unknown table or a
// form without an entry yields an empty mapping.
func (t *RemapTables) Map(r *domain.Report, source string) map[string]fieldpath.Value {
	out := map[string]fieldpath.Value{}
	if t == nil || r == nil {
		return out
	}
	if source == "" {
		source = r.Form
	}
	entries := t.tables[source][r.Form]
	for name, path := range entries {
		out[name] = r.Get(path)
	}
	return out
}

// Prefill is Map flattened to strings for task prefill content. Absent
// fields are left out.
func (t *RemapTables) Prefill(r *domain.Report, source string) map[string]string {
	out := map[string]string{}
	for name, v := range t.Map(r, source) {
		if text, ok := v.Text(); ok {
			out[name] = text
		}
	}
	return out
}
