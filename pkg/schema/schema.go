package schema

import (
	"fmt"
)

// Column describes a single table column and its visibility flags.
//
// Hidden columns are excluded from every outbound payload but remain
// writable; ReadOnly and Primary columns are excluded from every inbound
// write payload but remain readable.
type Column struct {
	Name     string
	Type     string
	Primary  bool
	ReadOnly bool
	Hidden   bool
}

// Table is an immutable column-metadata carrier. Construct once at startup
// with NewTable; accessors never expose internal state by reference.
type Table struct {
	name    string
	columns []Column
	byName  map[string]Column
	pk      string
}

// NewTable builds a Table from column definitions. Exactly one column must
// be flagged Primary.
func NewTable(name string, columns ...Column) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}

	t := &Table{
		name:    name,
		columns: make([]Column, len(columns)),
		byName:  make(map[string]Column, len(columns)),
	}
	copy(t.columns, columns)

	for _, col := range t.columns {
		if col.Name == "" {
			return nil, fmt.Errorf("table %s: column with empty name", name)
		}
		if _, dup := t.byName[col.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %s", name, col.Name)
		}
		t.byName[col.Name] = col
		if col.Primary {
			if t.pk != "" {
				return nil, fmt.Errorf("table %s: multiple primary key columns (%s, %s)", name, t.pk, col.Name)
			}
			t.pk = col.Name
		}
	}

	if t.pk == "" {
		return nil, fmt.Errorf("table %s: no primary key column", name)
	}

	return t, nil
}

// MustTable is NewTable that panics on error, for startup declarations.
func MustTable(name string, columns ...Column) *Table {
	t, err := NewTable(name, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// PrimaryKey returns the name of the primary key column
func (t *Table) PrimaryKey() string { return t.pk }

// Columns returns a copy of the column definitions
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks up a column by name
func (t *Table) Column(name string) (Column, bool) {
	col, ok := t.byName[name]
	return col, ok
}

// HasColumn reports whether the table declares the named column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// IsHidden reports whether the named column is flagged hidden.
// Unknown columns are not hidden; the validator rejects them separately.
func (t *Table) IsHidden(name string) bool {
	return t.byName[name].Hidden
}

// IsReadOnly reports whether the named column is excluded from writes,
// which covers both the ReadOnly flag and the primary key.
func (t *Table) IsReadOnly(name string) bool {
	col := t.byName[name]
	return col.ReadOnly || col.Primary
}

// ColumnNames returns the declared column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		names = append(names, col.Name)
	}
	return names
}
