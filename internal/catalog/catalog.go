// Package catalog loads the table catalog: which columns of which tables
// the schema-cache retry may strip from an UPDATE.
//
// Catalogs are CUE files validated against an embedded schema:
//
//	volatile: ["last_contacted_at"]
//	tables: leads: volatile: ["ai_summary", "enriched_at"]
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Table is the catalog entry for one table.
type Table struct {
	Volatile    []string `json:"volatile,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Catalog is a validated table catalog. It is immutable after loading
// and safe for concurrent use.
type Catalog struct {
	Volatile []string         `json:"volatile,omitempty"`
	Tables   map[string]Table `json:"tables,omitempty"`
}

// Error is a catalog validation failure with its source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(path, src)
}

// Parse validates CUE source against the catalog schema.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cat Catalog
	if err := unified.Decode(&cat); err != nil {
		return nil, formatCUEError(err)
	}

	for name, t := range cat.Tables {
		if dup := firstDuplicate(t.Volatile); dup != "" {
			return nil, &Error{
				Field:   "tables." + name + ".volatile",
				Message: fmt.Sprintf("column %q listed twice", dup),
				Pos:     unified.LookupPath(cue.MakePath(cue.Str("tables"), cue.Str(name))).Pos(),
			}
		}
	}
	return &cat, nil
}

// VolatileColumns returns the global volatile columns plus those of
// table, sorted and without duplicates. It implements
// engine.VolatileSource.
func (c *Catalog) VolatileColumns(table string) []string {
	cols := slices.Clone(c.Volatile)
	if t, ok := c.Tables[table]; ok {
		cols = append(cols, t.Volatile...)
	}
	slices.Sort(cols)
	return slices.Compact(cols)
}

// TableNames returns the catalogued tables in sorted order.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func firstDuplicate(cols []string) string {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return c
		}
		seen[c] = true
	}
	return ""
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
