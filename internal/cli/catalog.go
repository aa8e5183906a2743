package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlrest/internal/catalog"
)

// CatalogResult describes a validated catalog.
type CatalogResult struct {
	Path     string              `json:"path"`
	Volatile []string            `json:"volatile"`
	Tables   map[string][]string `json:"tables"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog <file.cue>",
		Short: "Validate a table catalog",
		Long: `Validate a CUE table catalog and print the volatile columns the
schema-cache retry may strip from each table's UPDATEs.

Examples:
  sqlrest catalog crm.cue
  sqlrest catalog crm.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runCatalog(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return commandError(f, ErrCodeNotFound, fmt.Sprintf("catalog not found: %s", path), nil)
	}

	cat, err := catalog.Load(path)
	if err != nil {
		var details any
		var ce *catalog.Error
		if errors.As(err, &ce) {
			details = map[string]string{"field": ce.Field}
		}
		if outErr := f.Error(ErrCodeCatalog, err.Error(), details); outErr != nil {
			return outErr
		}
		return &ExitError{Code: ExitFailure, Message: "invalid catalog", Err: err, Reported: true}
	}

	result := CatalogResult{
		Path:     path,
		Volatile: cat.Volatile,
		Tables:   make(map[string][]string),
	}
	if result.Volatile == nil {
		result.Volatile = []string{}
	}
	for _, name := range cat.TableNames() {
		result.Tables[name] = cat.VolatileColumns(name)
	}

	if opts.Format == "json" {
		return f.Success(result)
	}

	f.fprintf(f.Colors.OK, "✓ %s\n", path)
	if len(cat.Volatile) > 0 {
		fmt.Fprintf(f.Writer, "  all tables: %s\n", strings.Join(cat.Volatile, ", "))
	}
	for _, name := range cat.TableNames() {
		fmt.Fprintf(f.Writer, "  %s: %s\n", name, strings.Join(result.Tables[name], ", "))
	}
	return nil
}
