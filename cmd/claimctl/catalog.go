package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/claimsync/internal/models"
)

var importCatalogCmd = &cobra.Command{
	Use:   "import-catalog <file.json>",
	Short: "Load line-item pricing into the offline search catalog",
	Long: `Read a JSON array of catalog rows and upsert them by code:

  [{"code": "DRY-1", "description": "Drywall", "price": "3.10", "category": "walls", "unit": "SF"}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		items, err := parseCatalog(f)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.UpsertCatalog(cmd.Context(), items); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📚 Imported %d catalog items\n", len(items))
		return nil
	},
}

// parseCatalog decodes and normalizes catalog rows. Codes are required and
// a repeated code keeps its last row.
func parseCatalog(r io.Reader) ([]models.CachedLineItem, error) {
	var rows []models.CachedLineItem
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	now := time.Now().UTC()
	index := make(map[string]int, len(rows))
	out := make([]models.CachedLineItem, 0, len(rows))
	for i, row := range rows {
		row.Code = strings.TrimSpace(row.Code)
		if row.Code == "" {
			return nil, fmt.Errorf("catalog row %d has no code", i)
		}
		if row.Price.IsNegative() {
			return nil, fmt.Errorf("catalog row %s has a negative price", row.Code)
		}
		row.UpdatedAt = now
		if j, ok := index[row.Code]; ok {
			out[j] = row
			continue
		}
		index[row.Code] = len(out)
		out = append(out, row)
	}
	return out, nil
}
