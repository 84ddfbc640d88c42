package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/db"
	"github.com/rateright/rateright/internal/intent"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a service-type catalog from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrapf(err, "read seed file %s", seedFile)
		}
		var entries []struct {
			Slug        string `json:"slug"`
			Name        string `json:"name"`
			Category    string `json:"category"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return eris.Wrap(err, "parse seed file")
		}
		if len(entries) == 0 {
			return eris.New("seed file contains no service types")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		types := make([]model.ServiceType, 0, len(entries))
		for _, e := range entries {
			if e.Name == "" {
				continue
			}
			slug := e.Slug
			if slug == "" {
				slug = intent.Slugify(e.Name)
			}
			category := e.Category
			if category == "" {
				category = intent.CategoryFromSlug(slug)
			}
			types = append(types, model.ServiceType{
				ID:          uuid.NewString(),
				Slug:        slug,
				Name:        e.Name,
				Category:    category,
				Description: e.Description,
				CreatedAt:   time.Now().UTC(),
			})
		}

		// COPY on postgres, row-by-row elsewhere
		if pg, ok := st.(*store.PostgresStore); ok {
			rows := make([][]any, len(types))
			for i, t := range types {
				rows[i] = []any{t.ID, t.Slug, t.Name, t.Category, t.Description, t.CreatedAt}
			}
			n, err := db.CopyFrom(ctx, pg.Pool(), "service_types",
				[]string{"id", "slug", "name", "category", "description", "created_at"}, rows)
			if err != nil {
				return eris.Wrap(err, "seed copy")
			}
			zap.L().Info("seeded service types", zap.Int64("count", n))
			return nil
		}

		for i := range types {
			if err := st.CreateServiceType(ctx, &types[i]); err != nil {
				return eris.Wrapf(err, "seed %s", types[i].Slug)
			}
		}
		zap.L().Info("seeded service types", zap.Int("count", len(types)))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "service_types.json", "path to the service-type catalog")
	rootCmd.AddCommand(seedCmd)
}
