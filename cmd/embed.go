package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var embedBatchSize int

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Backfill embeddings for service types missing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if app.embedder == nil {
			return eris.New("embedding backfill requires an OpenAI key")
		}

		total := 0
		for {
			missing, err := app.store.ListServiceTypesMissingEmbedding(ctx, embedBatchSize)
			if err != nil {
				return err
			}
			if len(missing) == 0 {
				break
			}

			texts := make([]string, len(missing))
			for i, st := range missing {
				texts[i] = fmt.Sprintf("%s %s %s", st.Name, st.Category, st.Description)
			}
			vectors, err := app.embedder.Embed(ctx, texts)
			if err != nil {
				return eris.Wrap(err, "embed batch")
			}
			if len(vectors) != len(missing) {
				return eris.Errorf("embedding count mismatch: %d texts, %d vectors", len(missing), len(vectors))
			}

			for i, st := range missing {
				if err := app.store.UpdateServiceTypeEmbedding(ctx, st.Slug, vectors[i]); err != nil {
					return eris.Wrapf(err, "update embedding for %s", st.Slug)
				}
				total++
			}
			zap.L().Info("embedded batch", zap.Int("count", len(missing)))
		}

		zap.L().Info("embedding backfill complete", zap.Int("total", total))
		return nil
	},
}

func init() {
	embedCmd.Flags().IntVar(&embedBatchSize, "batch-size", 50, "service types per embedding request")
	rootCmd.AddCommand(embedCmd)
}
