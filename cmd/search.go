package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rateright/rateright/internal/model"
)

var (
	searchLat    float64
	searchLng    float64
	searchRadius float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search pass and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
			return eris.New("--lat and --lng are required")
		}

		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		resp := app.search.Search(cmd.Context(), model.SearchRequest{
			Query:        args[0],
			Latitude:     searchLat,
			Longitude:    searchLng,
			RadiusMeters: searchRadius,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(resp), "encode response")
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "latitude of the search centre")
	searchCmd.Flags().Float64Var(&searchLng, "lng", 0, "longitude of the search centre")
	searchCmd.Flags().Float64Var(&searchRadius, "radius", 0, "search radius in meters (default from config)")
	rootCmd.AddCommand(searchCmd)
}
