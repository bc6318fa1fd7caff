package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfacet/facetd/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "facetd",
		Short:         "Faceted search API over an Elasticsearch index",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("facetd %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
