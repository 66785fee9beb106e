// Command update-cache rebuilds the reference cache from the SPARQL endpoint.
//
// Usage:
//
//	go run ./cmd/update-cache
//
// Configuration comes from the environment (or a .env file):
// ECOREF_DATA_PATH (default data_cache), ECOREF_ENDPOINT and
// ECOREF_STORE (file or sqlite).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andreiashu/ecoregions"
	"github.com/andreiashu/ecoregions/internal/cli"
)

func main() {
	env := cli.LoadEnv()
	l := cli.SetupLogger()

	opts, closeStore, err := env.Options(l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	fmt.Printf("Rebuilding reference cache from %s...\n", env.Endpoint)
	rc, err := ecoregions.BuildOrLoad(context.Background(), append(opts, ecoregions.WithRebuild(true))...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeStore()
		os.Exit(1)
	}

	fmt.Printf("Cache rebuilt: %d admin units, %d ecoregions (%s store in %s).\n",
		len(rc.Admin), len(rc.Ecoregions), env.Store, env.DataPath)
}
