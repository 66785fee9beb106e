// Command lookup resolves Wikidata IDs from the reference cache, building the
// cache on first use.
//
// Usage:
//
//	lookup admin <US|CA|MX> <label>
//	lookup code <external-id>
//	lookup eco <name-or-code>
//
// The ID is printed on stdout. The exit status is 2 when nothing matches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/andreiashu/ecoregions"
	"github.com/andreiashu/ecoregions/internal/cli"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lookup [-i] [-fuzzy N] admin <US|CA|MX> <label> | code <external-id> | eco <name-or-code>")
	flag.PrintDefaults()
}

func main() {
	ignoreCase := flag.Bool("i", false, "compare labels case-insensitively")
	fuzzy := flag.Int("fuzzy", 0, "max edit distance for label matches (0-3)")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	env := cli.LoadEnv()
	l := cli.SetupLogger()
	opts, closeStore, err := env.Options(l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	r, err := ecoregions.NewResolver(context.Background(), opts...)
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lo := ecoregions.LookupOptions{IgnoreCase: *ignoreCase, FuzzyDistance: *fuzzy}
	var (
		id string
		ok bool
	)
	switch args[0] {
	case "admin":
		if len(args) != 3 {
			usage()
			os.Exit(1)
		}
		id, ok = r.LookupAdmin(ecoregions.Category(args[1]), args[2], "", lo)
	case "code":
		id, ok = r.LookupAdmin("", "", args[1])
	case "eco":
		id, ok = r.LookupEcoregion(args[1], lo)
	default:
		usage()
		os.Exit(1)
	}

	if !ok {
		fmt.Fprintf(os.Stderr, "no match for %q\n", args[1:])
		os.Exit(2)
	}
	fmt.Println(id)
}
