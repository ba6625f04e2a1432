// Package main statically validates source spec documents before they are
// deployed: it loads every YAML spec under a directory and reports schema,
// rule-grammar, and control-file problems, exiting 1 if any are found.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/meridian-markets/surveillance-platform/internal/specs"
)

const (
	version = "1.0.0-dev"
	name    = "speclint"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	dir := flag.String("dir", "", "directory of source spec YAML documents (defaults to TABLE_CONFIG_PATH)")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	path := *dir
	if path == "" {
		path = os.Getenv("TABLE_CONFIG_PATH")
	}

	if path == "" {
		fmt.Fprintln(os.Stderr, "speclint: -dir or TABLE_CONFIG_PATH is required")
		os.Exit(1)
	}

	registry, err := specs.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speclint: %v\n", err)
		os.Exit(1)
	}

	problems := specs.LintAll(registry)
	for _, p := range problems {
		fmt.Println(p)
	}

	if len(problems) > 0 {
		fmt.Fprintf(os.Stderr, "speclint: %d problem(s) in %d spec(s)\n", len(problems), len(registry.All()))
		os.Exit(1)
	}

	fmt.Printf("speclint: %d spec(s) OK\n", len(registry.All()))
}
