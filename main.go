package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pelagic-data/bathy.report/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "process":
		err = handleProcess(args)
	case "import-nav":
		err = handleImportNav(args)
	case "import-svp":
		err = handleImportSVP(args)
	case "export":
		err = handleExport(args)
	case "report":
		err = handleReport(args)
	case "patch-test":
		err = handlePatchTest(args)
	case "migrate":
		err = handleMigrate(args)
	case "version":
		fmt.Printf("bathy-report version %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bathy-report - multibeam georeferencing and uncertainty pipeline

Usage: bathy-report <command> [options]

Commands:
  process     Run the processing pipeline over a survey dataset
  import-nav  Validate a navigation file and record the import
  import-svp  Validate sound velocity cast files and record the import
  export      Export processed soundings to an ASCII XYZ file
  report      Render the HTML uncertainty report (and optional SVP plot)
  patch-test  Solve calibration offsets from two overlapping lines
  migrate     Manage the database schema (up / down / version / force)
  version     Show version
  help        Show this help message

Common Flags:
  --db <file>       SQLite database path (default: bathy_data.db)
  --config <file>   Processing configuration JSON

Examples:
  # Apply schema migrations
  bathy-report migrate --db survey.db up

  # Process a dataset with defaults
  bathy-report process --db survey.db --dataset lines.json \
      --nav nav.json --svp cast1.svp --svp cast2.svp

  # Export one line without rejected soundings
  bathy-report export --db survey.db --out l1.xyz --line l1 --drop-rejected

  # Uncertainty report for the whole survey
  bathy-report report --db survey.db --out uncertainty.html`)
}
