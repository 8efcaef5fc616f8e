// beamdis: disassembler for compiled BEAM modules.
//
// This is the command-line entry point. It accepts single .beam files,
// .ez archives and directory trees, decodes every module it finds on a
// worker pool, writes the disassembly as <module>.beamc files, and can
// optionally record every decoded module in a persistent catalog.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/relicsec/beamdis/internal/types"
	"github.com/relicsec/beamdis/pkg/catalog"
	"github.com/relicsec/beamdis/pkg/loader"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	inputFile   = flag.String("f", "", "Disassemble a single .beam file or .ez archive")
	scanDir     = flag.String("s", "", "Scan a directory tree for .beam and .ez files")
	outputDir   = flag.String("o", "beamcode", "Output directory for .beamc files")
	workers     = flag.Int("workers", 0, "Decode worker count (0 = number of CPUs)")
	catalogPath = flag.String("catalog", "", "Record decoded modules in a catalog database at this path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("beamdis %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if *inputFile == "" && *scanDir == "" {
		fmt.Fprintln(os.Stderr, "usage: beamdis -f file.beam | -s dir [-o outdir]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	sources, problems, err := collectSources()
	if err != nil {
		log.Fatalf("Failed to collect inputs: %v", err)
	}
	for _, p := range problems {
		log.Printf("Warning: %v", p)
	}
	if len(sources) == 0 {
		log.Fatalf("No modules found")
	}
	log.Printf("Decoding %d modules", len(sources))

	start := time.Now()
	results := loader.DecodeAll(sources, *workers)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			log.Printf("Failed: %s: %v", res.Source, res.Err)
		}
	}

	written, err := loader.WriteOutputs(results, *outputDir)
	if err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}
	log.Printf("Wrote %d files to %s (%d failed) in %v",
		written, *outputDir, failed, time.Since(start).Round(time.Millisecond))

	if *catalogPath != "" {
		if err := recordResults(sources, results); err != nil {
			log.Fatalf("Failed to update catalog: %v", err)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// collectSources gathers module buffers from the -f and -s flags.
func collectSources() ([]loader.Source, []error, error) {
	var sources []loader.Source
	var problems []error

	if *inputFile != "" {
		if strings.HasSuffix(strings.ToLower(*inputFile), ".ez") {
			members, memberProblems, err := loader.ReadArchive(*inputFile)
			if err != nil {
				return nil, nil, err
			}
			problems = append(problems, memberProblems...)
			sources = append(sources, members...)
		} else {
			src, err := loader.ReadFile(*inputFile)
			if err != nil {
				return nil, nil, err
			}
			sources = append(sources, src)
		}
	}

	if *scanDir != "" {
		found, scanProblems, err := loader.Scan(*scanDir)
		if err != nil {
			return nil, nil, err
		}
		problems = append(problems, scanProblems...)
		sources = append(sources, found...)
	}

	return sources, problems, nil
}

// recordResults stores every successfully decoded module in the catalog.
func recordResults(sources []loader.Source, results []loader.Result) error {
	cat, err := catalog.Open(catalog.DefaultConfig(*catalogPath))
	if err != nil {
		return err
	}
	defer cat.Close()

	stored := 0
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		record := &catalog.Record{
			Name:         res.Module.Name(),
			Source:       res.Source,
			Fingerprint:  types.FingerprintOf(sources[i].Data),
			Exports:      res.Module.ExportStrings(),
			Instructions: len(res.Module.Instructions),
			Disassembly:  res.Module.Disassemble(),
		}
		if err := cat.Put(record); err != nil {
			if errors.Is(err, catalog.ErrEmptyName) {
				log.Printf("Warning: %s has no module name, not cataloged", res.Source)
				continue
			}
			return err
		}
		stored++
	}

	log.Printf("Cataloged %d modules in %s", stored, *catalogPath)
	return nil
}
