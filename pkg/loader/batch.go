package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/relicsec/beamdis/pkg/beam"
)

// Result is the outcome of decoding one source. Exactly one of Module and
// Err is set.
type Result struct {
	Source string
	Module *beam.Module
	Err    error
}

// DecodeAll decodes every source on a pool of workers. A malformed module
// produces a Result carrying its error and never disturbs the others.
// Results come back in source order. workers <= 0 selects runtime.NumCPU.
func DecodeAll(sources []Source, workers int) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	results := make([]Result, len(sources))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				mod, err := beam.Decode(sources[i].Data)
				results[i] = Result{Source: sources[i].Name, Module: mod, Err: err}
			}
		}()
	}
	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// WriteOutputs writes the disassembly of every successful result into dir
// as <module>.beamc, creating dir if needed. Failed results produce no
// artifact. It returns the number of files written.
func WriteOutputs(results []Result, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	written := 0
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		name := res.Module.Name()
		if name == "" {
			name = outputStem(res.Source)
		}
		path := filepath.Join(dir, name+".beamc")
		if err := os.WriteFile(path, []byte(res.Module.Disassemble()), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}

// outputStem derives an output name from a source name when the module has
// no atom table entry to name itself with.
func outputStem(source string) string {
	if i := strings.LastIndexByte(source, '!'); i >= 0 {
		source = source[i+1:]
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
