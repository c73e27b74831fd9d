// Command coveragegate checks a go coverage profile against per-file
// thresholds.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

type coverage struct {
	covered int
	total   int
}

func (c coverage) percent() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.covered) * 100 / float64(c.total)
}

// Files without I/O are held to the -pure threshold; socket and loop code to
// the lower -io threshold.
var pureFiles = []string{
	"realtime/protocol/codec.go",
	"realtime/protocol/event.go",
	"realtime/channel_state.go",
	"realtime/emitter.go",
	"realtime/errors.go",
	"realtime/options.go",
	"realtime/outbound_queue.go",
	"realtime/reconnect_strategy.go",
	"realtime/state.go",
	"internal/logging/logging.go",
}

var ioFiles = []string{
	"realtime/transport.go",
	"realtime/channel.go",
	"realtime/client.go",
	"realtime/loop.go",
	"realtime/metrics.go",
	"realtime/websocket.go",
	"internal/fakeserver/server.go",
	"internal/fakeserver/journal.go",
}

func parseProfile(r io.Reader) (map[string]coverage, error) {
	result := map[string]coverage{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "mode:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed profile line %q", line)
		}
		colon := strings.LastIndex(fields[0], ":")
		if colon < 0 {
			return nil, fmt.Errorf("malformed block %q", fields[0])
		}
		statements, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("statement count in %q: %w", line, err)
		}
		hits, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("hit count in %q: %w", line, err)
		}

		file := fields[0][:colon]
		entry := result[file]
		entry.total += statements
		if hits > 0 {
			entry.covered += statements
		}
		result[file] = entry
	}
	return result, scanner.Err()
}

func lookup(files map[string]coverage, suffix string) (coverage, bool) {
	for name, cov := range files {
		if strings.HasSuffix(name, "/"+suffix) || name == suffix {
			return cov, true
		}
	}
	return coverage{}, false
}

type thresholds struct {
	overall float64
	pure    float64
	io      float64
}

// evaluate returns the aggregate coverage and the sorted list of failures.
func evaluate(files map[string]coverage, limits thresholds) (coverage, []string) {
	var total coverage
	for _, cov := range files {
		total.covered += cov.covered
		total.total += cov.total
	}

	var failures []string
	if total.percent()+1e-9 < limits.overall {
		failures = append(failures, fmt.Sprintf("aggregate coverage %.1f%% is below %.1f%%", total.percent(), limits.overall))
	}
	check := func(kind string, names []string, limit float64) {
		for _, name := range names {
			cov, ok := lookup(files, name)
			if !ok {
				failures = append(failures, fmt.Sprintf("%s file %s is missing from the profile", kind, name))
				continue
			}
			if cov.percent()+1e-9 < limit {
				failures = append(failures, fmt.Sprintf("%s file %s is %.1f%% (required %.1f%%)", kind, name, cov.percent(), limit))
			}
		}
	}
	check("pure", pureFiles, limits.pure)
	check("io", ioFiles, limits.io)

	sort.Strings(failures)
	return total, failures
}

func main() {
	profilePath := flag.String("profile", "coverage.out", "go coverage profile")
	var limits thresholds
	flag.Float64Var(&limits.overall, "overall", 85, "minimum aggregate coverage percentage")
	flag.Float64Var(&limits.pure, "pure", 95, "minimum coverage of pure files")
	flag.Float64Var(&limits.io, "io", 75, "minimum coverage of io files")
	flag.Parse()

	file, err := os.Open(*profilePath) // #nosec G304 -- path comes from the operator
	if err != nil {
		fmt.Fprintf(os.Stderr, "coveragegate: %v\n", err)
		os.Exit(1)
	}
	files, err := parseProfile(file)
	file.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "coveragegate: %v\n", err)
		os.Exit(1)
	}

	total, failures := evaluate(files, limits)
	fmt.Printf("aggregate: %.1f%% (%d/%d)\n", total.percent(), total.covered, total.total)
	if len(failures) == 0 {
		fmt.Println("coverage gate: PASS")
		return
	}
	fmt.Println("coverage gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
