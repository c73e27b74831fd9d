// Command perfgate runs the codec benchmarks and fails when ns/op or
// allocs/op regress past the recorded baseline.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type baselineEntry struct {
	NSOp     float64 `yaml:"ns_op"`
	AllocsOp float64 `yaml:"allocs_op"`
}

type baselineFile struct {
	Package    string                   `yaml:"package"`
	Benchmarks map[string]baselineEntry `yaml:"benchmarks"`
}

type benchResult struct {
	NSOp     float64
	AllocsOp float64
}

func loadBaseline(path string) (baselineFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return baselineFile{}, err
	}
	var baseline baselineFile
	if err := yaml.Unmarshal(data, &baseline); err != nil {
		return baselineFile{}, err
	}
	if len(baseline.Benchmarks) == 0 {
		return baselineFile{}, fmt.Errorf("baseline %s lists no benchmarks", path)
	}
	return baseline, nil
}

// parseBenchOutput reads `go test -bench -benchmem` output. The -N GOMAXPROCS
// suffix is stripped from benchmark names.
func parseBenchOutput(output string) map[string]benchResult {
	results := map[string]benchResult{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := fields[0]
		if dash := strings.LastIndex(name, "-"); dash > 0 {
			name = name[:dash]
		}

		var result benchResult
		var seenNS, seenAllocs bool
		for i := 1; i+1 < len(fields); i++ {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "ns/op":
				result.NSOp, seenNS = value, true
			case "allocs/op":
				result.AllocsOp, seenAllocs = value, true
			}
		}
		if seenNS && seenAllocs && result.NSOp > 0 {
			results[name] = result
		}
	}
	return results
}

// compare returns one failure line per regression, sorted.
func compare(baseline map[string]baselineEntry, results map[string]benchResult, maxRegression float64) []string {
	factor := 1 + maxRegression/100
	var failures []string
	for name, expected := range baseline {
		actual, ok := results[name]
		if !ok {
			failures = append(failures, "missing benchmark result: "+name)
			continue
		}
		if limit := expected.NSOp * factor; actual.NSOp > limit {
			failures = append(failures, fmt.Sprintf("%s ns/op: baseline %.0f, actual %.0f, limit %.0f", name, expected.NSOp, actual.NSOp, limit))
		}
		if limit := expected.AllocsOp * factor; actual.AllocsOp > limit {
			failures = append(failures, fmt.Sprintf("%s allocs/op: baseline %.0f, actual %.0f, limit %.0f", name, expected.AllocsOp, actual.AllocsOp, limit))
		}
	}
	sort.Strings(failures)
	return failures
}

func benchPattern(baseline map[string]baselineEntry) string {
	names := make([]string, 0, len(baseline))
	for name := range baseline {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	return "^(" + strings.Join(names, "|") + ")$"
}

func main() {
	baselinePath := flag.String("baseline", "tools/perf_baseline.yaml", "benchmark baseline file")
	benchtime := flag.String("benchtime", "1s", "go test -benchtime value")
	maxRegression := flag.Float64("max-regression", 15.0, "allowed regression in percent")
	flag.Parse()

	baseline, err := loadBaseline(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfgate: %v\n", err)
		os.Exit(1)
	}
	pkg := baseline.Package
	if pkg == "" {
		pkg = "./realtime/protocol"
	}

	command := exec.Command("go", "test", pkg, "-run", "^$", "-bench", benchPattern(baseline.Benchmarks), "-benchmem", "-count=1", "-benchtime="+*benchtime) // #nosec G204 -- no shell expansion
	outputBytes, err := command.CombinedOutput()
	output := string(outputBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfgate: benchmarks failed: %v\n%s", err, output)
		os.Exit(1)
	}

	fmt.Print(output)
	failures := compare(baseline.Benchmarks, parseBenchOutput(output), *maxRegression)
	if len(failures) == 0 {
		fmt.Println("perf gate: PASS")
		return
	}
	fmt.Println("perf gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
