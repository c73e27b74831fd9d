package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const module = "github.com/Thejuampi/realtime-client-go/"

func fullProfile(hitsFor func(file string) int) string {
	var builder strings.Builder
	builder.WriteString("mode: set\n")
	for _, name := range append(append([]string(nil), pureFiles...), ioFiles...) {
		builder.WriteString(module + name + ":10.2,12.3 4 1\n")
		builder.WriteString(module + name + ":14.2,16.3 1 " + string(rune('0'+hitsFor(name))) + "\n")
	}
	return builder.String()
}

func TestParseProfile(t *testing.T) {
	files, err := parseProfile(strings.NewReader("mode: atomic\n" +
		module + "realtime/state.go:3.1,4.2 2 5\n" +
		module + "realtime/state.go:6.1,7.2 3 0\n"))
	require.NoError(t, err)
	assert.Equal(t, coverage{covered: 2, total: 5}, files[module+"realtime/state.go"])

	_, err = parseProfile(strings.NewReader("mode: set\nbroken line\n"))
	require.Error(t, err)
}

func TestEvaluatePasses(t *testing.T) {
	files, err := parseProfile(strings.NewReader(fullProfile(func(string) int { return 1 })))
	require.NoError(t, err)

	total, failures := evaluate(files, thresholds{overall: 90, pure: 100, io: 80})
	assert.Empty(t, failures)
	assert.Equal(t, 100.0, total.percent())
}

func TestEvaluateReportsFailures(t *testing.T) {
	files, err := parseProfile(strings.NewReader(fullProfile(func(name string) int {
		if name == "realtime/emitter.go" {
			return 0
		}
		return 1
	})))
	require.NoError(t, err)
	delete(files, module+"realtime/websocket.go")

	_, failures := evaluate(files, thresholds{overall: 50, pure: 100, io: 80})
	assert.Equal(t, []string{
		"io file realtime/websocket.go is missing from the profile",
		"pure file realtime/emitter.go is 80.0% (required 100.0%)",
	}, failures)
}
