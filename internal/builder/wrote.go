package builder

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// rpmbuild reports every package it writes on a line of its own.
var wroteRe = regexp.MustCompile(`^Wrote: +(.+)$`)

// ParseWrote scans a builder log for produced files ending with one of the
// given suffixes, in log order and without duplicates.
func ParseWrote(logFile string, suffixes ...string) ([]string, error) {
	f, err := os.Open(logFile)
	if err != nil {
		return nil, fmt.Errorf("opening builder log: %w", err)
	}
	defer f.Close()

	var paths []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := wroteRe.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		path := strings.TrimSpace(m[1])
		if seen[path] || !hasAnySuffix(path, suffixes) {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", logFile, err)
	}
	return paths, nil
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
