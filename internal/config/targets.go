package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadTargets reads one path per line until the end of input. Blank lines
// are skipped.
func ReadTargets(reader io.Reader) ([]string, error) {
	targets := make([]string, 0)

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read files to watch: %w", err)
	}

	return targets, nil
}
