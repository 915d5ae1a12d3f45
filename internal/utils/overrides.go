package utils

import (
	"bufio"
	"os"
	"strings"
)

// LoadOverrides loads a manual TVDB-to-IMDB id override table from a flat
// key=value file. Missing file yields an empty table so the resolver just
// falls back to network resolution.
func LoadOverrides(path string) (map[string]string, error) {
	overrides := make(map[string]string)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return overrides, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			overrides[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return overrides, nil
}
