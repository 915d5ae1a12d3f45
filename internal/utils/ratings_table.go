package utils

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// LoadRatingsTable loads a global IMDB id to rating table from a
// tab-separated dump (tconst<TAB>rating per line, header lines and
// unparseable ratings skipped). Used to prefer dataset ratings over the
// per-season episode batches when both are available.
func LoadRatingsTable(path string) (map[string]float64, error) {
	table := make(map[string]float64)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return table, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		id := strings.TrimSpace(fields[0])
		if !strings.HasPrefix(id, "tt") {
			continue
		}
		rating, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}
		table[id] = rating
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return table, nil
}
