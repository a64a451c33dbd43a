package lens

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
)

// MergeMeasured replaces the mount data of lenses from a measured data stream.
//
// Each line has the form "<label>:<json array of mounts>". Lines for labels
// that are not in the configuration are skipped. Blank lines are ignored.
// It returns the labels that were updated, in input order. The configuration
// is only changed when the whole stream decodes and the merged result is valid.
func (c *Config) MergeMeasured(r io.Reader) ([]string, error) {
	var updated []string
	staged := make(map[string][]Mount)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		label, payload, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing label separator", lineNo)
		}

		if _, ok := c.Entry(label); !ok {
			continue
		}

		var data []Mount
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			return nil, fmt.Errorf("line %d (%s): failed to decode mount data: %w", lineNo, label, err)
		}
		if _, seen := staged[label]; !seen {
			updated = append(updated, label)
		}
		staged[label] = data
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read measured data: %w", err)
	}

	merged := Config{General: c.General, Lenses: slices.Clone(c.Lenses)}
	for i, l := range merged.Lenses {
		if data, ok := staged[l.Label]; ok {
			merged.Lenses[i].Data = data
		}
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("merged config is invalid: %w", err)
	}
	c.Lenses = merged.Lenses
	return updated, nil
}
