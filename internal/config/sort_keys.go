package config

import (
	"fmt"
	"strings"
)

// ParseSortKeys parses the Parquet row ordering.
// Format: ["measurement:col1,col2", ...]
// Returns:
//   - map[measurement][]column: per-measurement sort columns
//   - []string: sort columns for measurements not in the map (may be empty)
//   - error: if the configuration is invalid
//
// The returned columns are additional to time, which is always the last sort
// key and is appended by the writer.
func ParseSortKeys(cfg ParquetConfig) (map[string][]string, []string, error) {
	perMeasurement := make(map[string][]string, len(cfg.SortKeys))

	for _, entry := range cfg.SortKeys {
		measurement, columns, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, nil, fmt.Errorf("invalid sort key format: %s (expected 'measurement:col1,col2')", entry)
		}

		measurement = strings.TrimSpace(measurement)
		if measurement == "" {
			return nil, nil, fmt.Errorf("empty measurement name in sort key: %s", entry)
		}

		keys, err := splitColumns(columns)
		if err != nil {
			return nil, nil, fmt.Errorf("%w in: %s", err, entry)
		}
		if len(keys) == 0 {
			return nil, nil, fmt.Errorf("no sort keys specified for measurement %s", measurement)
		}
		perMeasurement[measurement] = keys
	}

	var defaults []string
	for _, key := range strings.Split(cfg.DefaultSortKeys, ",") {
		if key = strings.TrimSpace(key); key != "" && key != "time" {
			defaults = append(defaults, key)
		}
	}

	return perMeasurement, defaults, nil
}

func splitColumns(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var keys []string
	for _, key := range strings.Split(list, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty sort key")
		}
		if key == "time" {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
