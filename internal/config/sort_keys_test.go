package config

import (
	"reflect"
	"testing"
)

func TestParseSortKeys(t *testing.T) {
	// ParseSortKeys returns the columns sorted on before time; time itself
	// is always appended by the Parquet writer.
	tests := []struct {
		name            string
		config          ParquetConfig
		wantSortKeys    map[string][]string
		wantDefaultKeys []string
		wantErr         bool
	}{
		{
			name:            "empty config sorts on time only",
			config:          ParquetConfig{},
			wantSortKeys:    map[string][]string{},
			wantDefaultKeys: nil,
		},
		{
			name: "single measurement",
			config: ParquetConfig{
				SortKeys: []string{"temperature:sensor_id"},
			},
			wantSortKeys: map[string][]string{
				"temperature": {"sensor_id"},
			},
		},
		{
			name: "multiple measurements, explicit time dropped",
			config: ParquetConfig{
				SortKeys: []string{
					"temperature:sensor_id,time",
					" cpu : host , region ",
				},
			},
			wantSortKeys: map[string][]string{
				"temperature": {"sensor_id"},
				"cpu":         {"host", "region"},
			},
		},
		{
			name: "default sort keys",
			config: ParquetConfig{
				DefaultSortKeys: "host, time",
			},
			wantSortKeys:    map[string][]string{},
			wantDefaultKeys: []string{"host"},
		},
		{
			name: "invalid format - missing colon",
			config: ParquetConfig{
				SortKeys: []string{"temperature"},
			},
			wantErr: true,
		},
		{
			name: "invalid format - empty measurement",
			config: ParquetConfig{
				SortKeys: []string{":sensor_id"},
			},
			wantErr: true,
		},
		{
			name: "invalid format - empty sort key",
			config: ParquetConfig{
				SortKeys: []string{"temperature:,host"},
			},
			wantErr: true,
		},
		{
			name: "invalid format - no keys after measurement",
			config: ParquetConfig{
				SortKeys: []string{"temperature:"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSortKeys, gotDefaultKeys, err := ParseSortKeys(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSortKeys() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(gotSortKeys, tt.wantSortKeys) {
				t.Errorf("ParseSortKeys() gotSortKeys = %v, want %v", gotSortKeys, tt.wantSortKeys)
			}
			if !reflect.DeepEqual(gotDefaultKeys, tt.wantDefaultKeys) {
				t.Errorf("ParseSortKeys() gotDefaultKeys = %v, want %v", gotDefaultKeys, tt.wantDefaultKeys)
			}
		})
	}
}
