package model

import "sort"

// Inspection is the result of verifying an export directory against its manifest.
type Inspection struct {
	ExportDir          string         `json:"export_dir"`
	LinesTotal         int            `json:"lines_total"`
	LinesInvalidJSON   int            `json:"lines_invalid_json"`
	Kinds              map[string]int `json:"kinds"`
	ReferencedFiles    int            `json:"referenced_files"`
	MissingFiles       int            `json:"missing_files"`
	MissingByKey       map[string]int `json:"missing_by_key"`
	MissingPathsSample []string       `json:"missing_paths_sample"`
}

// Count is a named counter, used to present maps in a stable order.
type Count struct {
	Key   string
	Value int
}

// SortedCounts orders m by descending value, then by key.
func SortedCounts(m map[string]int) []Count {
	counts := make([]Count, 0, len(m))
	for k, v := range m {
		counts = append(counts, Count{Key: k, Value: v})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Value != counts[j].Value {
			return counts[i].Value > counts[j].Value
		}
		return counts[i].Key < counts[j].Key
	})
	return counts
}
