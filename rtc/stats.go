package rtc

import (
	"sort"
	"strings"
)

// StatsSnapshot is a flat, point-in-time view of engine statistics. Keys
// are "<reportID>.<field>". Values are whatever the engine reported; no
// normalization is applied across backends.
type StatsSnapshot map[string]interface{}

// IDs returns the report ids whose "type" field equals statType, sorted
// for stable iteration.
func (s StatsSnapshot) IDs(statType string) []string {
	const suffix = ".type"
	var ids []string
	for key, value := range s {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if v, ok := value.(string); ok && v == statType {
			ids = append(ids, strings.TrimSuffix(key, suffix))
		}
	}
	sort.Strings(ids)
	return ids
}

// Get returns one field of one report.
func (s StatsSnapshot) Get(id, field string) (interface{}, bool) {
	v, ok := s[id+"."+field]
	return v, ok
}
