// Package geojson provides light-touch scanning of GeoJSON files, used where
// the pipeline needs property values without decoding geometries (notably
// discovering name-key values ahead of a partitioned load).
package geojson

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/storage"
)

// DistinctPropertyValues returns the distinct, non-empty values of the named
// feature property in first-seen order.
func DistinctPropertyValues(data []byte, property string) []string {
	if property == "" {
		return nil
	}

	values := gjson.GetBytes(data, "features.#.properties."+property)

	seen := map[string]struct{}{}
	var out []string
	values.ForEach(func(_, v gjson.Result) bool {
		key := storage.NormalizeKey(v.String())
		if key == "" {
			return true
		}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		out = append(out, key)
		return true
	})
	return out
}

// DistinctPropertyValuesFile reads path and returns the distinct values of
// the named property.
func DistinctPropertyValuesFile(path, property string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("scan %s: not valid JSON", path)
	}
	return DistinctPropertyValues(data, property), nil
}
