package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var defaultReferenceYAML []byte

// Reference is the immutable lookup data handed to the text-scrape parser.
type Reference struct {
	Airlines        []string `yaml:"airlines"`
	AirportSuffixes []string `yaml:"airport_suffixes"`
	// RoutePool, TripTypes and CabinClasses drive random query selection.
	RoutePool    []string `yaml:"route_pool"`
	TripTypes    []string `yaml:"trip_types"`
	CabinClasses []string `yaml:"cabin_classes"`
}

// DefaultReference returns the reference data compiled into the binary.
func DefaultReference() (Reference, error) {
	return parseReference(defaultReferenceYAML)
}

// LoadReference reads reference data from a YAML file. An empty path yields
// the embedded default.
func LoadReference(path string) (Reference, error) {
	if path == "" {
		return DefaultReference()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to read reference file %s: %w", path, err)
	}
	return parseReference(data)
}

func parseReference(data []byte) (Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return Reference{}, fmt.Errorf("failed to parse reference data: %w", err)
	}
	ref.Airlines = cleanList(ref.Airlines)
	ref.AirportSuffixes = cleanList(ref.AirportSuffixes)
	ref.RoutePool = cleanList(ref.RoutePool)
	ref.TripTypes = cleanList(ref.TripTypes)
	ref.CabinClasses = cleanList(ref.CabinClasses)
	if len(ref.AirportSuffixes) == 0 {
		return Reference{}, fmt.Errorf("reference data: airport_suffixes must not be empty")
	}
	return ref, nil
}

func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
