package simulator

import (
	"fmt"
	"os"
	"strings"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
	"gopkg.in/yaml.v3"
)

// ProfileSet is the static fleet layout: cluster profiles plus the
// per-site temperature bias applied to every node of a site.
type ProfileSet struct {
	Profiles []models.ClusterProfile `yaml:"profiles"`
	SiteBias map[string]float64      `yaml:"site_temperature_bias"`
}

// DefaultProfileSet returns the canonical eight-cluster global fleet
func DefaultProfileSet() ProfileSet {
	return ProfileSet{
		Profiles: []models.ClusterProfile{
			{Letter: "A", GPUBias: 10, Site: "US-East (Virginia)", Region: "North America", Workload: "LLM Training", Location: models.Coordinates{Lat: 38.9, Lon: -77.4}},
			{Letter: "B", GPUBias: 5, Site: "US-West (Oregon)", Region: "North America", Workload: "Inference", Location: models.Coordinates{Lat: 45.6, Lon: -121.2}},
			{Letter: "C", GPUBias: -5, Site: "EU-North (Stockholm)", Region: "Europe", Workload: "Rendering", Location: models.Coordinates{Lat: 59.3, Lon: 18.1}},
			{Letter: "D", GPUBias: 0, Site: "EU-West (Dublin)", Region: "Europe", Workload: "Fine-tuning", Location: models.Coordinates{Lat: 53.3, Lon: -6.3}},
			{Letter: "E", GPUBias: 15, Site: "Asia-Pacific (Singapore)", Region: "Asia-Pacific", Workload: "LLM Training", Location: models.Coordinates{Lat: 1.35, Lon: 103.8}},
			{Letter: "F", GPUBias: -10, Site: "Asia-Pacific (Tokyo)", Region: "Asia-Pacific", Workload: "Batch Analytics", Location: models.Coordinates{Lat: 35.7, Lon: 139.7}},
			{Letter: "G", GPUBias: 8, Site: "Middle East (Dubai)", Region: "Middle East", Workload: "Inference", Location: models.Coordinates{Lat: 25.2, Lon: 55.3}},
			{Letter: "H", GPUBias: -3, Site: "Nordics (Reykjavik)", Region: "Europe", Workload: "Research", Location: models.Coordinates{Lat: 64.1, Lon: -21.9}},
		},
		SiteBias: map[string]float64{
			"EU-North (Stockholm)":     -3,
			"Nordics (Reykjavik)":      -3,
			"Asia-Pacific (Singapore)": 2,
			"Middle East (Dubai)":      2,
		},
	}
}

// LoadProfiles reads a ProfileSet from a YAML file
func LoadProfiles(path string) (ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfileSet{}, fmt.Errorf("failed to read profiles: %w", err)
	}

	var set ProfileSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return ProfileSet{}, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return ProfileSet{}, fmt.Errorf("invalid profiles %s: %w", path, err)
	}

	return set, nil
}

// Validate checks that profiles exist and letters are unique
func (s ProfileSet) Validate() error {
	if len(s.Profiles) == 0 {
		return fmt.Errorf("at least one cluster profile is required")
	}

	seen := make(map[string]bool, len(s.Profiles))
	for _, p := range s.Profiles {
		if p.Letter == "" {
			return fmt.Errorf("cluster profile without letter (site %q)", p.Site)
		}
		if seen[p.Letter] {
			return fmt.Errorf("duplicate cluster letter %q", p.Letter)
		}
		if p.Site == "" {
			return fmt.Errorf("cluster %s has no site", p.Letter)
		}
		seen[p.Letter] = true
	}
	return nil
}

// TemperatureBias returns the fixed regional temperature offset for a site
func (s ProfileSet) TemperatureBias(site string) float64 {
	return s.SiteBias[site]
}

// Affected reports whether a spike region matches a profile: "global"
// matches everything, otherwise a case-insensitive substring of the site.
func Affected(p models.ClusterProfile, region string) bool {
	if region == models.GlobalRegion {
		return true
	}
	return strings.Contains(strings.ToLower(p.Site), strings.ToLower(region))
}
