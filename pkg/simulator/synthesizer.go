package simulator

import (
	"fmt"
	"math"
	"sync"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// RandomSource supplies uniform draws in [0, 1). *rand.Rand from
// math/rand/v2 satisfies it; tests supply fixed sequences.
type RandomSource interface {
	Float64() float64
}

// Params holds the constants of the node heuristics
type Params struct {
	NodesPerCluster int

	BaseLoad   float64
	LoadJitter float64 // rawLoad = BaseLoad + bias ± LoadJitter

	CoolingHeadroom        float64 // idealCooling = load + CoolingHeadroom
	OptimizedProbability   float64
	OptimizedJitter        float64
	ModeratePenaltyShare   float64 // share of lagging nodes with the moderate penalty
	ModerateCoolingPenalty float64
	SevereCoolingPenalty   float64

	BaseTemperatureC   float64
	TemperaturePerLoad float64
	TemperatureJitter  float64

	BasePowerKW       float64
	LoadPowerRangeKW  float64
	CoolingFanPowerKW float64
	CoolingPlantKW    float64 // facility cooling at 100% cooling output

	OfflineProbability float64
}

// DefaultParams returns the canonical heuristics
func DefaultParams() Params {
	return Params{
		NodesPerCluster: 8,

		BaseLoad:   50,
		LoadJitter: 15,

		CoolingHeadroom:        5,
		OptimizedProbability:   0.7,
		OptimizedJitter:        5,
		ModeratePenaltyShare:   0.7,
		ModerateCoolingPenalty: 15,
		SevereCoolingPenalty:   25,

		BaseTemperatureC:   20,
		TemperaturePerLoad: 0.2,
		TemperatureJitter:  2,

		BasePowerKW:       8,
		LoadPowerRangeKW:  40,
		CoolingFanPowerKW: 6,
		CoolingPlantKW:    12,

		OfflineProbability: 0.02,
	}
}

// Synthesizer produces fleet snapshots from the static profiles
type Synthesizer struct {
	profiles ProfileSet
	params   Params

	mu  sync.Mutex // guards rnd
	rnd RandomSource
}

// NewSynthesizer creates a synthesizer over the given profiles
func NewSynthesizer(profiles ProfileSet, params Params, rnd RandomSource) (*Synthesizer, error) {
	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	if params.NodesPerCluster < 1 {
		return nil, fmt.Errorf("nodes per cluster must be at least 1, got %d", params.NodesPerCluster)
	}
	if rnd == nil {
		return nil, fmt.Errorf("random source is required")
	}

	return &Synthesizer{
		profiles: profiles,
		params:   params,
		rnd:      rnd,
	}, nil
}

// Profiles returns the cluster profiles in fleet order
func (s *Synthesizer) Profiles() []models.ClusterProfile {
	profiles := make([]models.ClusterProfile, len(s.profiles.Profiles))
	copy(profiles, s.profiles.Profiles)
	return profiles
}

// Synthesize builds one fleet snapshot biased by the given spike state.
// Every node consumes exactly five draws, in order: offline, load jitter,
// cooling mode, cooling detail, temperature jitter. Offline nodes still
// consume their draws so that two calls from the same seed stay aligned.
func (s *Synthesizer) Synthesize(spike models.SpikeState) models.FleetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fleet := models.FleetSnapshot{
		Clusters: make([]models.Cluster, 0, len(s.profiles.Profiles)),
	}

	for ci, profile := range s.profiles.Profiles {
		spiking := spike.Active() && Affected(profile, spike.AffectedRegion)
		multiplier := 1.0
		if spiking {
			multiplier = spike.Multiplier
		}

		cluster := models.Cluster{
			Profile:     profile,
			Nodes:       make([]models.Node, 0, s.params.NodesPerCluster),
			SpikeActive: spiking,
		}

		for i := 0; i < s.params.NodesPerCluster; i++ {
			node := s.synthesizeNode(profile, multiplier)
			node.ID = ci*s.params.NodesPerCluster + i + 1
			node.Label = fmt.Sprintf("%s%d", profile.Letter, i+1)
			node.Cluster = profile.Letter
			cluster.Nodes = append(cluster.Nodes, node)
		}

		summarizeCluster(&cluster)
		fleet.Clusters = append(fleet.Clusters, cluster)
	}

	return fleet
}

func (s *Synthesizer) synthesizeNode(profile models.ClusterProfile, multiplier float64) models.Node {
	p := s.params

	offline := s.rnd.Float64() < p.OfflineProbability

	rawLoad := p.BaseLoad + profile.GPUBias + s.uniform(-p.LoadJitter, p.LoadJitter)
	load := math.Floor(clamp(rawLoad*multiplier, 0, 100))

	mode := s.rnd.Float64()
	detail := s.rnd.Float64()
	var cooling float64
	switch {
	case mode < p.OptimizedProbability:
		cooling = load + p.CoolingHeadroom + (-p.OptimizedJitter + 2*p.OptimizedJitter*detail)
	case detail < p.ModeratePenaltyShare:
		cooling = load + p.ModerateCoolingPenalty
	default:
		cooling = load + p.SevereCoolingPenalty
	}
	cooling = clamp(cooling, 0, 100)

	temperature := p.BaseTemperatureC + p.TemperaturePerLoad*load +
		s.uniform(-p.TemperatureJitter, p.TemperatureJitter) +
		s.profiles.TemperatureBias(profile.Site)

	if offline {
		return models.Node{Status: models.StatusOffline}
	}

	return models.Node{
		GPULoad:      load,
		Cooling:      cooling,
		TemperatureC: math.Max(temperature, 0),
		PowerKW:      nodePower(p, load, cooling),
		CoolingKW:    cooling / 100 * p.CoolingPlantKW,
		Status:       models.StatusOnline,
	}
}

// nodePower is strictly increasing in both load and cooling and never negative
func nodePower(p Params, load, cooling float64) float64 {
	return p.BasePowerKW + load/100*p.LoadPowerRangeKW + cooling/100*p.CoolingFanPowerKW
}

func summarizeCluster(c *models.Cluster) {
	var load, cooling, temperature float64
	for _, n := range c.Nodes {
		load += n.GPULoad
		cooling += n.Cooling
		temperature += n.TemperatureC
		c.TotalPowerKW += n.PowerKW
		c.TotalCoolingKW += n.CoolingKW
		if n.Online() {
			c.ActiveNodeCount++
		}
	}

	if count := float64(len(c.Nodes)); count > 0 {
		c.AvgGPULoad = load / count
		c.AvgCooling = cooling / count
		c.AvgTemperatureC = temperature / count
	}

	c.Status = models.StatusOnline
	if c.ActiveNodeCount == 0 {
		c.Status = models.StatusOffline
	}
}

func (s *Synthesizer) uniform(min, max float64) float64 {
	return min + (max-min)*s.rnd.Float64()
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}
