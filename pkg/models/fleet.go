package models

// OnlineStatus reports whether a node or cluster is reachable
type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
)

// Coordinates locates a data center on the map
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// ClusterProfile is the static description of one GPU cluster
type ClusterProfile struct {
	Letter   string      `json:"letter" yaml:"letter"`
	GPUBias  float64     `json:"gpuBias" yaml:"gpu_bias"`
	Site     string      `json:"site" yaml:"site"`
	Region   string      `json:"region" yaml:"region"`
	Workload string      `json:"workload" yaml:"workload"`
	Location Coordinates `json:"location" yaml:"location"`
}

// Node is one simulated GPU server. Nodes are rebuilt on every synthesis.
type Node struct {
	ID           int          `json:"id"`
	Label        string       `json:"label"`
	Cluster      string       `json:"cluster"`
	GPULoad      float64      `json:"gpuLoad"`
	Cooling      float64      `json:"cooling"`
	TemperatureC float64      `json:"temperatureC"`
	PowerKW      float64      `json:"powerKW"`
	CoolingKW    float64      `json:"coolingKW"`
	Status       OnlineStatus `json:"status"`
}

// Online reports whether the node is reachable
func (n Node) Online() bool {
	return n.Status == StatusOnline
}

// Cluster aggregates the nodes of one profile for a single tick
type Cluster struct {
	Profile         ClusterProfile `json:"profile"`
	Nodes           []Node         `json:"nodes"`
	AvgGPULoad      float64        `json:"avgGpuLoad"`
	AvgCooling      float64        `json:"avgCooling"`
	AvgTemperatureC float64        `json:"avgTemperatureC"`
	TotalPowerKW    float64        `json:"totalPowerKW"`
	TotalCoolingKW  float64        `json:"totalCoolingKW"`
	ActiveNodeCount int            `json:"activeNodeCount"`
	Status          OnlineStatus   `json:"status"`
	SpikeActive     bool           `json:"spikeActive"`
}

// Name returns the display name used on the wire ("Cluster A")
func (c Cluster) Name() string {
	return "Cluster " + c.Profile.Letter
}

// FleetSnapshot is the ordered set of clusters produced by one synthesis call
type FleetSnapshot struct {
	Clusters []Cluster `json:"clusters"`
}

// Nodes flattens all nodes of the fleet in cluster order
func (f FleetSnapshot) Nodes() []Node {
	var nodes []Node
	for _, c := range f.Clusters {
		nodes = append(nodes, c.Nodes...)
	}
	return nodes
}

// NodeCount returns the number of nodes across the fleet
func (f FleetSnapshot) NodeCount() int {
	count := 0
	for _, c := range f.Clusters {
		count += len(c.Nodes)
	}
	return count
}
