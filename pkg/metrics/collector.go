package metrics

import (
	"time"

	"github.com/hutchd/hutch/pkg/types"
)

// StateSource is the view of runtime state the collector polls. The
// orchestrator satisfies this.
type StateSource interface {
	ListImages() ([]*types.Image, error)
	ListInstances() ([]*types.Instance, error)
	ListVolumes() ([]*types.Volume, error)
	ListNetworks() ([]*types.Network, error)
}

// LayerStats reports aggregate layer store usage
type LayerStats interface {
	Stats() (count int, bytes int64)
}

// Collector collects metrics from the runtime state
type Collector struct {
	source StateSource
	layers LayerStats
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StateSource, layers LayerStats) *Collector {
	return &Collector{
		source: source,
		layers: layers,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectLayerMetrics()
	c.collectImageMetrics()
	c.collectInstanceMetrics()
	c.collectVolumeMetrics()
	c.collectNetworkMetrics()
}

func (c *Collector) collectLayerMetrics() {
	if c.layers == nil {
		return
	}
	count, bytes := c.layers.Stats()
	LayersTotal.Set(float64(count))
	LayerStoreBytes.Set(float64(bytes))
}

func (c *Collector) collectImageMetrics() {
	images, err := c.source.ListImages()
	if err != nil {
		return
	}

	ImagesTotal.Set(float64(len(images)))
}

func (c *Collector) collectInstanceMetrics() {
	instances, err := c.source.ListInstances()
	if err != nil {
		return
	}

	counts := make(map[types.InstanceState]int)
	for _, instance := range instances {
		counts[instance.State]++
	}

	// Update metrics
	for state, count := range counts {
		InstancesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectVolumeMetrics() {
	volumes, err := c.source.ListVolumes()
	if err != nil {
		return
	}

	named, anonymous := 0, 0
	for _, v := range volumes {
		if v.Anonymous {
			anonymous++
		} else {
			named++
		}
	}

	VolumesTotal.WithLabelValues("named").Set(float64(named))
	VolumesTotal.WithLabelValues("anonymous").Set(float64(anonymous))
}

func (c *Collector) collectNetworkMetrics() {
	networks, err := c.source.ListNetworks()
	if err != nil {
		return
	}

	NetworksTotal.Set(float64(len(networks)))
}
