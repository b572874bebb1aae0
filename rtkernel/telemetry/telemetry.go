// Package telemetry holds the shoot counters each worker keeps for itself,
// and merges and exports them once a run is over.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Counters are owned by one worker and need no locking.
type Counters struct {
	Rays        int64
	ModelMisses int64
	Misses      int64
	Hits        int64

	CutLeaves int64
	Shots     int64
	ShotHits  int64
	Segments  int64

	Partitions int64
	Overlaps   int64

	PartitionAllocs int64
	PartitionReuses int64
	BitSetAllocs    int64
	BitSetReuses    int64
	SharedTakes     int64
	SharedGives     int64
}

// Merge adds o into c.
func (c *Counters) Merge(o *Counters) {
	c.Rays += o.Rays
	c.ModelMisses += o.ModelMisses
	c.Misses += o.Misses
	c.Hits += o.Hits
	c.CutLeaves += o.CutLeaves
	c.Shots += o.Shots
	c.ShotHits += o.ShotHits
	c.Segments += o.Segments
	c.Partitions += o.Partitions
	c.Overlaps += o.Overlaps
	c.PartitionAllocs += o.PartitionAllocs
	c.PartitionReuses += o.PartitionReuses
	c.BitSetAllocs += o.BitSetAllocs
	c.BitSetReuses += o.BitSetReuses
	c.SharedTakes += o.SharedTakes
	c.SharedGives += o.SharedGives
}

func (c *Counters) String() string {
	return fmt.Sprintf("rays=%d hits=%d misses=%d (model misses %d) leaves=%d shots=%d shot-hits=%d segs=%d parts=%d overlaps=%d",
		c.Rays, c.Hits, c.Misses, c.ModelMisses, c.CutLeaves, c.Shots, c.ShotHits, c.Segments, c.Partitions, c.Overlaps)
}

// Run is the result of one multi-worker run.
type Run struct {
	Workers []Counters
	Total   Counters
	Elapsed time.Duration
}

// NewRun merges the per-worker counters.
func NewRun(workers []Counters, elapsed time.Duration) *Run {
	r := &Run{
		Workers: workers,
		Elapsed: elapsed,
	}
	for i := range workers {
		r.Total.Merge(&workers[i])
	}
	return r
}

// RaysPerSecond is the run's throughput.
func (r *Run) RaysPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Total.Rays) / r.Elapsed.Seconds()
}

var workerKey = tag.MustNewKey("worker")

type measure struct {
	m   *stats.Int64Measure
	get func(*Counters) int64
}

// Metrics exports counters through opencensus.
type Metrics struct {
	measures []measure
	views    []*view.View
}

func NewMetrics() *Metrics {
	r := &Metrics{}
	add := func(name, desc string, get func(*Counters) int64) {
		m := stats.Int64("csgtrace/"+name, desc, stats.UnitDimensionless)
		r.measures = append(r.measures, measure{m: m, get: get})
		r.views = append(r.views, &view.View{
			Name:        "csgtrace/" + name,
			Description: desc,

			TagKeys: []tag.Key{workerKey},

			Measure:     m,
			Aggregation: view.Sum(),
		})
	}

	add("rays", "Rays shot", func(c *Counters) int64 { return c.Rays })
	add("model_misses", "Rays that missed the model bounding box", func(c *Counters) int64 { return c.ModelMisses })
	add("misses", "Rays with no partitions", func(c *Counters) int64 { return c.Misses })
	add("hits", "Rays with at least one partition", func(c *Counters) int64 { return c.Hits })
	add("shots", "Primitive intersection tests", func(c *Counters) int64 { return c.Shots })
	add("shot_hits", "Primitive intersection tests that hit", func(c *Counters) int64 { return c.ShotHits })
	add("partitions", "Partitions delivered to callers", func(c *Counters) int64 { return c.Partitions })
	add("overlaps", "Region overlaps reported", func(c *Counters) int64 { return c.Overlaps })
	add("partition_allocs", "Partitions allocated", func(c *Counters) int64 { return c.PartitionAllocs })
	add("partition_reuses", "Partitions reused from a pool", func(c *Counters) int64 { return c.PartitionReuses })
	add("shared_takes", "Items taken from the shared overflow list", func(c *Counters) int64 { return c.SharedTakes })

	return r
}

func (r *Metrics) RegisterMetrics() error {
	return view.Register(r.views...)
}

func (r *Metrics) UnregisterMetrics() {
	view.Unregister(r.views...)
}

// Record exports one worker's counters.
func (r *Metrics) Record(ctx context.Context, worker int, c *Counters) error {
	ms := make([]stats.Measurement, 0, len(r.measures))
	for _, m := range r.measures {
		ms = append(ms, m.m.M(m.get(c)))
	}
	return stats.RecordWithOptions(
		ctx,
		stats.WithTags(tag.Insert(workerKey, strconv.Itoa(worker))),
		stats.WithMeasurements(ms...))
}

// RecordRun exports every worker of a run.
func (r *Metrics) RecordRun(ctx context.Context, run *Run) error {
	for i := range run.Workers {
		if err := r.Record(ctx, i, &run.Workers[i]); err != nil {
			return fmt.Errorf("while recording worker %d: %w", i, err)
		}
	}
	return nil
}

// Dump writes the current value of every view, one row per worker.
func (r *Metrics) Dump(w io.Writer) error {
	for _, v := range r.views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			return fmt.Errorf("while retrieving view %q: %w", v.Name, err)
		}
		for _, row := range rows {
			sum, ok := row.Data.(*view.SumData)
			if !ok {
				continue
			}
			worker := ""
			for _, t := range row.Tags {
				if t.Key == workerKey {
					worker = t.Value
				}
			}
			if _, err := fmt.Fprintf(w, "%s\tworker=%s\t%.0f\n", v.Name, worker, sum.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
