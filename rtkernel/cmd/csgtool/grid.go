package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"csgtrace/rtkernel/diagplot"
	"csgtrace/rtkernel/gridrun"
	"csgtrace/rtkernel/gridview"
	"csgtrace/rtkernel/partdump"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/telemetry"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	gridCols     int
	gridRows     int
	gridAzimuth  float64
	gridElev     float64
	gridCellSize float64
	gridWorkers  int
	gridOneHit   bool
	gridDump     string
	gridDepth    string
	gridMetrics  bool
)

func init() {
	cmdGrid.Flags().IntVar(&gridCols, "cols", 256, "Grid columns")
	cmdGrid.Flags().IntVar(&gridRows, "rows", 256, "Grid rows")
	cmdGrid.Flags().Float64Var(&gridAzimuth, "az", 35, "View azimuth in degrees")
	cmdGrid.Flags().Float64Var(&gridElev, "el", 25, "View elevation in degrees")
	cmdGrid.Flags().Float64Var(&gridCellSize, "cell-size", 0, "Cell edge in model units; 0 fits the model")
	cmdGrid.Flags().IntVar(&gridWorkers, "workers", runtime.NumCPU(), "Shooting workers")
	cmdGrid.Flags().BoolVar(&gridOneHit, "one-hit", false, "Stop each ray at its first partition")
	cmdGrid.Flags().StringVar(&gridDump, "dump", "", "Write every hit cell's partitions to this file")
	cmdGrid.Flags().StringVar(&gridDepth, "depth", "", "Write a depth map image to this file")
	cmdGrid.Flags().BoolVar(&gridMetrics, "metrics", false, "Print per-worker counters when done")
}

var cmdGrid = &cobra.Command{
	Use:   "grid",
	Short: "Shoot a grid of parallel rays at the scene",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		policy, err := overlapPolicy()
		if err != nil {
			return err
		}

		m, cleanup, err := loadModel(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		v, err := gridview.New(m.Bounds(), gridAzimuth, gridElev, gridCols, gridRows, gridCellSize)
		if err != nil {
			return fmt.Errorf("while framing view: %w", err)
		}

		var dump *partdump.Writer
		if gridDump != "" {
			f, err := os.Create(gridDump)
			if err != nil {
				return fmt.Errorf("while creating dump file: %w", err)
			}
			defer f.Close()
			dump, err = partdump.NewWriter(f)
			if err != nil {
				return err
			}
		}

		var depth *diagplot.DepthGrid
		if gridDepth != "" {
			depth = diagplot.NewDepthGrid(v.Cols, v.Rows)
		}

		// dumpMu guards dumpErr.
		var dumpMu sync.Mutex
		var dumpErr error
		onHit := func(col, row int, r *ray.Ray, parts raytrace.PartitionList) {
			if depth != nil {
				depth.Record(col, row, r, parts)
			}
			if dump != nil {
				if err := dump.Write(partdump.NewRecord(col, row, r, parts)); err != nil {
					dumpMu.Lock()
					if dumpErr == nil {
						dumpErr = err
					}
					dumpMu.Unlock()
				}
			}
		}

		var overlaps int64
		onOverlap := func(o *raytrace.Overlap) {
			if atomic.AddInt64(&overlaps, 1) <= 10 {
				glog.Warningf("Overlap: %v", o)
			}
		}

		progress := func(done, total int) {
			if done%64 == 0 || done == total {
				glog.V(1).Infof("%d/%d rows", done, total)
			}
		}

		run, err := gridrun.Run(ctx, m, v, onHit, onOverlap,
			gridrun.WithWorkers(gridWorkers),
			gridrun.WithOneHit(gridOneHit),
			gridrun.WithPolicy(policy),
			gridrun.WithProgress(progress))
		if err != nil {
			return err
		}
		if dumpErr != nil {
			return fmt.Errorf("while dumping partitions: %w", dumpErr)
		}

		fmt.Printf("%d rays in %v (%.0f rays/s)\n", run.Total.Rays, run.Elapsed, run.RaysPerSecond())
		fmt.Printf("%d hits, %d misses, %d overlaps\n", run.Total.Hits, run.Total.Misses, run.Total.Overlaps)

		if dump != nil {
			if err := dump.Close(); err != nil {
				return err
			}
			glog.Infof("Wrote %d partition records to %s", dump.Count(), gridDump)
		}
		if depth != nil {
			if err := diagplot.Save(diagplot.DepthMap(depth), gridDepth); err != nil {
				return err
			}
		}

		if gridMetrics {
			metrics := telemetry.NewMetrics()
			if err := metrics.RegisterMetrics(); err != nil {
				return fmt.Errorf("while registering metrics: %w", err)
			}
			defer metrics.UnregisterMetrics()
			if err := metrics.RecordRun(ctx, run); err != nil {
				return err
			}
			if err := metrics.Dump(os.Stdout); err != nil {
				return err
			}
		}
		return nil
	},
}
