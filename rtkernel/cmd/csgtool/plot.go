package main

import (
	"context"
	"fmt"

	"csgtrace/rtkernel/diagplot"
	"csgtrace/rtkernel/gridview"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	plotWireframe  string
	plotOccupancy  string
	plotTessellate int
)

func init() {
	cmdPlot.Flags().StringVar(&plotWireframe, "wireframe", "", "Write a wireframe of the solids to this file")
	cmdPlot.Flags().StringVar(&plotOccupancy, "occupancy", "", "Write a cut tree occupancy histogram to this file")
	cmdPlot.Flags().IntVar(&plotTessellate, "tessellate", 0, "Tessellate every finite solid at this resolution and report triangle counts")
	cmdPlot.Flags().Float64Var(&gridAzimuth, "az", 35, "View azimuth in degrees")
	cmdPlot.Flags().Float64Var(&gridElev, "el", 25, "View elevation in degrees")
}

var cmdPlot = &cobra.Command{
	Use:   "plot",
	Short: "Draw diagnostic pictures of the prepared scene",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m, cleanup, err := loadModel(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		st := m.Stats()
		fmt.Printf("%d solids (%d failed), %d regions\n", st.Solids, st.FailedSolids, st.Regions)
		fmt.Printf("cut tree: %d nodes, %d leaves (%d empty), depth %d, %.2f±%.2f solids/leaf\n",
			st.Cut.Nodes, st.Cut.Leaves, st.Cut.EmptyLeaves, st.Cut.MaxDepth, st.Cut.MeanOccupancy, st.Cut.StdOccupancy)

		if plotWireframe != "" {
			v, err := gridview.New(m.Bounds(), gridAzimuth, gridElev, 512, 512, 0)
			if err != nil {
				return fmt.Errorf("while framing view: %w", err)
			}
			p, err := diagplot.Wireframe(m, v)
			if err != nil {
				return err
			}
			if err := diagplot.Save(p, plotWireframe); err != nil {
				return err
			}
		}

		if plotOccupancy != "" {
			p, err := diagplot.Occupancy(st.Cut)
			if err != nil {
				return err
			}
			if err := diagplot.Save(p, plotOccupancy); err != nil {
				return err
			}
		}

		if plotTessellate > 0 {
			for _, s := range m.Solids() {
				mesh, err := s.Specific.Tessellate(plotTessellate)
				if err != nil {
					glog.Warningf("Solid %v: %v", s, err)
					continue
				}
				fmt.Printf("%v\t%d triangles\n", s, len(mesh.Triangles))
			}
		}
		return nil
	},
}
