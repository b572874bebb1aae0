package main

import (
	"context"
	"fmt"

	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"
	"csgtrace/rtkernel/shoot"
	"csgtrace/rtkernel/vmath/vec3"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	shootOrigin  []float64
	shootDir     []float64
	shootOneHit  bool
	shootNormals bool
)

func init() {
	cmdShoot.Flags().Float64SliceVar(&shootOrigin, "origin", []float64{10, 0, 0}, "Ray origin x,y,z")
	cmdShoot.Flags().Float64SliceVar(&shootDir, "dir", []float64{-1, 0, 0}, "Ray direction x,y,z; need not be unit length")
	cmdShoot.Flags().BoolVar(&shootOneHit, "one-hit", false, "Stop at the first partition")
	cmdShoot.Flags().BoolVar(&shootNormals, "normals", false, "Print hit points and surface normals")
}

func toVec(name string, f []float64) (vec3.T, error) {
	if len(f) != 3 {
		return vec3.T{}, fmt.Errorf("--%s needs 3 components, got %d", name, len(f))
	}
	return vec3.T{f[0], f[1], f[2]}, nil
}

var cmdShoot = &cobra.Command{
	Use:   "shoot",
	Short: "Fire one ray and print its partitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		origin, err := toVec("origin", shootOrigin)
		if err != nil {
			return err
		}
		dir, err := toVec("dir", shootDir)
		if err != nil {
			return err
		}
		policy, err := overlapPolicy()
		if err != nil {
			return err
		}

		m, cleanup, err := loadModel(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		ry := ray.Ray{Point: origin, Slope: vec3.Normalize(dir)}
		onHit := func(parts raytrace.PartitionList, m *model.Model) int {
			for _, p := range parts {
				fmt.Printf("%v\tregion=%d\tin=%v\tout=%v\n", p, p.Region.ID, p.InSolid, p.OutSolid)
				if shootNormals {
					in := p.InNormal(&ry)
					out := p.OutNormal(&ry)
					fmt.Printf("\tin  point=%v normal=%v\n", in.Point, in.Normal)
					fmt.Printf("\tout point=%v normal=%v\n", out.Point, out.Normal)
				}
			}
			return 1
		}
		onMiss := func() int {
			fmt.Println("miss")
			return 0
		}
		onOverlap := func(o *raytrace.Overlap) {
			fmt.Printf("overlap: %v\n", o)
		}

		pool := resource.NewPool(0, resource.NewShared())
		defer pool.Close()

		app := shoot.NewApplication(m, onHit, onMiss,
			shoot.WithOneHit(shootOneHit),
			shoot.WithPolicy(policy),
			shoot.WithOverlapHandler(onOverlap))
		app.Shoot(origin, dir, pool)

		glog.V(1).Infof("Counters: %v", &pool.Counters)
		return nil
	},
}
