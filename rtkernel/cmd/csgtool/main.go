// csgtool prepares one of the built-in scenes and shoots rays at it.
package main

import (
	"context"
	"fmt"

	"csgtrace/rtkernel/booleval"
	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/prepcache"
	"csgtrace/rtkernel/scenes"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var cmdRoot = &cobra.Command{
	Use:          "csgtool",
	SilenceUsage: true,
}

var (
	sceneName   string
	prepWorkers int
	cutLen      int
	cacheDir    string
	clearCache  bool
	policyName  string
)

func init() {
	cmdRoot.PersistentFlags().StringVar(&sceneName, "scene", "boxes", "Built-in scene to load (see the scenes command)")
	cmdRoot.PersistentFlags().IntVar(&prepWorkers, "prep-workers", 4, "Solids prepared concurrently")
	cmdRoot.PersistentFlags().IntVar(&cutLen, "cut-len", 3, "Solids a cut tree leaf may hold before it is split")
	cmdRoot.PersistentFlags().StringVar(&cacheDir, "prep-cache", "", "Directory for the prepared primitive cache; empty disables it")
	cmdRoot.PersistentFlags().BoolVar(&clearCache, "clear-prep-cache", false, "Remove the prep cache before opening it")
	cmdRoot.PersistentFlags().StringVar(&policyName, "overlap-policy", "precedence", "Overlap resolution: precedence or first")
}

// loadModel builds and prepares the selected scene.  The returned func
// releases the model and the prep cache.
func loadModel(ctx context.Context) (*model.Model, func(), error) {
	opts := []model.Opt{
		model.WithPrepWorkers(prepWorkers),
		model.WithCutLen(cutLen),
	}

	var cache *prepcache.Cache
	if cacheDir != "" {
		var err error
		cache, err = prepcache.Open(cacheDir, clearCache)
		if err != nil {
			return nil, nil, fmt.Errorf("while opening prep cache: %w", err)
		}
		opts = append(opts, model.WithPrepCache(cache))
	}

	cleanup := func() {
		if cache != nil {
			st := cache.Stats()
			glog.Infof("Prep cache: %d hits, %d misses, %d puts", st.Hits, st.Misses, st.Puts)
			if err := cache.Close(); err != nil {
				glog.Errorf("Error closing prep cache: %v", err)
			}
		}
	}

	m, err := scenes.Build(sceneName, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := m.Prep(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("while preparing scene %q: %w", sceneName, err)
	}
	for _, f := range m.Failures() {
		glog.Warningf("Solid dropped: %v", f)
	}

	return m, func() {
		m.Cleanup()
		cleanup()
	}, nil
}

func overlapPolicy() (booleval.OverlapPolicy, error) {
	switch policyName {
	case "precedence":
		return booleval.PrecedencePolicy{}, nil
	case "first":
		return booleval.FirstPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown overlap policy %q", policyName)
	}
}

var cmdScenes = &cobra.Command{
	Use:   "scenes",
	Short: "List the built-in scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range scenes.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func main() {
	glog.CopyStandardLogTo("INFO")
	defer glog.Flush()

	cmdRoot.AddCommand(cmdScenes, cmdShoot, cmdGrid, cmdPlot, cmdDump)

	if err := cmdRoot.Execute(); err != nil {
		glog.Exitf("Error: %v", err)
	}
}
