package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"csgtrace/rtkernel/partdump"

	"github.com/spf13/cobra"
)

var dumpSummary bool

func init() {
	cmdDump.Flags().BoolVar(&dumpSummary, "summary", false, "Only print per-region partition counts")
}

var cmdDump = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the records in a partition dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("while opening dump: %w", err)
		}
		defer f.Close()

		r, err := partdump.NewReader(f)
		if err != nil {
			return err
		}
		defer r.Close()

		counts := map[string]int{}
		records := 0
		for {
			rec, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("after %d records: %w", records, err)
			}
			records++
			for _, s := range rec.Spans {
				counts[s.Region]++
				if !dumpSummary {
					fmt.Printf("%d,%d\t%s\t%g\t%g\t%s\t%s\n", rec.Col, rec.Row, s.Region, s.In, s.Out, s.InSolid, s.OutSolid)
				}
			}
		}

		fmt.Printf("%d records\n", records)
		regions := make([]string, 0, len(counts))
		for region := range counts {
			regions = append(regions, region)
		}
		sort.Strings(regions)
		for _, region := range regions {
			fmt.Printf("%s\t%d\n", region, counts[region])
		}
		return nil
	},
}
