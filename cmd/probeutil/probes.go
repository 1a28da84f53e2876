package probeutil

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/spf13/cobra"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List attached debug probes",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := probe.ListProbes()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no debug probes found")
			return nil
		}
		for _, info := range infos {
			serial := ""
			if info.Serial != nil {
				serial = *info.Serial
			}
			fmt.Printf("%-10s vid=%04x pid=%04x serial=%s variant=%s\n",
				info.Identifier, info.VendorID, info.ProductID, serial, info.Variant)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probesCmd)
}
