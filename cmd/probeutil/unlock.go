package probeutil

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/pkg/util"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Mass-erase a locked chip via its vendor Control AP",
	Long: `unlock scans for a Control AP by IDR fingerprint and drives the
vendor mass-erase unlock sequence (RESET, ERASEALL, poll ERASEALLSTATUS).
This removes all flash contents, including any readout protection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !util.ConfirmDanger(fmt.Sprintf("this erases ALL flash on the target attached to %s", probeLabel())) {
			fmt.Println("aborted")
			return nil
		}
		infos, err := probe.ListProbes()
		if err != nil {
			return err
		}
		info, err := pickProbe(infos, cfg.Probe)
		if err != nil {
			return err
		}
		dev, err := probe.Open(info)
		if err != nil {
			return err
		}
		defer dev.Detach()

		protocol := probe.SWD
		if cfg.Protocol == "jtag" {
			protocol = probe.JTAG
		}
		if _, err := dev.Attach(protocol); err != nil {
			return err
		}

		master := coresight.New(dev)
		release := master.Acquire()
		defer release()

		if err := coresight.UnlockByMassErase(master); err != nil {
			return err
		}
		printOK("mass erase complete")
		return nil
	},
}

func probeLabel() string {
	if cfg.Probe == "" {
		return "the first probe found"
	}
	return cfg.Probe
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}
