// Package probeutil implements the probeutil CLI: probes, unlock,
// dump, and flash, each binding a Session around one Target and one
// physical probe for the duration of the command. One file per command,
// a shared rootCmd in this file.
package probeutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/arm-debug/probeutil/internal/config"
	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/core"
	"github.com/arm-debug/probeutil/internal/core/cortexm0"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/internal/session"
	"github.com/arm-debug/probeutil/internal/target"
	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/internal/xferlog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// printOK color-tags a completed-operation line the way mongoose-os's mos
// CLI colors its version-check banner, on stderr so a script piping stdout
// still sees it.
func printOK(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stderr, format+"\n", args...)
}

var cfg *config.Config

// defaultMemoryAP is the MEM-AP every target in zz_generated_targets.go and
// targets/*.yaml is wired through; this tool's scope never needs a second AP.
var defaultMemoryAP = coresight.MemoryAP{APSel: 0}

var rootCmd = &cobra.Command{
	Use:   "probeutil",
	Short: "Program and inspect ARM Cortex-M targets over SWD",
	Long: `probeutil talks to CMSIS-DAP and ST-Link debug probes over SWD to halt a
Cortex-M core, read and write its memory, and program its flash through a
CMSIS-Pack flash algorithm.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Root().PersistentFlags())
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		xferlog.SetLevel(cfg.Quiet, cfg.Verbose)
		return nil
	},
}

// Execute runs the command tree. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// openSession enumerates attached probes, opens the one matching
// cfg.Probe (or the first one found when cfg.Probe is empty), resolves
// cfg.Chip against the built-in and targets/ chip descriptions, and returns
// a bound Session. The caller must defer Close().
func openSession() (*session.Session, *target.Target, error) {
	infos, err := probe.ListProbes()
	if err != nil {
		return nil, nil, err
	}
	info, err := pickProbe(infos, cfg.Probe)
	if err != nil {
		return nil, nil, err
	}
	dev, err := probe.Open(info)
	if err != nil {
		return nil, nil, err
	}

	tg, err := resolveTarget(cfg.Chip)
	if err != nil {
		dev.Detach()
		return nil, nil, err
	}

	protocol := probe.SWD
	if cfg.Protocol == "jtag" {
		protocol = probe.JTAG
	}
	sess, err := session.Open(dev, tg, protocol)
	if err != nil {
		return nil, nil, err
	}
	return sess, tg, nil
}

func pickProbe(infos []probe.Info, want string) (probe.Info, error) {
	if len(infos) == 0 {
		return probe.Info{}, xerrors.NotFound("debug probe")
	}
	if want == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if strings.Contains(info.Identifier, want) || (info.Serial != nil && *info.Serial == want) {
			return info, nil
		}
	}
	return probe.Info{}, xerrors.NotFound(fmt.Sprintf("probe matching %q", want))
}

func resolveTarget(name string) (*target.Target, error) {
	if name == "" {
		return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("no --chip specified"))
	}
	families := target.Generated()
	if extra, err := target.LoadDir("targets"); err == nil {
		families = append(families, extra...)
	}
	for _, fam := range families {
		for i := range fam.Targets {
			if fam.Targets[i].Name == name {
				return &fam.Targets[i], nil
			}
		}
	}
	return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("no target description matches chip %q", name))
}

// newCore builds a Core bound to AP 0's Memory Interface for sess's target.
// Only Cortex-M0 is implemented, matching the scope of internal/core.
func newCore(sess *session.Session, tg *target.Target) (core.Core, error) {
	if tg.CoreKind != "cortex-m0" {
		return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("unsupported core kind %q", tg.CoreKind))
	}
	master, err := sess.Probe()
	if err != nil {
		return nil, err
	}
	mem := memory.New(master, defaultMemoryAP)
	return cortexm0.New(mem), nil
}
