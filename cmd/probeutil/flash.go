package probeutil

import (
	"fmt"
	"strings"

	"github.com/arm-debug/probeutil/internal/flash"
	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/internal/target"
	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/pkg/loader"
	"github.com/spf13/cobra"
)

var (
	flashFormat string
	flashVerify bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <file>",
	Short: "Program a firmware image into the target's flash",
	Long: `flash loads file in the given --format (intelhex, srec, or wdc),
plans an erase/program schedule against the target's flash region
(touched-sector erase by default, or a whole-chip erase with
--chip-erase), and executes it through the target's CMSIS-Pack flash
algorithm.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, tg, err := openSession()
		if err != nil {
			return err
		}
		defer sess.Close()

		master, err := sess.Probe()
		if err != nil {
			return err
		}
		release := master.Acquire()
		defer release()

		region, err := flashRegion(tg)
		if err != nil {
			return err
		}
		algo, err := tg.DefaultAlgorithm()
		if err != nil {
			return err
		}
		c, err := newCore(sess, tg)
		if err != nil {
			return err
		}
		mem := memory.New(master, defaultMemoryAP)

		b := flash.NewBuilder(region, mem)
		ld, err := openLoader(flashFormat)
		if err != nil {
			return err
		}
		defer ld.Close()
		if err := ld.Open(args[0]); err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		ld.SetHandler(func(address uint32, data []byte) error {
			return b.AddData(address, data)
		})
		if err := ld.Process(); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		plan, err := b.Plan(cfg.DoChipErase, cfg.RestoreUnwrittenBytes)
		if err != nil {
			return sess.Invalidate(err)
		}

		f := flash.New(c, mem, algo, region)
		fmt.Printf("plan: chip_erase=%v sectors=%d pages=%d double_buffering=%v\n",
			plan.ChipErase, len(plan.Sectors), len(plan.Pages), f.DoubleBufferingSupported())

		if err := flash.Execute(f, plan, flashVerify); err != nil {
			return sess.Invalidate(fmt.Errorf("flash: %w", err))
		}
		printOK("flash complete")
		return nil
	},
}

func flashRegion(tg *target.Target) (*target.MemoryRegion, error) {
	for i := range tg.Regions {
		if tg.Regions[i].Kind == target.RegionFlash {
			return &tg.Regions[i], nil
		}
	}
	return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("target %q has no flash region", tg.Name))
}

func openLoader(format string) (loader.Loader, error) {
	switch strings.ToLower(format) {
	case "intelhex", "hex", "":
		return loader.NewIntelHexLoader(), nil
	case "srec", "s19", "s28", "s37":
		return loader.NewSRecLoader(), nil
	case "wdc":
		return loader.NewWDCLoader(), nil
	default:
		return nil, fmt.Errorf("unknown --format %q (want intelhex, srec, or wdc)", format)
	}
}

func init() {
	flashCmd.Flags().StringVar(&flashFormat, "format", "intelhex", "firmware image format: intelhex, srec, or wdc")
	flashCmd.Flags().BoolVar(&flashVerify, "verify", true, "read back and compare every programmed page")
	rootCmd.AddCommand(flashCmd)
}
