package probeutil

import (
	"fmt"

	"github.com/arm-debug/probeutil/internal/memory"
	"github.com/arm-debug/probeutil/pkg/util"
	"github.com/spf13/cobra"
)

var (
	dumpHex    bool
	dumpLabels string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <address> <length>",
	Short: "Halt the core and hex-dump a range of target memory",
	Long: `dump halts the core, reads [address, address+length) from target
memory, and prints it as a hex dump (or a CRC32 with --hex=false). address
may be a symbolic label resolved through --labels instead of a literal hex
value.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAddress(args[0], dumpLabels)
		if err != nil {
			return fmt.Errorf("address: %w", err)
		}
		length16, err := util.ParseHexSize(args[1])
		if err != nil {
			return fmt.Errorf("length: %w", err)
		}
		length := uint32(length16)

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

		c, err := newCore(sess, tg)
		if err != nil {
			return err
		}
		if _, err := c.Halt(); err != nil {
			return sess.Invalidate(fmt.Errorf("halt: %w", err))
		}

		mem := memory.New(master, defaultMemoryAP)
		buf := make([]byte, length)
		if err := mem.ReadBlock8(addr, buf); err != nil {
			return sess.Invalidate(fmt.Errorf("read: %w", err))
		}

		if dumpHex {
			util.HexDump(buf, addr)
		} else {
			fmt.Printf("crc32=%08x over %d bytes starting at 0x%08x\n", util.CalculateCRC32(buf), length, addr)
		}

		if err := c.Run(); err != nil {
			return sess.Invalidate(fmt.Errorf("resume: %w", err))
		}
		return nil
	},
}

// resolveAddress parses arg as a hex address, unless labelsPath is set and
// arg matches a name in that 64TASS-style label file, in which case the
// label's address is used instead.
func resolveAddress(arg, labelsPath string) (uint32, error) {
	if labelsPath != "" {
		lf := util.NewLabelFile()
		if err := lf.Load(labelsPath); err != nil {
			return 0, fmt.Errorf("labels: %w", err)
		}
		if hexAddr, err := lf.Lookup(arg); err == nil {
			return util.ParseHexAddress(hexAddr)
		}
	}
	return util.ParseHexAddress(arg)
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpHex, "hex", true, "print a hex dump instead of just a CRC32")
	dumpCmd.Flags().StringVar(&dumpLabels, "labels", "", "64TASS label file resolving <address> symbolically")
	rootCmd.AddCommand(dumpCmd)
}
