package printer

import (
	"fmt"
	"time"
)

// ESC/POS command bytes
var (
	escInit      = []byte{0x1B, 0x40}
	escAlignLeft = []byte{0x1B, 0x61, 0x00}
	escAlignCtr  = []byte{0x1B, 0x61, 0x01}
	escBoldOn    = []byte{0x1B, 0x45, 0x01}
	escBoldOff   = []byte{0x1B, 0x45, 0x00}
	gsDoubleSize = []byte{0x1D, 0x21, 0x11}
	gsNormalSize = []byte{0x1D, 0x21, 0x00}
	gsPartialCut = []byte{0x1D, 0x56, 0x42, 0x00}
)

type receipt []byte

func (r receipt) cmd(b []byte) receipt { return append(r, b...) }

func (r receipt) line(format string, args ...any) receipt {
	return append(r, fmt.Sprintf(format+"\n", args...)...)
}

// buildTestReceipt creates ESC/POS commands for a test receipt
func buildTestReceipt(terminalID string) []byte {
	r := receipt(nil).
		cmd(escInit).
		cmd(escAlignCtr).
		cmd(escBoldOn).
		cmd(gsDoubleSize).
		line("GOPASS").
		cmd(gsNormalSize).
		cmd(escBoldOff).
		line("Terminal %s", terminalID).
		line("-------------------").
		line("").
		cmd(escAlignLeft).
		line("Test Print").
		line("Time: %s", time.Now().Format("2006-01-02 15:04:05")).
		line("").
		cmd(escAlignCtr).
		line("-------------------").
		line("Printer OK!").
		line("\n\n").
		cmd(gsPartialCut)
	return r
}
