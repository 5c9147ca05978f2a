package main

import (
	"fmt"
	"io"
	"os"

	"fk-go/internal/devices"
	"fk-go/internal/fk"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
)

// freeColor picks a color for a free-space percentage.
func freeColor(pct int) string {
	switch {
	case pct < 10:
		return colorRed
	case pct < 25:
		return colorYellow
	default:
		return colorGreen
	}
}

// printDevices writes one line per volume. Free space is colored only when
// stdout is a terminal.
func printDevices(w io.Writer, devs []fk.Device) {
	color := term.IsTerminal(int(os.Stdout.Fd()))

	for _, d := range devs {
		label := d.Label
		if label == "" {
			label = "-"
		}
		space := "-"
		if u, err := devices.Usage(d.MountPoint); err == nil {
			space = fmt.Sprintf("%s free of %s (%d%%), %s reserved",
				humanize.IBytes(u.Free), humanize.IBytes(u.Total), u.FreePercent(),
				humanize.IBytes(u.Reserved))
			if color {
				space = freeColor(u.FreePercent()) + space + colorReset
			}
		}
		fmt.Fprintf(w, "%-36s  %-12s  %3d:%-3d  %-24s  %s\n",
			d.UUID, label, d.Major, d.Minor, d.MountPoint, space)
	}
}
