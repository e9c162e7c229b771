package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ChannelView is one channel's display row, read by the Dashboard's
// refresh goroutine from the orchestrator's snapshot of tracking state;
// it carries no behavior of its own.
type ChannelView struct {
	PRN            int
	State          string
	DopplerHz      float64
	CodePhaseChips float64
	CN0            float64
	CarrierLock    float64
}

// FixView is the latest solver output, or the zero value before the
// first fix.
type FixView struct {
	Valid      bool
	ReceiveTOW float64
	ECEF       [3]float64
	ClockBiasM float64
	Satellites int
}

// ChannelTableData backs the per-channel tview.Table; Rows is swapped in
// wholesale by the Dashboard's refresh goroutine rather than mutated
// cell-by-cell.
type ChannelTableData struct {
	tview.TableContentReadOnly
	Rows []ChannelView
}

func (d *ChannelTableData) GetRowCount() int    { return len(d.Rows) + 1 }
func (d *ChannelTableData) GetColumnCount() int { return 6 }

func (d *ChannelTableData) GetCell(row, column int) *tview.TableCell {
	if row == 0 {
		headers := []string{"PRN", "State", "Doppler (Hz)", "Code Phase", "C/N0 (dB-Hz)", "Lock"}
		return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%s", headers[column]))
	}
	c := d.Rows[row-1]
	switch column {
	case 0:
		return tview.NewTableCell(fmt.Sprintf("[white]%d", c.PRN))
	case 1:
		color := tcell.ColorYellow
		switch c.State {
		case "EPHEMERIS_VALID":
			color = tcell.ColorGreen
		case "LOST":
			color = tcell.ColorRed
		}
		return tview.NewTableCell(c.State).SetTextColor(color)
	case 2:
		return tview.NewTableCell(fmt.Sprintf("[white]%.1f", c.DopplerHz))
	case 3:
		return tview.NewTableCell(fmt.Sprintf("[white]%.2f", c.CodePhaseChips))
	case 4:
		color := tcell.ColorRed
		if c.CN0 >= 35 {
			color = tcell.ColorGreen
		} else if c.CN0 >= 28 {
			color = tcell.ColorYellow
		}
		return tview.NewTableCell(fmt.Sprintf("%.1f", c.CN0)).SetTextColor(color)
	case 5:
		return tview.NewTableCell(fmt.Sprintf("[white]%.2f", c.CarrierLock))
	}
	return tview.NewTableCell("")
}

// FixTableData backs the small fix-summary table.
type FixTableData struct {
	tview.TableContentReadOnly
	Fix FixView
}

func (f *FixTableData) GetRowCount() int    { return 4 }
func (f *FixTableData) GetColumnCount() int { return 2 }

func (f *FixTableData) GetCell(row, column int) *tview.TableCell {
	label := func(s string) *tview.TableCell { return tview.NewTableCell("[lightskyblue]" + s) }
	value := func(s string) *tview.TableCell { return tview.NewTableCell("[white]" + s) }

	if !f.Fix.Valid {
		if column == 0 && row == 0 {
			return label("No fix yet")
		}
		return tview.NewTableCell("")
	}

	switch row {
	case 0:
		if column == 0 {
			return label("Satellites:")
		}
		return value(fmt.Sprintf("%d", f.Fix.Satellites))
	case 1:
		if column == 0 {
			return label("ECEF X,Y,Z (m):")
		}
		return value(fmt.Sprintf("%.1f, %.1f, %.1f", f.Fix.ECEF[0], f.Fix.ECEF[1], f.Fix.ECEF[2]))
	case 2:
		if column == 0 {
			return label("Clock bias (m):")
		}
		return value(fmt.Sprintf("%.2f", f.Fix.ClockBiasM))
	case 3:
		if column == 0 {
			return label("Receive TOW (s):")
		}
		return value(fmt.Sprintf("%.3f", f.Fix.ReceiveTOW))
	}
	return tview.NewTableCell("")
}
