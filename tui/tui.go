// Package tui renders a live terminal dashboard of per-channel tracking
// state: a gauge box, a channel table, and a log pane, driven by snapshot
// callbacks rather than holding a reference to live tracker state, so the
// refresh goroutine never blocks the tracking loop.
package tui

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"

	"github.com/openskynav/gogps/config"
)

// Snapshot is what the orchestrator hands the Dashboard once per refresh
// tick; collecting it must never block the tracking loop.
type Snapshot struct {
	Channels      []ChannelView
	Fix           FixView
	CorrSurfaceDb []float64 // most recent acquisition correlation surface, for the plot
}

// Dashboard is the live TUI.
type Dashboard struct {
	app           *tview.Application
	channelData   *ChannelTableData
	fixData       *FixTableData
	corrPlot      *tvxwidgets.Plot
	lockGauge     *tvxwidgets.UtilModeGauge
	LogOut        *tview.TextView
}

// NewDashboard builds the widget tree: a left column of tables and a
// right column of gauges, plot, and log.
func NewDashboard(conf config.DiagnosticsConf) *Dashboard {
	app := tview.NewApplication()

	logOut := tview.NewTextView().SetDynamicColors(true).SetRegions(true).SetWordWrap(true)
	logOut.SetChangedFunc(func() {
		logOut.ScrollToEnd()
		app.Draw()
	})
	logOut.SetBorder(true).SetTitle("Log Output")
	log.SetOutput(logOut)

	channelData := &ChannelTableData{}
	channelTable := tview.NewTable().SetContent(channelData)
	channelTable.SetSelectable(false, false).SetBorder(true).SetTitle("Channels")

	fixData := &FixTableData{}
	fixTable := tview.NewTable().SetContent(fixData)
	fixTable.SetSelectable(false, false).SetBorder(true).SetTitle("Fix")

	lockGauge := tvxwidgets.NewUtilModeGauge()
	lockGauge.SetLabel("Channels EPHEMERIS_VALID:    ")
	lockGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	lockGauge.SetWarnPercentage(25)
	lockGauge.SetCritPercentage(10)
	lockGauge.SetEmptyColor(tcell.ColorBlack)
	lockGauge.SetBorder(false)

	gaugeBox := tview.NewFlex().SetDirection(tview.FlexRow)
	gaugeBox.AddItem(lockGauge, 0, 1, false)
	gaugeBox.SetTitle("Signal Stats")
	gaugeBox.SetBorder(true)

	corrPlot := tvxwidgets.NewPlot()
	corrPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	corrPlot.SetMarker(tvxwidgets.PlotMarkerBraille)
	corrPlot.SetBorder(true)
	corrPlot.SetTitle("Acquisition Correlation Surface")

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(channelTable, 0, 3, false)
	leftCol.AddItem(fixTable, 0, 1, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 2, false)
	if conf.EnablePlots {
		rightCol.AddItem(corrPlot, 0, 3, false)
	}
	rightCol.AddItem(logOut, 0, 3, false)

	page := tview.NewFlex().SetDirection(tview.FlexColumn)
	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 5, false)

	app.SetRoot(page, true).EnableMouse(true)

	return &Dashboard{
		app:         app,
		channelData: channelData,
		fixData:     fixData,
		corrPlot:    corrPlot,
		lockGauge:   lockGauge,
		LogOut:      logOut,
	}
}

// Run starts the tview event loop and a refresh goroutine that calls
// snapshot every refreshMs and redraws. It blocks until the user quits or
// ctx-driven cancellation closes the application (main.go calls app.Stop
// via the same cancellation token).
func (d *Dashboard) Run(snapshot func() Snapshot, refreshMs int) error {
	if refreshMs <= 0 {
		refreshMs = 500
	}

	go func() {
		for {
			snap := snapshot()
			d.channelData.Rows = snap.Channels
			d.fixData.Fix = snap.Fix

			if len(snap.CorrSurfaceDb) > 0 {
				d.corrPlot.SetData([][]float64{snap.CorrSurfaceDb})
			}

			total := len(snap.Channels)
			valid := 0
			for _, c := range snap.Channels {
				if c.State == "EPHEMERIS_VALID" {
					valid++
				}
			}
			pct := 0.0
			if total > 0 {
				pct = float64(valid) / float64(total) * 100
			}
			d.lockGauge.SetValue(pct)

			d.app.Draw()
			time.Sleep(time.Duration(refreshMs) * time.Millisecond)
		}
	}()

	return d.app.Run()
}

// Stop tears down the application, used on cancellation.
func (d *Dashboard) Stop() {
	d.app.Stop()
}
