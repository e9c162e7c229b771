// Package diagnostics implements the one-way diagnostic output
// collaborator: periodic PNG plots (IQ
// constellation, code/carrier discriminator traces, acquisition surface)
// and a static index.html aggregating them. No example repo in the
// retrieved pack imports a charting library, so these are rendered
// directly onto image.RGBA with the standard library's image/draw and
// encoded with image/png; the HTML shell uses html/template, matching
// the ambient-stack rule that a missing domain library still gets a
// justified stdlib fallback rather than an invented dependency.
//
// Failure to write a diagnostic file is logged and otherwise ignored —
// this interface must never perturb the pipeline.
package diagnostics

import (
	"html/template"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/openskynav/gogps/config"
)

const (
	plotW = 480
	plotH = 320
)

// ChannelTrace holds one channel's recent discriminator history, sampled
// by the orchestrator at the diagnostic cadence (not every tick).
type ChannelTrace struct {
	PRN           int
	IQ            []complex128 // recent prompt correlator samples, for the constellation
	CodeErrTrace  []float64
	CarrierErrTrace []float64
}

// Reporter periodically renders the configured plots and index.html into
// OutputDir. It is driven externally (main.go ticks it); it holds no
// goroutine of its own so its failure mode is always synchronous and
// visible at the call site.
type Reporter struct {
	conf config.DiagnosticsConf
}

// New returns a Reporter writing into conf.OutputDir (created if absent).
func New(conf config.DiagnosticsConf) (*Reporter, error) {
	if conf.OutputDir == "" {
		return &Reporter{conf: conf}, nil
	}
	if err := os.MkdirAll(conf.OutputDir, 0o755); err != nil {
		return nil, err
	}
	return &Reporter{conf: conf}, nil
}

// Emit renders the acquisition surface, one constellation+discriminator
// plot per traced channel, and index.html. Every write is best-effort:
// an error here is logged at WARN and swallowed.
func (r *Reporter) Emit(corrSurfaceDb []float64, traces []ChannelTrace) {
	if r.conf.OutputDir == "" || !r.conf.EnablePlots {
		return
	}

	var names []string

	if len(corrSurfaceDb) > 0 {
		if err := r.writeSeriesPlot("acquisition_surface.png", corrSurfaceDb, "Acquisition Correlation Surface"); err != nil {
			log.Warnf("diagnostics: acquisition surface plot: %v", err)
		} else {
			names = append(names, "acquisition_surface.png")
		}
	}

	for _, t := range traces {
		name := channelPlotName(t.PRN)
		if err := r.writeChannelPlot(name, t); err != nil {
			log.Warnf("diagnostics: channel %d plot: %v", t.PRN, err)
			continue
		}
		names = append(names, name)
	}

	if err := r.writeIndex(names); err != nil {
		log.Warnf("diagnostics: index.html: %v", err)
	}
}

func channelPlotName(prn int) string {
	return "channel_" + strconv.Itoa(prn) + ".png"
}

// writeSeriesPlot renders a single float64 series as a simple line plot.
func (r *Reporter) writeSeriesPlot(name string, series []float64, title string) error {
	img := image.NewRGBA(image.Rect(0, 0, plotW, plotH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	drawLineSeries(img, series, color.RGBA{R: 0x6a, G: 0xb0, B: 0xff, A: 0xff})
	return r.writePNG(name, img)
}

// writeChannelPlot renders a channel's IQ constellation (left half) next
// to its code/carrier discriminator traces (right half) in one image.
func (r *Reporter) writeChannelPlot(name string, t ChannelTrace) error {
	img := image.NewRGBA(image.Rect(0, 0, plotW, plotH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	left := image.Rect(0, 0, plotW/2, plotH)
	drawConstellation(img, left, t.IQ, color.RGBA{R: 0x6a, G: 0xff, B: 0x8c, A: 0xff})

	right := image.Rect(plotW/2, 0, plotW, plotH/2)
	drawLineSeriesRect(img, right, t.CodeErrTrace, color.RGBA{R: 0xff, G: 0xcc, B: 0x4d, A: 0xff})

	right2 := image.Rect(plotW/2, plotH/2, plotW, plotH)
	drawLineSeriesRect(img, right2, t.CarrierErrTrace, color.RGBA{R: 0xff, G: 0x6a, B: 0x6a, A: 0xff})

	return r.writePNG(name, img)
}

func (r *Reporter) writePNG(name string, img image.Image) error {
	f, err := os.Create(filepath.Join(r.conf.OutputDir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func drawLineSeries(img *image.RGBA, series []float64, c color.Color) {
	drawLineSeriesRect(img, img.Bounds(), series, c)
}

func drawLineSeriesRect(img *image.RGBA, rect image.Rectangle, series []float64, c color.Color) {
	if len(series) < 2 {
		return
	}
	min, max := series[0], series[0]
	for _, v := range series {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	if span == 0 {
		span = 1
	}

	w := rect.Dx()
	h := rect.Dy()
	prevX, prevY := rect.Min.X, rect.Min.Y+h-int((series[0]-min)/span*float64(h))

	for i := 1; i < len(series); i++ {
		x := rect.Min.X + i*w/len(series)
		y := rect.Min.Y + h - int((series[i]-min)/span*float64(h))
		drawLine(img, prevX, prevY, x, y, c)
		prevX, prevY = x, y
	}
}

func drawConstellation(img *image.RGBA, rect image.Rectangle, points []complex128, c color.Color) {
	if len(points) == 0 {
		return
	}
	maxMag := 0.0
	for _, p := range points {
		m := abs(p)
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		maxMag = 1
	}

	cx := rect.Min.X + rect.Dx()/2
	cy := rect.Min.Y + rect.Dy()/2
	scale := float64(minInt(rect.Dx(), rect.Dy())) / 2 / maxMag

	for _, p := range points {
		x := cx + int(real(p)*scale)
		y := cy - int(imag(p)*scale)
		if image.Pt(x, y).In(rect) {
			img.Set(x, y, c)
		}
	}
}

func abs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := x1-x0, y1-y0
	steps := dx
	if dy > dx {
		steps = dy
	}
	if steps < 0 {
		steps = -steps
	}
	if steps == 0 {
		img.Set(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(float64(dx)*t)
		y := y0 + int(float64(dy)*t)
		if image.Pt(x, y).In(img.Bounds()) {
			img.Set(x, y, c)
		}
	}
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>gogps diagnostics</title></head>
<body style="background:#111;color:#ddd;font-family:monospace;">
<h1>gogps diagnostics — {{.Timestamp}}</h1>
{{range .Images}}<img src="{{.}}" style="margin:8px;border:1px solid #444;">
{{else}}<p>no plots yet</p>{{end}}
</body>
</html>
`

func (r *Reporter) writeIndex(names []string) error {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(r.conf.OutputDir, "index.html"))
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, struct {
		Timestamp string
		Images    []string
	}{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Images:    names,
	})
}
