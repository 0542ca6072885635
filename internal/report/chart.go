package report

import (
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"backtest_go/internal/domain"
)

const (
	chartWidth  = 1200
	chartHeight = 600
	chartMargin = 40
)

var (
	chartBackground = color.NRGBA{R: 250, G: 250, B: 252, A: 255}
	chartAxis       = color.NRGBA{R: 180, G: 180, B: 190, A: 255}
	chartLine       = color.NRGBA{R: 30, G: 110, B: 210, A: 255}
	chartBaseline   = color.NRGBA{R: 200, G: 120, B: 120, A: 255}
)

// WriteEquityChart renders the equity curve as a PNG. The horizontal
// axis is sample index (samples are evenly spaced in simulated time),
// the dashed reference line marks starting equity.
func WriteEquityChart(path string, curve []domain.EquitySample) error {
	if len(curve) < 2 {
		return fmt.Errorf("equity chart needs at least 2 samples, got %d", len(curve))
	}

	img := imaging.New(chartWidth, chartHeight, chartBackground)

	minV, maxV := curve[0].Value, curve[0].Value
	for _, s := range curve {
		minV = math.Min(minV, s.Value)
		maxV = math.Max(maxV, s.Value)
	}
	if maxV == minV {
		maxV = minV + 1
	}
	pad := (maxV - minV) * 0.05
	minV -= pad
	maxV += pad

	plotW := float64(chartWidth - 2*chartMargin)
	plotH := float64(chartHeight - 2*chartMargin)

	toX := func(i int) int {
		return chartMargin + int(plotW*float64(i)/float64(len(curve)-1))
	}
	toY := func(v float64) int {
		return chartHeight - chartMargin - int(plotH*(v-minV)/(maxV-minV))
	}

	// Axes.
	for x := chartMargin; x <= chartWidth-chartMargin; x++ {
		img.Set(x, chartHeight-chartMargin, chartAxis)
	}
	for y := chartMargin; y <= chartHeight-chartMargin; y++ {
		img.Set(chartMargin, y, chartAxis)
	}

	// Starting-equity reference, dashed.
	baseY := toY(curve[0].Value)
	for x := chartMargin; x <= chartWidth-chartMargin; x += 6 {
		for dx := 0; dx < 3 && x+dx <= chartWidth-chartMargin; dx++ {
			img.Set(x+dx, baseY, chartBaseline)
		}
	}

	// Equity polyline.
	for i := 1; i < len(curve); i++ {
		drawLine(img, toX(i-1), toY(curve[i-1].Value), toX(i), toY(curve[i].Value), chartLine)
	}

	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving chart: %w", err)
	}
	return nil
}

// drawLine plots a 2px-thick segment with integer Bresenham stepping.
func drawLine(img interface {
	Set(x, y int, c color.Color)
}, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
