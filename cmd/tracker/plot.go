package main

import (
	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// writeTrajectory saves a plot of the rectangle centre over time. The format
// follows the file extension (.png, .svg, .pdf, ...).
//
// Arguments:
//   - path: Output file.
//   - centres: Rectangle centres in frame order, in image coordinates.
//   - lost: Index into centres where the target was lost, or -1.
//
// Returns:
//   - error: An error if there is nothing to plot or saving fails.
func writeTrajectory(path string, centres []features.Point, lost int) error {
	if len(centres) == 0 {
		return errors.New("trajectory is empty")
	}

	p := plot.New()
	p.Title.Text = "Target trajectory"
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	// Image rows grow downwards.
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(centres))
	for i, c := range centres {
		pts[i].X = c.X
		pts[i].Y = c.Y
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "building trajectory line")
	}
	p.Add(line)

	start, err := plotter.NewScatter(pts[:1])
	if err != nil {
		return errors.Wrap(err, "building start marker")
	}
	p.Add(start)
	p.Legend.Add("path", line)
	p.Legend.Add("start", start)

	if lost >= 0 && lost < len(pts) {
		end, err := plotter.NewScatter(pts[lost : lost+1])
		if err != nil {
			return errors.Wrap(err, "building lost marker")
		}
		end.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(end)
		p.Legend.Add("lost", end)
	}

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving plot %s", path)
	}
	return nil
}
