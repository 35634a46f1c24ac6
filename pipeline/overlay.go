package pipeline

import (
	"fmt"
	"image"
	"image/color"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

var (
	regionColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	white       = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	black       = color.RGBA{A: 0}
)

const font = gocv.FontHersheySimplex

// drawRegion outlines the detection area and labels it above its first corner.
func drawRegion(img *gocv.Mat, poly iface.Polygon) {
	if len(poly) == 0 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
	defer pv.Close()
	gocv.Polylines(img, pv, true, regionColor, 3)
	gocv.PutText(img, "Detection Area", image.Pt(poly[0].X, poly[0].Y-10), font, 0.7, regionColor, 2)
}

// drawDetection draws the box and a "class: conf" tag on a filled background.
func drawDetection(img *gocv.Mat, d iface.Detection) {
	style := d.Class.Style()
	rect := d.Box.Rect()
	gocv.Rectangle(img, rect, style.Color, 2)
	label := fmt.Sprintf("%s: %.2f", style.Label, d.Confidence)
	size := gocv.GetTextSize(label, font, 0.5, 2)
	bg := image.Rect(rect.Min.X, rect.Min.Y-20, rect.Min.X+size.X, rect.Min.Y)
	gocv.Rectangle(img, bg, style.Color, -1)
	gocv.PutText(img, label, image.Pt(rect.Min.X, rect.Min.Y-5), font, 0.5, white, 2)
}

// drawTotals renders the running vehicle count and traffic weight panel.
func drawTotals(img *gocv.Mat, vehicles int, weight float64) {
	gocv.Rectangle(img, image.Rect(10, 10, 150, 35), black, -1)
	gocv.PutText(img, fmt.Sprintf("Vehicles: %d", vehicles), image.Pt(15, 30), font, 0.7, white, 2)
	gocv.Rectangle(img, image.Rect(10, 40, 200, 65), black, -1)
	gocv.PutText(img, fmt.Sprintf("Traffic Weight: %.1f", weight), image.Pt(15, 60), font, 0.7, white, 2)
}

// annotate draws the full overlay onto img in place.
func annotate(img *gocv.Mat, poly iface.Polygon, dets []iface.Detection, vehicles int, weight float64) {
	drawRegion(img, poly)
	for _, d := range dets {
		drawDetection(img, d)
	}
	drawTotals(img, vehicles, weight)
}
