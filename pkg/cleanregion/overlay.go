package cleanregion

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderRegionOverlay writes a PNG of the plane with the region polygons and
// the peaks drawn over it.
func RenderRegionOverlay(plane Plane, region string, peaks []image.Point, outputPath string) error {
	img, err := renderRegionImage(plane, region, peaks)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

// RenderRegionOverlayBytes is RenderRegionOverlay returning the PNG bytes.
func RenderRegionOverlayBytes(plane Plane, region string, peaks []image.Point) ([]byte, error) {
	img, err := renderRegionImage(plane, region, peaks)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderRegionImage draws the plane with north up: image row 0 is the top
// pixel row of the map.
func renderRegionImage(plane Plane, region string, peaks []image.Point) (*image.RGBA, error) {
	if plane.Data.Empty() {
		return nil, fmt.Errorf("no plane data")
	}
	polys, err := ParseRegion(region)
	if err != nil {
		return nil, fmt.Errorf("parse region: %w", err)
	}

	cols, rows := plane.Data.Cols(), plane.Data.Rows()
	const targetWidth = 512
	scale := math.Max(1, math.Floor(float64(targetWidth)/float64(cols)))
	imgW := int(float64(cols) * scale)
	imgH := int(float64(rows) * scale)
	summaryH := 24
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+summaryH))

	data := plane.Data.DataFloat32()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < rows*cols; i++ {
		v := float64(data[i])
		if math.IsNaN(v) || !plane.Valid(i%cols, i/cols) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if !(span > 0) {
		span = 1
	}

	for y := 0; y < imgH; y++ {
		row := rows - 1 - int(float64(y)/scale)
		for x := 0; x < imgW; x++ {
			col := int(float64(x) / scale)
			v := float64(data[row*cols+col])
			if math.IsNaN(v) || !plane.Valid(col, row) {
				img.Set(x, y, color.RGBA{40, 0, 40, 255})
				continue
			}
			g := uint8(255 * math.Sqrt(math.Max(0, (v-lo)/span)))
			img.Set(x, y, color.RGBA{g, g, g, 255})
		}
	}
	for y := imgH; y < imgH+summaryH; y++ {
		for x := 0; x < imgW; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	// region coordinates are 1-based pixel centers
	toScreen := func(p Point) (int, int) {
		return int((p.X - 0.5) * scale), int((float64(rows) - p.Y + 0.5) * scale)
	}

	regionColor := color.RGBA{80, 220, 80, 255}
	for _, poly := range polys {
		for i := 0; i+1 < len(poly); i++ {
			x0, y0 := toScreen(poly[i])
			x1, y1 := toScreen(poly[i+1])
			drawLine(img, x0, y0, x1, y1, regionColor)
		}
	}

	peakColor := color.RGBA{255, 80, 80, 255}
	radius := int(math.Max(3, 2*scale))
	for _, pk := range peaks {
		cx, cy := toScreen(Point{X: float64(pk.X + 1), Y: float64(pk.Y + 1)})
		drawCircle(img, cx, cy, radius, peakColor)
	}

	summary := fmt.Sprintf("%d polygons, %d peaks, range [%.3g, %.3g]", len(polys), len(peaks), lo, hi)
	if len(polys) == 0 {
		summary = fmt.Sprintf("region %s, %d peaks", QuarterRegion, len(peaks))
	}
	drawText(img, basicfont.Face7x13, summary, 6, imgH+16, color.RGBA{220, 220, 220, 255})
	return img, nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCircle draws a circle outline using midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a 2px line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
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
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			break
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
