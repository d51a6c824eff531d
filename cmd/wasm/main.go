//go:build js && wasm

package main

import (
	"context"
	"image"
	"syscall/js"

	cr "cleanregion/pkg/cleanregion"
)

var (
	lastPlane  cr.Plane
	lastRegion string
	lastPeaks  []image.Point
)

func main() {
	js.Global().Set("findCleanRegion", js.FuncOf(findCleanRegion))
	js.Global().Set("mosaicCleanRegion", js.FuncOf(mosaicCleanRegion))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	select {} // block forever
}

func copyBytes(v js.Value) []byte {
	length := v.Get("length").Int()
	data := make([]byte, length)
	js.CopyBytesToGo(data, v)
	return data
}

// findCleanRegion(imageBytes, beamBytes, cutoff, options)
func findCleanRegion(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("usage: findCleanRegion(imageBytes, beamBytes, cutoff, options)")
	}

	params := cr.NewParams()
	if len(args) >= 4 && args[3].Type() == js.TypeObject {
		if v := args[3].Get("peakPolygonRadius"); v.Type() == js.TypeNumber {
			params.PeakPolygonRadius = v.Float()
		}
		if v := args[3].Get("beamThreshold"); v.Type() == js.TypeNumber {
			params.BeamThreshold = v.Float()
		}
	}
	// goroutines share one thread in the browser
	params.Workers = 1

	cube, err := cr.ReadCubeFromBytes(copyBytes(args[0]))
	if err != nil {
		return errorResult("image FITS parse error: " + err.Error())
	}
	beamCube, err := cr.ReadCubeFromBytes(copyBytes(args[1]))
	if err != nil {
		return errorResult("beam FITS parse error: " + err.Error())
	}
	if err := cr.ResolveBeamAxes(cube.Header, beamCube.Header, beamCube.Planes[0], params); err != nil {
		return errorResult("beam error: " + err.Error())
	}

	cutoff := args[2].Float()
	if cutoff <= 0 {
		cutoff = 3 * cr.EstimateNoise(cube.Planes[0])
	}

	res, err := cr.ComputeCleanRegion(context.Background(), cube, beamCube.Planes[0], cutoff, params)
	if err != nil {
		return errorResult("clean region error: " + err.Error())
	}
	region, peaks := res.Region, res.Peaks[0]
	lastPlane, lastRegion, lastPeaks = cube.Planes[0], region, peaks

	jsPeaks := make([]interface{}, len(peaks))
	for i, p := range peaks {
		jsPeaks[i] = map[string]interface{}{"x": p.X, "y": p.Y}
	}
	return js.ValueOf(map[string]interface{}{
		"region": region,
		"cutoff": cutoff,
		"width":  cube.Width(),
		"height": cube.Height(),
		"planes": len(cube.Planes),
		"peaks":  jsPeaks,
	})
}

// mosaicCleanRegion(pointings, cell, freq, cx, cy) where pointings is an array of [dx, dy].
func mosaicCleanRegion(this js.Value, args []js.Value) interface{} {
	if len(args) < 5 {
		return errorResult("usage: mosaicCleanRegion(pointings, cell, freq, cx, cy)")
	}
	n := args[0].Get("length").Int()
	pointings := make([]cr.Pointing, 0, n)
	for i := 0; i < n; i++ {
		p := args[0].Index(i)
		pointings = append(pointings, cr.Pointing{DX: p.Index(0).Float(), DY: p.Index(1).Float()})
	}
	center := cr.Pt(args[3].Float(), args[4].Float())
	region := cr.MosaicCleanRegion(pointings, args[1].Float(), args[2].Float(), center, cr.NewParams())
	return js.ValueOf(map[string]interface{}{"region": region})
}

func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastPlane.Data.Empty() {
		return js.Null()
	}
	pngBytes, err := cr.RenderRegionOverlayBytes(lastPlane, lastRegion, lastPeaks)
	if err != nil {
		return js.Null()
	}
	uint8Array := js.Global().Get("Uint8Array").New(len(pngBytes))
	js.CopyBytesToJS(uint8Array, pngBytes)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
