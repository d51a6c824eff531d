package cleanregion

import (
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// debugPath joins filename to DebugDir when debug output is enabled and the
// directory exists.
func (p *Params) debugPath(filename string) (string, bool) {
	if p == nil || p.DebugDir == "" {
		return "", false
	}
	if _, err := os.Stat(p.DebugDir); os.IsNotExist(err) {
		return "", false
	}
	return filepath.Join(p.DebugDir, filename), true
}

func (p *Params) maybeSaveImage(img Mat, filename string) {
	path, ok := p.debugPath(filename)
	if !ok {
		return
	}
	if err := imWriteMat(path, img); err != nil {
		p.logger().Printf("debug image %s: %v", filename, err)
	}
}

func (p *Params) maybeSaveText(filename, text string) {
	path, ok := p.debugPath(filename)
	if !ok {
		return
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		p.logger().Printf("debug text %s: %v", filename, err)
	}
}

// maybeSaveGeoJSON writes the polygons as a feature collection, one feature per
// polygon carrying its index and vertex count.
func (p *Params) maybeSaveGeoJSON(filename string, polys []Polygon) {
	path, ok := p.debugPath(filename)
	if !ok {
		return
	}
	fc := geojson.NewFeatureCollection()
	for i, poly := range polys {
		f := geojson.NewFeature(orb.Polygon{poly.ring()})
		f.Properties["index"] = i
		f.Properties["vertices"] = len(poly.Vertices())
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		p.logger().Printf("debug GeoJSON %s: %v", filename, err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		p.logger().Printf("debug GeoJSON %s: %v", filename, err)
	}
}
