package cleanregion

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugWriteFailuresAreLogged(t *testing.T) {
	// a regular file passes the existence check but cannot hold entries
	notDir := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(notDir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p := NewParams()
	p.Logger = log.New(&buf, "", 0)
	p.DebugDir = notDir

	tests := []struct {
		name string
		save func()
		want string
	}{
		{"text", func() { p.maybeSaveText("region.txt", QuarterRegion) }, "region.txt"},
		{"geojson", func() { p.maybeSaveGeoJSON("peak-region.geojson", []Polygon{NewOctagon(Pt(5, 5), 2)}) }, "peak-region.geojson"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.save()
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log %q does not mention %s", buf.String(), tt.want)
			}
		})
	}
}

func TestDebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	p := NewParams()
	p.Logger = log.New(&buf, "", 0)

	p.maybeSaveText("region.txt", QuarterRegion)
	p.maybeSaveGeoJSON("peak-region.geojson", nil)
	if buf.Len() != 0 {
		t.Errorf("disabled debug output logged %q", buf.String())
	}
	if _, ok := p.debugPath("region.txt"); ok {
		t.Error("debug path enabled without a directory")
	}
}
