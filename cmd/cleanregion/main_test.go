package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cr "cleanregion/pkg/cleanregion"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPointings(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    []cr.Pointing
		wantErr bool
	}{
		{"spaces and comments", "# dx dy\n0 0\n\n12.5 -3\n", []cr.Pointing{{DX: 0, DY: 0}, {DX: 12.5, DY: -3}}, false},
		{"commas and tabs", "1,2\n3\t4\n", []cr.Pointing{{DX: 1, DY: 2}, {DX: 3, DY: 4}}, false},
		{"missing column", "1\n", nil, true},
		{"not a number", "1 x\n", nil, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, filepath.Base(t.Name())+string(rune('a'+i)), tt.content)
			got, err := readPointings(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k := range tt.want {
				if got[k] != tt.want[k] {
					t.Errorf("pointing %d: got %v, want %v", k, got[k], tt.want[k])
				}
			}
		})
	}
}

func TestRunMosaic(t *testing.T) {
	dir := t.TempDir()
	pointings := writeFile(t, dir, "offsets.txt", "0 0\n6 0\n")
	cfg := filepath.Join(dir, "cleanregion.yaml")

	var out bytes.Buffer
	err := run([]string{"-config", cfg, "-pointings", pointings, "-cell", "1", "-freq", "230"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	size := cr.ImageSize(230, 1, cr.AntennaStandard)
	center := cr.Pt(float64(size)/2, float64(size)/2)
	want := cr.MosaicCleanRegion([]cr.Pointing{{DX: 0, DY: 0}, {DX: 6, DY: 0}}, 1, 230, center, nil)
	if got := strings.TrimSpace(out.String()); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunCompact(t *testing.T) {
	dir := t.TempDir()
	octagon := "polygon'(18,25,15,22,15,18,18,15,22,15,25,18,25,22,22,25,18,25)'"
	regions := writeFile(t, dir, "regions.txt", octagon+"\n"+cr.QuarterRegion+"\n")
	cfg := filepath.Join(dir, "cleanregion.yaml")

	var out bytes.Buffer
	if err := run([]string{"-config", cfg, "-compact", regions, "-imsize", "100"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != octagon {
		t.Errorf("got %q, want %q", got, octagon)
	}

	if err := run([]string{"-config", cfg, "-compact", regions}, &out); err == nil {
		t.Error("compaction without -imsize accepted")
	}
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleanregion.yaml")
	if err := run([]string{"-write-config", path}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestRunUsage(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "cleanregion.yaml")
	tests := []struct {
		name string
		args []string
	}{
		{"no mode", []string{"-config", cfg}},
		{"image without beam", []string{"-config", cfg, "-image", "map.fits"}},
		{"mosaic without cell", []string{"-config", cfg, "-pointings", "missing.txt"}},
		{"unknown antenna", []string{"-config", cfg, "-antenna", "huge", "-compact", "x", "-imsize", "10"}},
		{"bad flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(tt.args, &bytes.Buffer{}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
