package cleanregion

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"
)

// ScanPlane returns the peaks of one plane at or above cutoff, brightest first.
// After every peak the main lobe and every sidelobe of the beam are erased from
// a private working copy, so the plane itself is never modified. Masked and NaN
// pixels count as zero.
func ScanPlane(ctx context.Context, plane Plane, beam *Beam, cutoff float64, p *Params) ([]image.Point, error) {
	return scanPlane(ctx, plane, beam, cutoff, orDefault(p), "")
}

// scanPlane is ScanPlane that also dumps the erased working copy as debugName.
func scanPlane(ctx context.Context, plane Plane, beam *Beam, cutoff float64, p *Params, debugName string) ([]image.Point, error) {
	if plane.Data.Empty() {
		return nil, nil
	}
	work := workingCopy(plane)
	defer work.Close()

	offsets := eraseOffsets(beam)
	half := int(math.Round(p.EraseHalfWidth * float64(beam.Size())))
	bounds := image.Rect(0, 0, work.Cols(), work.Rows())
	limit := float32(cutoff)

	peaks := make([]image.Point, 0)
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return peaks, ctx.Err()
			default:
			}
		}

		v, loc := maxLoc(work)
		if v < limit || math.IsInf(float64(v), -1) {
			break
		}
		peaks = append(peaks, loc)
		for _, off := range offsets {
			eraseSquare(&work, loc.Add(off), half, bounds)
		}
	}
	if debugName != "" {
		p.maybeSaveImage(work, debugName)
	}
	return peaks, nil
}

// eraseOffsets is the sidelobe list of the beam with the main lobe (0,0)
// guaranteed to be present.
func eraseOffsets(beam *Beam) []image.Point {
	offsets := make([]image.Point, 0, len(beam.Sidelobes)+1)
	offsets = append(offsets, image.Point{})
	for _, off := range beam.Sidelobes {
		if off == (image.Point{}) {
			continue
		}
		offsets = append(offsets, off)
	}
	return offsets
}

// FindPeaks scans every plane of the cube and returns the peaks indexed by
// plane. A single plane is scanned directly; more planes go through a pool of
// at most Params.Workers goroutines. The cube is not modified.
func FindPeaks(ctx context.Context, cube *Cube, beam *Beam, cutoff float64, p *Params) ([][]image.Point, error) {
	p = orDefault(p)
	if cube == nil || len(cube.Planes) == 0 {
		return nil, ErrEmptyCube
	}
	if beam == nil {
		return nil, fmt.Errorf("%w: no beam model", ErrMalformedBeam)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	defer func() {
		p.verbosef("scanned %d planes in %.1fms", len(cube.Planes), float64(time.Since(start).Microseconds())/1000)
	}()

	if len(cube.Planes) == 1 {
		peaks, err := scanPlane(ctx, cube.Planes[0], beam, cutoff, p, planeDebugName(0))
		if err != nil {
			return nil, err
		}
		return [][]image.Point{peaks}, nil
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(cube.Planes) {
		workers = len(cube.Planes)
	}

	results := newPeakAccumulator(len(cube.Planes))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plane := range jobs {
				peaks, err := scanPlane(ctx, cube.Planes[plane], beam, cutoff, p, planeDebugName(plane))
				results.add(plane, peaks, err)
				p.verbosef("plane %d: %d peaks", plane, len(peaks))
			}
		}()
	}

feed:
	for plane := range cube.Planes {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- plane:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results.collect()
}

func planeDebugName(plane int) string {
	return fmt.Sprintf("scan-plane-%03d.tiff", plane)
}

// peakAccumulator collects per-plane results from concurrent workers.
type peakAccumulator struct {
	mu    sync.Mutex
	peaks [][]image.Point
	err   error
}

func newPeakAccumulator(planes int) *peakAccumulator {
	return &peakAccumulator{peaks: make([][]image.Point, planes)}
}

func (a *peakAccumulator) add(plane int, peaks []image.Point, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		if a.err == nil {
			a.err = fmt.Errorf("scanning plane %d: %w", plane, err)
		}
		return
	}
	a.peaks[plane] = peaks
}

func (a *peakAccumulator) collect() ([][]image.Point, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.peaks, nil
}

// FlattenPeaks concatenates per-plane peaks in plane order.
func FlattenPeaks(perPlane [][]image.Point) []image.Point {
	var all []image.Point
	for _, peaks := range perPlane {
		all = append(all, peaks...)
	}
	return all
}
