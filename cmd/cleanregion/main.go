package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	cr "cleanregion/pkg/cleanregion"
	"cleanregion/pkg/config"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stderr)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	image       string
	beam        string
	cutoff      float64
	sigma       float64
	spectral    bool
	pointings   string
	cell        float64
	freq        float64
	imsize      int
	antenna     string
	compact     string
	configPath  string
	writeConfig string
	overlay     string
	debugDir    string
	verbose     bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("cleanregion", flag.ContinueOnError)
	fs.StringVar(&opts.image, "image", "", "FITS image or cube to search for peaks")
	fs.StringVar(&opts.beam, "beam", "", "FITS synthesized beam (single plane)")
	fs.Float64Var(&opts.cutoff, "cutoff", 0, "flux cutoff; 0 derives it from -sigma times the image noise")
	fs.Float64Var(&opts.sigma, "sigma", 0, "noise multiplier for the automatic cutoff (default from config)")
	fs.BoolVar(&opts.spectral, "spectral", false, "print the peaks of every plane instead of a region")
	fs.StringVar(&opts.pointings, "pointings", "", "file of mosaic pointing offsets in arcsec, one \"dx dy\" per line")
	fs.Float64Var(&opts.cell, "cell", 0, "cell size in arcsec/pixel (default from -image header)")
	fs.Float64Var(&opts.freq, "freq", 0, "observing frequency in GHz (default from -image header)")
	fs.IntVar(&opts.imsize, "imsize", 0, "image size in pixels (0 derives it from -freq and -cell)")
	fs.StringVar(&opts.antenna, "antenna", "", "antenna class for mosaics: standard or compact (default from config)")
	fs.StringVar(&opts.compact, "compact", "", "file of per-window regions, one per line, to compact into one")
	fs.StringVar(&opts.configPath, "config", "cleanregion.yaml", "YAML configuration file")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write the default configuration to this path and exit")
	fs.StringVar(&opts.overlay, "overlay", "", "PNG rendering of the region over the first plane")
	fs.StringVar(&opts.debugDir, "debug", "", "existing directory for working planes and GeoJSON polygons")
	fs.BoolVar(&opts.verbose, "v", false, "verbose progress logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.writeConfig != "" {
		return config.CreateDefaultConfigFile(opts.writeConfig)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.antenna != "" {
		cfg.Mosaic.Antenna = opts.antenna
	}
	if opts.sigma > 0 {
		cfg.Scan.CutoffSigma = opts.sigma
	}
	if opts.debugDir != "" {
		cfg.Output.DebugDir = opts.debugDir
	}
	if opts.overlay != "" {
		cfg.Output.Overlay = opts.overlay
	}
	cfg.Output.Verbose = cfg.Output.Verbose || opts.verbose

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	params.Logger = log.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case opts.compact != "":
		return runCompact(opts, params, stdout)
	case opts.pointings != "":
		return runMosaic(opts, params, stdout)
	case opts.image != "" && opts.beam != "":
		return runPeaks(ctx, opts, cfg, params, stdout)
	default:
		return fmt.Errorf("usage: cleanregion -image map.fits -beam beam.fits [-cutoff c | -sigma k]\n" +
			"       cleanregion -pointings offsets.txt [-image map.fits | -cell c -freq f [-imsize n]]\n" +
			"       cleanregion -compact regions.txt -imsize n")
	}
}

func runPeaks(ctx context.Context, opts *options, cfg *config.Config, params *cr.Params, stdout io.Writer) error {
	startTime := time.Now()
	cube, err := cr.ReadCube(opts.image)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	defer cube.Close()

	beamCube, err := cr.ReadCube(opts.beam)
	if err != nil {
		return fmt.Errorf("reading beam: %w", err)
	}
	defer beamCube.Close()
	if err := cr.ResolveBeamAxes(cube.Header, beamCube.Header, beamCube.Planes[0], params); err != nil {
		return fmt.Errorf("beam axes: %w", err)
	}

	cutoff := opts.cutoff
	if cutoff <= 0 {
		noise := cr.EstimateNoise(cube.Planes[0])
		cutoff = cfg.Scan.CutoffSigma * noise
		log.Printf("cutoff %.4g from %.1f x noise %.4g", cutoff, cfg.Scan.CutoffSigma, noise)
	}

	if opts.spectral {
		peaks, err := cr.FindSpectralPeaks(ctx, cube, beamCube.Planes[0], cutoff, params)
		if err != nil {
			return err
		}
		for _, pk := range peaks {
			fmt.Fprintf(stdout, "%d %d %d %g %.6f\n", pk.Plane, pk.Pixel.X, pk.Pixel.Y, pk.Flux, pk.FrequencyGHz)
		}
		return nil
	}

	res, err := cr.ComputeCleanRegion(ctx, cube, beamCube.Planes[0], cutoff, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, res.Region)
	params.Logger.Printf("region for %s in %.1fs", opts.image, time.Since(startTime).Seconds())

	if cfg.Output.Overlay != "" {
		if err := cr.RenderRegionOverlay(cube.Planes[0], res.Region, res.Peaks[0], cfg.Output.Overlay); err != nil {
			return fmt.Errorf("rendering overlay: %w", err)
		}
	}
	return nil
}

func runMosaic(opts *options, params *cr.Params, stdout io.Writer) error {
	pointings, err := readPointings(opts.pointings)
	if err != nil {
		return err
	}

	if opts.image != "" && (opts.cell == 0 || opts.freq == 0) {
		cube, err := cr.ReadCube(opts.image)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		defer cube.Close()
		region, err := cr.HeaderMosaicCleanRegion(pointings, cube.Header, 0, params)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, region)
		return nil
	}

	if opts.cell <= 0 || opts.freq <= 0 {
		return fmt.Errorf("mosaic regions need -cell and -freq, or an -image header")
	}
	imsize := opts.imsize
	if imsize <= 0 {
		imsize = cr.ImageSize(opts.freq, opts.cell, params.Antenna)
	}
	center := cr.Pt(float64(imsize)/2, float64(imsize)/2)
	fmt.Fprintln(stdout, cr.MosaicCleanRegion(pointings, opts.cell, opts.freq, center, params))
	return nil
}

func runCompact(opts *options, params *cr.Params, stdout io.Writer) error {
	if opts.imsize <= 0 {
		return fmt.Errorf("compacting regions needs -imsize")
	}
	lines, err := readLines(opts.compact)
	if err != nil {
		return err
	}
	regions := make(map[int]string, len(lines))
	for i, line := range lines {
		regions[i+1] = line
	}
	fmt.Fprintln(stdout, cr.CompactRegions(regions, opts.imsize, opts.imsize, params))
	return nil
}

func readPointings(path string) ([]cr.Pointing, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	pointings := make([]cr.Pointing, 0, len(lines))
	for n, line := range lines {
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: want \"dx dy\", got %q", path, n+1, line)
		}
		dx, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n+1, err)
		}
		dy, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n+1, err)
		}
		pointings = append(pointings, cr.Pointing{DX: dx, DY: dy})
	}
	return pointings, nil
}

// readLines returns the non-empty lines of a file that do not start with '#'.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
