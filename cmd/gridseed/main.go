// Command gridseed is the operator CLI: slice a seed for a region on
// demand, inspect an exported seed file, or list the variable catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/marinerlabs/gridseed/internal/cache"
	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/codec"
	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/observability"
	"github.com/marinerlabs/gridseed/internal/provider"
	"github.com/marinerlabs/gridseed/internal/slicer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "slice":
		err = runSlice(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "vars":
		err = runVars()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`usage: gridseed <command> [flags]

commands:
  slice   assemble and export a seed for a region
  info    describe an exported seed file
  vars    list the variable catalog`)
}

func runSlice(args []string) error {
	flagSet := pflag.NewFlagSet("slice", pflag.ContinueOnError)
	centerLat := flagSet.Float64("lat", 30, "region center latitude")
	centerLon := flagSet.Float64("lon", -140, "region center longitude")
	radiusNM := flagSet.Float64("radius-nm", 500, "region radius (or route buffer) in nautical miles")
	route := flagSet.String("route", "", "route waypoints \"lat,lon;lat,lon;...\" (overrides --lat/--lon)")
	format := flagSet.String("format", "both", "export format: binary, table, both")
	hours := flagSet.Int("hours", 120, "forecast horizon in hours")
	step := flagSet.Int("step", 3, "time step in hours")
	varSet := flagSet.String("set", "standard", "variable set: minimal, standard, extended, full")
	level := flagSet.String("level", "default", "compression level: fast, default, max")
	lossless := flagSet.Bool("lossless", false, "skip quantization")
	runFlag := flagSet.String("run", "", "pin a model run (YYYYMMDDHH), default latest")
	outDir := flagSet.String("out", ".", "output directory")
	cacheDir := flagSet.String("cache", filepath.Join(os.TempDir(), "gridseed-cache"), "seed cache directory")
	mockSeed := flagSet.Int64("seed", provider.DefaultSeed, "mock provider RNG seed")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var region geo.Region
	if *route != "" {
		waypoints, err := parseRoute(*route)
		if err != nil {
			return err
		}
		region, err = geo.FromRoute(waypoints, *radiusNM)
		if err != nil {
			return err
		}
	} else {
		var err error
		region, err = geo.FromCenter(*centerLat, *centerLon, *radiusNM)
		if err != nil {
			return err
		}
	}
	variables, err := catalog.SetByName(*varSet)
	if err != nil {
		return err
	}

	logger := observability.NewLogger("warn", "text")
	store, err := cache.NewStore(*cacheDir, logger)
	if err != nil {
		return err
	}
	orchestrator, err := slicer.New(slicer.Options{
		Provider: provider.NewMock(*mockSeed),
		Cache:    store,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	req := slicer.Request{
		Region:        region,
		ForecastHours: *hours,
		TimeStepHours: *step,
		Variables:     variables,
	}
	if *runFlag != "" {
		run, err := time.ParseInLocation("2006010215", *runFlag, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --run %q, want YYYYMMDDHH", *runFlag)
		}
		req.Run = run
	}

	s, err := orchestrator.Slice(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Printf("seed     %s\n", s.ID)
	fmt.Printf("run      %s\n", s.ModelRun.Format("2006-01-02 15Z"))
	fmt.Printf("region   %s\n", s.Region)
	nt, nlat, nlon := s.Shape()
	fmt.Printf("grid     %d time steps x %d x %d points\n", nt, nlat, nlon)

	opts := codec.Options{Level: codec.Level(*level), Lossless: *lossless}
	for _, export := range []struct {
		format string
		ext    string
		encode func() ([]byte, error)
	}{
		{codec.FormatBinary, ".seed", func() ([]byte, error) { return codec.Encode(s, opts) }},
		{codec.FormatColumnar, ".tbl", func() ([]byte, error) { return codec.EncodeTable(s, opts) }},
	} {
		switch *format {
		case "both":
		case "binary", "table":
			if (*format == "binary") != (export.format == codec.FormatBinary) {
				continue
			}
		default:
			return fmt.Errorf("invalid --format %q, want binary, table or both", *format)
		}
		payload, err := export.encode()
		if err != nil {
			return err
		}
		path := filepath.Join(*outDir, s.ID+export.ext)
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return err
		}

		st := codec.Stats(s, export.format, payload)
		fmt.Printf("\n%-9s %s (%.2f MB, %.1fx)\n", st.Format, path,
			float64(st.OutputBytes)/(1024*1024), st.Ratio)
		printCosts(st.CostEstimates)
	}
	return nil
}

func parseRoute(spec string) ([]geo.Waypoint, error) {
	var waypoints []geo.Waypoint
	for _, pair := range strings.Split(spec, ";") {
		parts := strings.Split(strings.TrimSpace(pair), ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid waypoint %q, want lat,lon", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid waypoint latitude %q", parts[0])
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid waypoint longitude %q", parts[1])
		}
		waypoints = append(waypoints, geo.Waypoint{Lat: lat, Lon: lon})
	}
	return waypoints, nil
}

func printCosts(costs map[string]float64) {
	providers := make([]string, 0, len(costs))
	for p := range costs {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return costs[providers[i]] < costs[providers[j]] })
	for _, p := range providers {
		fmt.Printf("  %-20s $%.4f\n", p, costs[p])
	}
}

func runInfo(args []string) error {
	flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: gridseed info <file.seed>")
	}

	payload, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return err
	}
	s, err := codec.Decode(payload)
	if err != nil {
		return err
	}

	nt, nlat, nlon := s.Shape()
	fmt.Printf("seed       %s\n", s.ID)
	fmt.Printf("source     %s\n", s.ModelSource)
	fmt.Printf("run        %s\n", s.ModelRun.Format(time.RFC3339))
	fmt.Printf("created    %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Printf("region     %s\n", s.Region)
	fmt.Printf("resolution %.2f deg\n", s.ResolutionDeg)
	fmt.Printf("horizon    %s to %s (%dh step)\n",
		s.ForecastStart.Format("2006-01-02 15Z"), s.ForecastEnd.Format("2006-01-02 15Z"), s.TimeStepHours)
	fmt.Printf("grid       %d time steps x %d x %d points\n", nt, nlat, nlon)

	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("variables  %s\n", strings.Join(names, ", "))
	return nil
}

func runVars() error {
	sets := map[string][]string{
		"minimal":  catalog.MinimalSet,
		"standard": catalog.StandardSet,
		"extended": catalog.ExtendedSet,
	}
	member := func(key, set string) string {
		for _, k := range sets[set] {
			if k == key {
				return set[:1]
			}
		}
		return "-"
	}

	fmt.Printf("%-6s %-28s %-8s %-22s sets\n", "key", "name", "unit", "range")
	for _, key := range catalog.Keys() {
		v, _ := catalog.Lookup(key)
		fmt.Printf("%-6s %-28s %-8s %8.1f .. %-10.1f %s%s%s\n",
			v.Key, v.Name, v.Unit, v.Min, v.Max,
			member(key, "minimal"), member(key, "standard"), member(key, "extended"))
	}
	return nil
}
