package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"roadrisk/internal/cleaning"
	"roadrisk/internal/config"
	"roadrisk/internal/infrastructure"
	"roadrisk/internal/population"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Population split failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	in      string
	out     string
	group   []string
	minYear int
	maxYear int
}

func parseFlags(args []string) (options, error) {
	var (
		opts  options
		group string
	)
	fs := flag.NewFlagSet("popsplit", flag.ContinueOnError)
	fs.StringVar(&opts.in, "in", "", "wide population CSV with one population_<year> column per year")
	fs.StringVar(&opts.out, "out", ".", "output directory for population_<year>.csv files")
	fs.StringVar(&group, "group", "auth", "comma-separated grouping columns")
	fs.IntVar(&opts.minYear, "min-year", 2005, "first year to write")
	fs.IntVar(&opts.maxYear, "max-year", 2017, "last year to write")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.in == "" {
		return opts, fmt.Errorf("-in is required")
	}
	for _, g := range strings.Split(group, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.group = append(opts.group, g)
		}
	}
	return opts, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := infrastructure.NewLogger(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})

	df, err := cleaning.ReadTable(opts.in, config.Default().Cleaning.NaNValues)
	if err != nil {
		return err
	}

	written, err := population.SplitAnnual(df, population.SplitOptions{
		GroupBy: opts.group,
		MinYear: opts.minYear,
		MaxYear: opts.maxYear,
	}, opts.out, logger)
	if err != nil {
		return err
	}

	for _, p := range written {
		fmt.Fprintln(out, p)
	}
	return nil
}
