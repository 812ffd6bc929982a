package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/geosearch/internal/config"
	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/lookup"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/spf13/cobra"
)

type searcher interface {
	Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error)
	Coordinates(ctx context.Context, q domain.Query, opts domain.Options) (domain.Coordinates, bool, error)
	Address(ctx context.Context, q domain.Query, opts domain.Options) (string, bool, error)
}

// builder returns a searcher for the given lookup override and a function
// releasing its resources. Logs go to logOut, never to the command output.
type builder func(ctx context.Context, lookupOverride string, logOut io.Writer) (searcher, func() error, error)

func buildFromEnv(ctx context.Context, lookupOverride string, logOut io.Writer) (searcher, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if lookupOverride != "" {
		cfg.Lookup = lookupOverride
	}
	logger := observability.NewLoggerTo(logOut, cfg.LogLevel, cfg.LogFormat)
	svc, err := lookup.Build(ctx, cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc.Geocoder, svc.Close, nil
}

type queryFlags struct {
	lookup string
	lat    string
	lon    string
	region string
	bounds string
	extra  map[string]string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lat, "lat", "", "latitude for a reverse lookup; requires --lon")
	cmd.Flags().StringVar(&f.lon, "lon", "", "longitude for a reverse lookup; requires --lat")
	cmd.Flags().StringVar(&f.region, "region", "", "region bias, e.g. us")
	cmd.Flags().StringVar(&f.bounds, "bounds", "", "bias rectangle as swLat,swLon,neLat,neLon")
	cmd.Flags().StringToStringVar(&f.extra, "extra", nil, "provider-specific options as key=value")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
}

// parse builds the query from the positional argument or from --lat/--lon.
func (f *queryFlags) parse(args []string) (domain.Query, domain.Options, error) {
	opts := domain.Options{Region: f.region}
	if len(f.extra) > 0 {
		opts.Extra = f.extra
	}
	if f.bounds != "" {
		b, err := domain.ParseBounds(f.bounds)
		if err != nil {
			return domain.Query{}, opts, err
		}
		opts.Bounds = b
	}

	if f.lat == "" {
		if len(args) != 1 {
			return domain.Query{}, opts, fmt.Errorf("expected one query argument or --lat and --lon")
		}
		return domain.Text(args[0]), opts, nil
	}
	if len(args) != 0 {
		return domain.Query{}, opts, fmt.Errorf("a query argument cannot be combined with --lat and --lon")
	}
	lat, err := strconv.ParseFloat(f.lat, 64)
	if err != nil {
		return domain.Query{}, opts, fmt.Errorf("invalid --lat %q", f.lat)
	}
	lon, err := strconv.ParseFloat(f.lon, 64)
	if err != nil {
		return domain.Query{}, opts, fmt.Errorf("invalid --lon %q", f.lon)
	}
	return domain.Point(lat, lon), opts, nil
}

func newRootCmd(build builder) *cobra.Command {
	flags := &queryFlags{}

	root := &cobra.Command{
		Use:   "geocode",
		Short: "Geocode addresses and IPs, or reverse geocode coordinates",
		Long: `
geocode resolves a query through the provider configured for its class.
IPv4 addresses go to the IP provider, everything else to the street
provider (GEOCODER_LOOKUP, or --lookup). Results are printed as JSON.

$ geocode search "1600 Amphitheatre Pkwy"
$ geocode coordinates 8.8.8.8
$ geocode address --lat 37.4 --lon -122.1
`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.lookup, "lookup", "", "street provider identity, overrides GEOCODER_LOOKUP")

	run := func(fn func(cmd *cobra.Command, s searcher, q domain.Query, opts domain.Options) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			q, opts, err := flags.parse(args)
			if err != nil {
				return err
			}
			s, closeFn, err := build(cmd.Context(), flags.lookup, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn() //nolint:errcheck // best-effort cleanup on exit

			out, err := fn(cmd, s, q, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print every result for a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, s searcher, q domain.Query, opts domain.Options) (any, error) {
			return s.Search(cmd.Context(), q, opts)
		}),
	}

	coordinatesCmd := &cobra.Command{
		Use:   "coordinates [query]",
		Short: "Print the coordinates of the first result",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, s searcher, q domain.Query, opts domain.Options) (any, error) {
			c, found, err := s.Coordinates(cmd.Context(), q, opts)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errNoResults
			}
			return c, nil
		}),
	}

	addressCmd := &cobra.Command{
		Use:   "address [query]",
		Short: "Print the formatted address of the first result",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, s searcher, q domain.Query, opts domain.Options) (any, error) {
			a, found, err := s.Address(cmd.Context(), q, opts)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errNoResults
			}
			return a, nil
		}),
	}

	for _, c := range []*cobra.Command{searchCmd, coordinatesCmd, addressCmd} {
		flags.register(c)
		root.AddCommand(c)
	}
	return root
}

var errNoResults = errors.New("no results")
