package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/estatesync/internal/config"
	"github.com/dmitrijs2005/estatesync/internal/flagx"
)

// Exit codes returned by Main.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

var ErrNoListing = errors.New("no listing: pass -listing or set \"listing\" in the manifest")

var commandFlags = []string{"-listing", "-manifest", "-seal", "-history"}

type options struct {
	listing  string
	manifest string
	seal     bool
	history  int
}

func parseOptions(args []string, errOut io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("attachsync", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.listing, "listing", "", "real estate listing id")
	fs.StringVar(&o.manifest, "manifest", "", "path to the attachment manifest (JSON)")
	fs.BoolVar(&o.seal, "seal", false, "seal an access token secret and exit")
	fs.IntVar(&o.history, "history", 0, "print the N most recent runs of the listing and exit")

	if err := fs.Parse(flagx.FilterArgs(args, commandFlags)); err != nil {
		return nil, err
	}
	if !o.seal && o.history <= 0 && o.manifest == "" {
		return nil, errors.New("one of -manifest, -history or -seal is required")
	}
	return &o, nil
}

// Main runs the command for args (without the program name) and returns the
// process exit code.
func Main(ctx context.Context, cfg *config.Config, args []string, out, errOut io.Writer) int {
	o, err := parseOptions(args, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return ExitUsage
	}

	if err := run(ctx, cfg, o, out, errOut); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return ExitError
	}
	return ExitOK
}

func run(ctx context.Context, cfg *config.Config, o *options, out, errOut io.Writer) error {
	if o.seal {
		return Seal(out, errOut)
	}

	var manifest *Manifest
	listing := o.listing
	if o.manifest != "" {
		m, err := LoadManifest(o.manifest)
		if err != nil {
			return err
		}
		manifest = m
		if listing == "" {
			listing = m.ListingID
		}
	}
	if listing == "" {
		return ErrNoListing
	}

	app, err := NewApp(ctx, cfg, out, errOut)
	if err != nil {
		return err
	}
	defer app.Close()

	if o.history > 0 {
		return app.History(ctx, listing, o.history)
	}

	report, err := app.Sync(ctx, listing, manifest.Entries)
	if err != nil {
		return err
	}
	return PrintReport(out, report)
}
