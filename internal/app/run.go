package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/manifest"
)

// Run loads every unit manifest under the configured path, drives each unit
// through the load sequencer, and prints the arbitration outcome for every
// registered name.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	units, err := manifest.LoadPath(ctx, a.config.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifests: %w", err)
	}
	if len(units) == 0 {
		a.logger.Warn("No units found, nothing to register.")
		return nil
	}

	for _, unit := range units {
		result, err := a.seq.LoadUnit(ctx, unit)
		if err != nil {
			return fmt.Errorf("loading unit %q: %w", unit.Origin, err)
		}
		a.logger.Info("Unit registered.",
			"origin", result.Origin,
			"ready", len(result.Ready),
			"pending", len(result.Pending))
	}

	a.constructAll(ctx)
	return a.report(ctx)
}

// constructAll materializes every name the registry considers ready. Names
// still waiting on unloaded units are left pending; construction failures
// are reported per name, not fatal for the run.
func (a *App) constructAll(ctx context.Context) {
	for _, name := range a.seq.Names(ctx) {
		if _, err := a.seq.RequestType(ctx, name); err != nil {
			a.logger.Warn("Type not constructed.", "name", name, "error", err)
		}
	}
}

// report writes the per-name arbitration and construction view to the
// application output.
func (a *App) report(ctx context.Context) error {
	names := a.seq.Names(ctx)

	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tAUTHORITY\tCLAIMS")
	for _, name := range names {
		report, ok := a.seq.Describe(ctx, name)
		if !ok {
			continue
		}

		authority := "-"
		if report.Authoritative != nil {
			authority = fmt.Sprintf("%s (%s)", report.Authoritative.Variant, report.Authoritative.Origin)
		}
		claims := ""
		for i, c := range report.Claims {
			if i > 0 {
				claims += ", "
			}
			claims += fmt.Sprintf("%s/%s", c.Variant, c.Origin)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, report.State, authority, claims)
	}
	return w.Flush()
}
