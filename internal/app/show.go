package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent fare observations and alert decisions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	quotes, err := store.ListRecentQuotes(ctx, a.route(), opts.Limit)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		fmt.Fprintln(os.Stdout, "no fare observations found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Observed (UTC)\tRoute\tCarrier\tPrice\tCurrency\tSource")
		for _, quote := range quotes {
			fmt.Fprintf(
				writer,
				"%s\t%s-%s\t%s\t%s\t%s\t%s\n",
				quote.ObservedAt.UTC().Format(time.RFC3339),
				quote.Origin,
				quote.Destination,
				quote.CarrierCode,
				quote.Price.StringFixed(2),
				quote.Currency,
				quote.SourceID,
			)
		}
		writer.Flush()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Decided (UTC)\tRoute\tPrice\tReference\tSavings\tRating\tMiles Program")
	for _, alert := range alerts {
		program := "-"
		if alert.BestProgram != nil {
			program = *alert.BestProgram
		}
		fmt.Fprintf(
			writer,
			"%s\t%s-%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.DecidedAt.UTC().Format(time.RFC3339),
			alert.Origin,
			alert.Destination,
			alert.Price.StringFixed(2),
			alert.ReferencePrice.StringFixed(2),
			alert.SavingsAmount.StringFixed(2),
			alert.Rating,
			program,
		)
	}
	writer.Flush()
	return nil
}
