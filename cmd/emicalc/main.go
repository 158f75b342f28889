// Command emicalc prints a loan's EMI and amortization schedule, converted into
// another currency with live exchange rates or the built-in fallback table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dalfonso89/emi-calculator/internal/amortization"
	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/logger"
	"github.com/dalfonso89/emi-calculator/internal/models"
	"github.com/dalfonso89/emi-calculator/internal/service"
)

const fallbackBanner = "Live exchange rates are unavailable. Showing fallback rates."

// options holds the parsed command line
type options struct {
	principal string
	rate      string
	years     string
	currency  string
	target    string
	lang      string
	offline   bool
	summary   bool
	timeout   time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "emicalc: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))
}

func parseOptions(args []string, defaultCurrency string, stderr io.Writer) (options, error) {
	var opts options

	flags := flag.NewFlagSet("emicalc", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.principal, "principal", "", "Loan amount")
	flags.StringVar(&opts.rate, "rate", "", "Annual interest rate in percent")
	flags.StringVar(&opts.years, "years", "", "Loan term in years")
	flags.StringVar(&opts.currency, "currency", defaultCurrency, "Currency the loan is denominated in")
	flags.StringVar(&opts.target, "to", "", "Currency to show the schedule in (defaults to -currency)")
	flags.StringVar(&opts.lang, "lang", "en", "Language tag used to format numbers")
	flags.BoolVar(&opts.offline, "offline", false, "Skip fetching rates and use the fallback table")
	flags.BoolVar(&opts.summary, "summary", false, "Print totals only, without the monthly schedule")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Time allowed for fetching exchange rates before using the fallback table")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run returns the process exit code
func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, cfg.DefaultBaseCurrency, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	log := logger.NewWithOutput("warn", "text", stderr)

	request := models.AmortizationRequest{
		Principal:  models.ParseNumericInput(opts.principal),
		AnnualRate: models.ParseNumericInput(opts.rate),
		TermYears:  models.ParseNumericInput(opts.years),
	}

	fetchConfig := *cfg
	fetchConfig.RatesFetchTimeout = opts.timeout
	ratesService := service.NewRatesService(&fetchConfig, log, nil)
	if opts.offline {
		ratesService.WithProviders()
	}
	calculator := service.NewCalculatorService(ratesService, log, cfg.DefaultBaseCurrency)

	response, err := calculator.Calculate(ctx, request.Terms(), opts.currency, opts.target)
	if err != nil {
		if errors.Is(err, amortization.ErrInvalidInput) {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stderr, "emicalc: %v\n", err)
		return 1
	}

	printer := message.NewPrinter(resolveLanguage(opts.lang, log))
	if err := render(stdout, printer, response, opts.summary); err != nil {
		fmt.Fprintf(stderr, "emicalc: %v\n", err)
		return 1
	}
	return 0
}

func resolveLanguage(tag string, log *logrus.Logger) language.Tag {
	parsed, err := language.Parse(tag)
	if err != nil {
		log.Warnf("Unknown language %q, formatting numbers in English", tag)
		return language.English
	}
	return parsed
}

// render writes the banner, totals and, unless summaryOnly, the converted schedule
func render(out io.Writer, printer *message.Printer, response models.AmortizationResponse, summaryOnly bool) error {
	if response.Fallback {
		if _, err := fmt.Fprintf(out, "!! %s\n\n", fallbackBanner); err != nil {
			return err
		}
	}

	totalPayment, _ := response.Summary.TotalPayment.Float64()
	totalInterest, _ := response.Summary.TotalInterest.Float64()

	lines := []string{
		printer.Sprintf("Monthly EMI:     %s", formatAmount(printer, response.EMI, response.Currency)),
		printer.Sprintf("Total interest:  %s", formatAmount(printer, totalInterest, response.Currency)),
		printer.Sprintf("Total payment:   %s", formatAmount(printer, totalPayment, response.Currency)),
	}
	if response.TargetCurrency != response.Currency {
		converted := "unavailable"
		if response.EMIConverted {
			converted = formatAmount(printer, response.ConvertedEMI, response.TargetCurrency)
		}
		lines = append(lines, printer.Sprintf("EMI in %s:      %s", response.TargetCurrency, converted))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	if response.Warning != "" && !response.Fallback {
		if _, err := fmt.Fprintf(out, "note: %s\n", response.Warning); err != nil {
			return err
		}
	}

	if summaryOnly || len(response.ConvertedSchedule) == 0 {
		return nil
	}

	unit := response.TargetCurrency
	if !response.EMIConverted {
		unit = response.Currency
	}
	if _, err := fmt.Fprintf(out, "\nSchedule (%s)\n", unit); err != nil {
		return err
	}

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(table, "Month\tPrincipal\tInterest\tBalance\t")
	for _, row := range response.ConvertedSchedule {
		printer.Fprintf(table, "%d\t%.2f\t%.2f\t%.2f\t\n", row.Month, row.PrincipalPaid, row.InterestPaid, row.RemainingBalance)
	}
	return table.Flush()
}

// formatAmount renders value with the ISO code at the currency's standard scale.
// Codes x/text does not know get a plain suffix.
func formatAmount(printer *message.Printer, value float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return printer.Sprintf("%.2f %s", value, code)
	}
	return printer.Sprintf("%v", currency.ISO(unit.Amount(value)))
}
