/*
main.go - One-shot allocation from a rules file

PURPOSE:
  Splits one net amount using a configuration file and prints the result.
  Handy for checking a beneficiary's settings before a payroll run.

USAGE:
  allocate -config rules.yaml -net 5000.00
  allocate -config rules.json -destinations bank1,bank2,bank3 -net 1000
  allocate -config rules.yaml -net 1000 -precision 0

  -destinations overrides the file's destination list (order matters:
  unconfigured destinations are reported in that order).

EXIT STATUS:
  0 on success; 1 with the error kind on stderr otherwise.

SEE ALSO:
  - factory/distribution.go: File format
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/factory"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "rules file (.json, .yaml or .yml)")
	destinations := fs.String("destinations", "", "comma-separated known destinations (overrides file)")
	netFlag := fs.String("net", "", "net amount to split")
	precision := fs.Int("precision", int(disbursement.DefaultPrecision), "minor-unit digits")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" || *netFlag == "" {
		fmt.Fprintln(stderr, "usage: allocate -config FILE -net AMOUNT [-destinations a,b] [-precision N]")
		return 2
	}

	net, err := disbursement.ParseMoney(*netFlag)
	if err != nil {
		fmt.Fprintf(stderr, "invalid net amount: %v\n", err)
		return 1
	}

	f := factory.NewConfigFactory()
	cfg, err := f.LoadFile(*configPath)
	if err != nil {
		return fail(stderr, err)
	}
	if *destinations != "" {
		cfg.Destinations = nil
		for _, d := range strings.Split(*destinations, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Destinations = append(cfg.Destinations, disbursement.DestinationID(d))
			}
		}
		if err := disbursement.Validate(cfg); err != nil {
			return fail(stderr, err)
		}
	}

	allocator := disbursement.NewAllocator(int32(*precision))
	result, err := allocator.Allocate(net, cfg)
	if err != nil {
		return fail(stderr, err)
	}

	printResult(stdout, result, allocator.Precision())
	return 0
}

func fail(w io.Writer, err error) int {
	code := disbursement.Code(err)
	if code == "" {
		code = "error"
	}
	fmt.Fprintf(w, "%s: %v\n", code, err)
	return 1
}

func printResult(w io.Writer, r disbursement.Result, precision int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DESTINATION\tKIND\tSEQ\tAMOUNT\t")
	for _, a := range r.Allocations {
		seq := "-"
		if a.Kind.IsExplicit() {
			seq = fmt.Sprint(a.Sequence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", a.Destination, a.Kind, seq, a.Amount.StringFixed(precision))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\n", r.Total().StringFixed(precision))
	tw.Flush()

	if !r.Residual.IsZero() {
		fmt.Fprintf(w, "residual %s absorbed by %s\n", r.Residual.StringFixed(precision), r.Absorber)
	}
}
