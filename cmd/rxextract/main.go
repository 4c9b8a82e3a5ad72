// Package main is the entry point for the rxextract CLI, which runs
// prescription extraction over dictated text locally and prints JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/config"
	"github.com/drfirst/rx-dictation/internal/dictation"
	"github.com/drfirst/rx-dictation/internal/medicine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configFile string
	medicines  string
	threshold  int
	topK       int
	analyze    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "rxextract [text...]",
		Short: "Extract prescription records from dictated text",
		Long: `rxextract matches dictated text against a medicine catalog and prints
the prescription records it finds as JSON. The text is read from the
arguments, or from standard input when no arguments are given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.medicines, "medicines", "", "medicine catalog CSV (default from config, medicines.csv)")
	flags.IntVar(&opts.threshold, "threshold", 0, "minimum match score 0..100 (default from config, 80)")
	flags.IntVar(&opts.topK, "top-k", 0, "maximum number of records (default from config, 5)")
	flags.BoolVar(&opts.analyze, "analyze", false, "print candidates and spans along with records")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) error {
	cfg, err := config.Load("rxextract", opts.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("medicines") {
		cfg.MedicinesCSV = opts.medicines
	}
	if flags.Changed("threshold") {
		cfg.Extraction.Threshold = opts.threshold
	}
	if flags.Changed("top-k") {
		cfg.Extraction.TopK = opts.topK
	}

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logger.Sync()
	}

	text, err := readText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	catalog, err := medicine.Load(cfg.MedicinesCSV, logger)
	if err != nil {
		return err
	}
	svc, err := dictation.NewService(catalog.Names(), cfg.Extraction, nil, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var out any
	if opts.analyze {
		out, err = svc.Analyze(ctx, text)
	} else {
		out, err = svc.Extract(ctx, text)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
