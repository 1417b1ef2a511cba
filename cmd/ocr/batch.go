package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/internal/service/ocr"
	"github.com/feichai0017/vision-ocr/pkg/converters"
)

type batchOptions struct {
	Format       string
	Recursive    bool
	Workers      int
	Output       string
	NoPreprocess bool
	Quiet        bool
}

func newBatchCmd(a *app) *cobra.Command {
	var opts batchOptions
	cmd := &cobra.Command{
		Use:   "batch <dir|files...>",
		Short: "Recognize every image of a directory or a list of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "output format: markdown, text, json, structured, key_value")
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "number of images processed at once (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the report to a .json, .md or .txt file")
	cmd.Flags().BoolVar(&opts.NoPreprocess, "no-preprocess", false, "send images without resizing or enhancement")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func runBatch(cmd *cobra.Command, a *app, opts batchOptions, args []string) error {
	f, err := parseFormat(opts.Format, a.conf.Format)
	if err != nil {
		return err
	}
	if opts.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}

	conv := converters.ReportConverter(&converters.TextConverter{})
	if opts.Output != "" {
		if conv, err = converterFor(opts.Output); err != nil {
			return err
		}
	}

	req := batchRequest(args)
	req.Format = f
	req.Recursive = opts.Recursive
	req.MaxWorkers = opts.Workers
	if opts.NoPreprocess {
		no := false
		req.Preprocess = &no
	}

	var bar *progressbar.ProgressBar
	if !opts.Quiet {
		// Total is unknown until the service has enumerated the inputs.
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("OCR"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		req.OnResult = func(r models.OCRResult) {
			if !r.Success {
				bar.Describe(fmt.Sprintf("OCR (last failure: %s)", r.ImageID))
			}
			bar.Add(1)
		}
	}

	report, err := a.service.ProcessBatch(cmd.Context(), req)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	data, err := conv.Convert(report)
	if err != nil {
		return err
	}
	if err := writeText(opts.Output, string(data)); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Processed %d images: %d successful, %d failed\n",
		report.Statistics.Total, report.Statistics.Successful, report.Statistics.Failed)
	for _, id := range converters.SortedIDs(report) {
		if r := report.Results[id]; !r.Success && r.Error != nil {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", id, r.Error.Message)
		}
	}
	if report.Statistics.Total > 0 && report.Statistics.Successful == 0 {
		return fmt.Errorf("all %d images failed", report.Statistics.Total)
	}
	return nil
}

// batchRequest uses a single directory argument as the batch root and
// treats anything else as an explicit file list.
func batchRequest(args []string) ocr.BatchRequest {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			return ocr.BatchRequest{Path: args[0]}
		}
	}
	return ocr.BatchRequest{Paths: args}
}
