package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/feichai0017/vision-ocr/config"
	"github.com/feichai0017/vision-ocr/internal/service/ocr"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

// Version is the application version.
const Version = "0.1.0"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	ConfigPath string
	Backend    string
	Model      string
	Endpoint   string
	Timeout    time.Duration
	Verbose    bool
}

// app carries what PersistentPreRunE built for the subcommands.
type app struct {
	opts    globalOptions
	conf    *config.Config
	log     logger.Logger
	service ocr.OCRProcessor
	closeFn func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ocr",
		Short:         "Batch OCR with a vision-language model",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := root.PersistentFlags()
	f.StringVar(&a.opts.ConfigPath, "config", "", "path to a YAML config file")
	f.StringVar(&a.opts.Backend, "backend", "", "model backend: ollama or textract")
	f.StringVarP(&a.opts.Model, "model", "m", "", "model name (default from config)")
	f.StringVar(&a.opts.Endpoint, "endpoint", "", "model service endpoint")
	f.DurationVar(&a.opts.Timeout, "timeout", 0, "per-request timeout, e.g. 90s")
	f.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "log pipeline progress to stderr")

	root.AddCommand(newImageCmd(a), newBatchCmd(a), newModelsCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	conf, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	a.applyFlags(conf)
	if err := conf.Validate(); err != nil {
		return err
	}
	a.conf = conf

	level := "warn"
	if a.opts.Verbose {
		level = "info"
	}
	a.log, err = logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	svc, closeFn, err := ocr.GetService(cmd.Context(), conf, a.log, false)
	if err != nil {
		return err
	}
	a.service, a.closeFn = svc, closeFn
	return nil
}

// applyFlags lets explicit flags win over file and environment values.
func (a *app) applyFlags(conf *config.Config) {
	if a.opts.Backend != "" {
		conf.Backend = a.opts.Backend
	}
	if a.opts.Model != "" {
		conf.Model = a.opts.Model
	}
	if a.opts.Endpoint != "" {
		conf.Endpoint = a.opts.Endpoint
	}
	if a.opts.Timeout > 0 {
		conf.Timeout = a.opts.Timeout
	}
}

func (a *app) teardown() {
	if a.closeFn != nil {
		a.closeFn()
	}
	if a.log != nil {
		a.log.Sync()
	}
}
