package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/vision-ocr/internal/models"
)

func newImageCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "image <path>",
		Short: "Recognize a single image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format, a.conf.Format)
			if err != nil {
				return err
			}
			out, err := a.service.ProcessImage(cmd.Context(), args[0], f)
			if err != nil {
				if !models.IsKind(err, models.KindFormatMismatch) || out == nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
			return writeText(output, resultText(out))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: markdown, text, json, structured, key_value")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to a file instead of stdout")
	return cmd
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.service.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
