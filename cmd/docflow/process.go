package main

import (
	"github.com/spf13/cobra"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/workflow"
)

var (
	wantDocx   bool
	wantPDF    bool
	attachment string
)

var ocrCmd = &cobra.Command{
	Use:   "ocr FILE...",
	Short: "Extract text from images and convert it to DOCX and/or PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) (any, error) {
		if err := requireSession(a); err != nil {
			return nil, err
		}
		if !wantDocx && !wantPDF {
			return nil, workflow.ErrNoFormats
		}
		return nonNil(a.api().OCR(cmd.Context(), args, document.OutputFormats{Docx: wantDocx, PDF: wantPDF}))
	}),
}

var docgenCmd = &cobra.Command{
	Use:   "docgen PROMPT",
	Short: "Generate a document from a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) (any, error) {
		if err := requireSession(a); err != nil {
			return nil, err
		}
		return nonNil(a.api().DocGen(cmd.Context(), args[0], attachment))
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the API has its backend configuration",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		return nonNil(a.api().Status(cmd.Context()))
	}),
}

func init() {
	ocrCmd.Flags().BoolVar(&wantDocx, "docx", false, "produce a DOCX file")
	ocrCmd.Flags().BoolVar(&wantPDF, "pdf", false, "produce a PDF file")
	docgenCmd.Flags().StringVar(&attachment, "attachment", "", "optional reference file")

	rootCmd.AddCommand(ocrCmd, docgenCmd, statusCmd)
}
