package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/disbursement"
	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/logging"
)

var inspectFile string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate and summarise a batch outbox Parquet file",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFile, "file", "", "Path to outbox Parquet file (required)")
	_ = inspectCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	format := logFormat
	if format == "" {
		format = "text"
	}
	log := logging.Setup(format, logLevel)

	f, err := disbursement.ReadOutbox(inspectFile)
	if err != nil {
		log.Error().Err(err).Str("file", inspectFile).Msg("outbox file rejected")
		os.Exit(exitcode.ValidationError)
	}

	fmt.Println("=== brillestotte inspect ===")
	fmt.Printf("File:         %s\n", inspectFile)
	fmt.Printf("SHA-256:      %s\n", f.SHA256)
	fmt.Printf("Size:         %d bytes\n", f.Size)
	fmt.Printf("Batch:        %s\n", f.BatchID)
	fmt.Printf("Vendor:       %s\n", f.OrgID)
	fmt.Printf("Batch date:   %s\n", f.BatchDate)
	fmt.Printf("Resubmission: %t\n", f.Resubmission)
	fmt.Printf("Payments:     %d\n", len(f.Rows))
	fmt.Printf("Total:        %d kr\n", f.Total)
	fmt.Println("Validation: OK")
	return nil
}
