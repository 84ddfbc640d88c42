package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	inquiryProviderID  string
	inquiryServiceType string
)

var inquiryCmd = &cobra.Command{
	Use:   "inquiry",
	Short: "Send price inquiries and poll for replies",
}

var inquirySendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a price inquiry to one provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		inq, err := app.inquiries.SendInquiry(cmd.Context(), inquiryProviderID, inquiryServiceType)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(inq)
	},
}

var inquiryCheckCmd = &cobra.Command{
	Use:   "check-replies",
	Short: "Poll the inbox for replies to pending inquiries",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		count, err := app.inquiries.CheckForReplies(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("reply check complete", zap.Int("processed", count))
		return nil
	},
}

func init() {
	inquirySendCmd.Flags().StringVar(&inquiryProviderID, "provider", "", "provider id")
	inquirySendCmd.Flags().StringVar(&inquiryServiceType, "service", "", "service type slug")
	inquirySendCmd.MarkFlagRequired("provider") //nolint:errcheck
	inquirySendCmd.MarkFlagRequired("service")  //nolint:errcheck

	inquiryCmd.AddCommand(inquirySendCmd)
	inquiryCmd.AddCommand(inquiryCheckCmd)
	rootCmd.AddCommand(inquiryCmd)
}
