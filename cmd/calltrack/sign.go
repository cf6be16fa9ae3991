package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"calltrack/internal/payments"
)

// signCmd produces signatures the server will accept, for exercising the
// verify and webhook endpoints by hand.
func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute payment or webhook signatures",
	}

	var secret string
	payment := &cobra.Command{
		Use:     "payment [order_id] [payment_id]",
		Short:   "Sign order_id|payment_id with the key secret",
		Example: `  calltrack sign payment order_9A33XWu170gUtm pay_29QQoUBi66xm2f --secret $RAZORPAY_KEY_SECRET`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("RAZORPAY_KEY_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or RAZORPAY_KEY_SECRET is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), payments.Sign(secret, payments.PaymentMessage(args[0], args[1])))
			return nil
		},
	}
	payment.Flags().StringVar(&secret, "secret", "", "key secret (default $RAZORPAY_KEY_SECRET)")

	var hookSecret, file string
	webhook := &cobra.Command{
		Use:     "webhook",
		Short:   "Sign a raw webhook body read from --file or stdin",
		Example: `  calltrack sign webhook --file event.json --secret $RAZORPAY_WEBHOOK_SECRET`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hookSecret == "" {
				hookSecret = os.Getenv("RAZORPAY_WEBHOOK_SECRET")
			}
			if hookSecret == "" {
				return fmt.Errorf("--secret or RAZORPAY_WEBHOOK_SECRET is required")
			}
			var body []byte
			var err error
			if file == "" || file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), payments.Sign(hookSecret, body))
			return nil
		},
	}
	webhook.Flags().StringVar(&hookSecret, "secret", "", "webhook secret (default $RAZORPAY_WEBHOOK_SECRET)")
	webhook.Flags().StringVarP(&file, "file", "f", "", "file holding the exact body bytes (default stdin)")

	cmd.AddCommand(payment, webhook)
	return cmd
}
