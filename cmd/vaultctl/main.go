package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"sfex/internal/config"
	"sfex/internal/logger"
	"sfex/internal/vault"
	"sfex/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operator tooling for the secret store",
		Long:  "vaultctl inspects and rotates secrets and certificates used by the file exchange services",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(
		getSecretCmd(),
		rotateSecretCmd(),
		rotateCertCmd(),
		checkCertCmd(),
		healthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() (*vault.Client, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}

	if cfg.Vault.Address == "" {
		return nil, fmt.Errorf("vault.address is not configured")
	}

	return vault.NewClient(cfg.Vault, logger.NopLogger()), nil
}

func getSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-secret <path>",
		Short: "Read a secret and print its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			secret, err := client.GetSecret(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("version=%d created=%s\n", secret.Metadata.Version, secret.Metadata.CreatedTime.Format(time.RFC3339))
			for key := range secret.Data {
				fmt.Println(key)
			}
			return nil
		},
	}
}

func rotateSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret <path> <key=value>...",
		Short: "Write a new secret version",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := make(map[string]string, len(args)-1)
			for _, pair := range args[1:] {
				key, value, found := strings.Cut(pair, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid key=value pair %q", pair)
				}
				data[key] = value
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			version, err := client.RotateSecret(ctx, args[0], data)
			if err != nil {
				return err
			}

			fmt.Printf("rotated %s to version %d\n", args[0], version)
			return nil
		},
	}
}

func rotateCertCmd() *cobra.Command {
	var (
		role       string
		commonName string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rotate-cert",
		Short: "Issue a fresh TLS certificate from the PKI backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cert, err := client.IssueCertificate(ctx, role, commonName, ttl)
			if err != nil {
				return err
			}

			fmt.Printf("issued serial=%s expires=%s\n", cert.SerialNumber, time.Unix(cert.Expiration, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "PKI role to issue against (required)")
	cmd.Flags().StringVar(&commonName, "common-name", "", "Certificate common name (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 90*24*time.Hour, "Certificate lifetime")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("common-name")

	return cmd
}

func checkCertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-cert",
		Short: "Print the expiry of the stored TLS certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			expiry, err := client.CertificateExpiry(ctx)
			if err != nil {
				return err
			}

			remaining := time.Until(expiry)
			fmt.Printf("expires=%s remaining=%s\n", expiry.Format(time.RFC3339), remaining.Round(time.Hour))
			if remaining <= 0 {
				return fmt.Errorf("certificate has expired")
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check secret store connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := client.ValidateConnectivity(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("initialized=%t sealed=%t version=%s\n", status.Initialized, status.Sealed, status.Version)
			return nil
		},
	}
}
