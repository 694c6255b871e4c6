package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shiftbot/internal/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect and use the agent wallet",
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the wallet's base58 address",
	RunE:  printAddress,
}

var walletSignEncoding string

var walletSignCmd = &cobra.Command{
	Use:   "sign [payload]",
	Short: "Sign a payload and print the base58 signature",
	Long: `Signs the payload with the agent keypair. The payload is read as
base64 by default; use --encoding for utf8 or hex input.`,
	Args: cobra.ExactArgs(1),
	RunE: signPayload,
}

func init() {
	walletSignCmd.Flags().StringVar(&walletSignEncoding, "encoding", "base64", "Payload encoding: base64, utf8 or hex")

	walletCmd.AddCommand(walletAddressCmd)
	walletCmd.AddCommand(walletSignCmd)
}

func printAddress(cmd *cobra.Command, args []string) error {
	w, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return err
	}
	fmt.Println(w.Address())
	return nil
}

func signPayload(cmd *cobra.Command, args []string) error {
	w, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return err
	}

	payload, err := decodeSignPayload(args[0], walletSignEncoding)
	if err != nil {
		return err
	}

	sig, err := w.SignBase58(payload)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func decodeSignPayload(data, encoding string) ([]byte, error) {
	switch encoding {
	case "utf8":
		return []byte(data), nil
	case "hex":
		raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if err != nil {
			return nil, fmt.Errorf("payload is not valid hex: %w", err)
		}
		return raw, nil
	case "base64":
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("payload is not valid base64: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q (use base64, utf8 or hex)", encoding)
	}
}
