package local

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"shiftbot/internal/fault"
	"shiftbot/internal/tools"
	"shiftbot/internal/wallet"
)

// WalletGetAddress reports the active wallet address.
func WalletGetAddress(w *wallet.Wallet) *tools.Tool {
	return &tools.Tool{
		Name:        "wallet_get_address",
		Description: "Returns the active Solana wallet address (base58).",
		Category:    tools.CategoryWallet,
		Idempotent:  true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return w.Address(), nil
		},
	}
}

// WalletSignBytes signs tool-supplied bytes and returns the base58
// signature. The signature covers the decoded bytes, not the encoded form.
func WalletSignBytes(w *wallet.Wallet) *tools.Tool {
	return &tools.Tool{
		Name:        "wallet_sign_bytes",
		Description: "Signs arbitrary bytes with the active wallet and returns the base58 signature.",
		Category:    tools.CategoryWallet,
		Schema: tools.Schema{
			Required: []string{"data"},
			Properties: map[string]tools.Property{
				"data": {Type: "string", Description: "Input data to sign"},
				"encoding": {
					Type:        "string",
					Description: "Encoding of the input data",
					Enum:        []string{"base64", "utf8", "hex"},
					Default:     "base64",
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			data := stringArg(args, "data", "")
			encoding := stringArg(args, "encoding", "base64")

			payload, err := decodePayload("wallet_sign_bytes", data, encoding)
			if err != nil {
				return "", err
			}
			return w.SignBase58(payload)
		},
	}
}

// WalletEncodeBase58 re-encodes base64 bytes as base58, primarily for
// turning raw material into address- or signature-shaped strings.
func WalletEncodeBase58() *tools.Tool {
	return &tools.Tool{
		Name:        "wallet_encode_base58",
		Description: "Encodes the provided base64 bytes into base58.",
		Category:    tools.CategoryWallet,
		Idempotent:  true,
		Schema: tools.Schema{
			Required: []string{"data_base64"},
			Properties: map[string]tools.Property{
				"data_base64": {Type: "string", Description: "Input bytes, base64 encoded"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := base64.StdEncoding.DecodeString(stringArg(args, "data_base64", ""))
			if err != nil {
				return "", &fault.ValidationError{
					Tool:   "wallet_encode_base58",
					Reason: fmt.Sprintf("data_base64 is not valid base64: %v", err),
				}
			}
			return wallet.EncodeBase58(raw), nil
		},
	}
}

// decodePayload decodes tool-supplied data per the declared encoding. The
// hex form tolerates a 0x prefix.
func decodePayload(toolName, data, encoding string) ([]byte, error) {
	switch encoding {
	case "utf8":
		return []byte(data), nil
	case "hex":
		raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if err != nil {
			return nil, &fault.ValidationError{
				Tool:   toolName,
				Reason: fmt.Sprintf("data is not valid hex: %v", err),
			}
		}
		return raw, nil
	default:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, &fault.ValidationError{
				Tool:   toolName,
				Reason: fmt.Sprintf("data is not valid base64: %v", err),
			}
		}
		return raw, nil
	}
}
