package local

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"shiftbot/internal/anchor"
	"shiftbot/internal/blueshift"
	"shiftbot/internal/fault"
	"shiftbot/internal/tools"
	"shiftbot/internal/wallet"
)

// BlueshiftListChallenges enumerates the full challenge catalog.
func BlueshiftListChallenges(c *blueshift.Client) *tools.Tool {
	return &tools.Tool{
		Name:        "blueshift_list_challenges",
		Description: "Lists all available Blueshift coding challenges.",
		Category:    tools.CategoryChallenge,
		Idempotent:  true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			challenges, err := c.ListChallenges(ctx)
			if err != nil {
				return "", err
			}
			return asJSON(challenges)
		},
	}
}

// BlueshiftGetChallenge fetches one challenge, including its problem
// description, by slug.
func BlueshiftGetChallenge(c *blueshift.Client) *tools.Tool {
	return &tools.Tool{
		Name:        "blueshift_get_challenge",
		Description: "Fetches details for a specific challenge by slug, including the problem description.",
		Category:    tools.CategoryChallenge,
		Idempotent:  true,
		Schema: tools.Schema{
			Required: []string{"slug"},
			Properties: map[string]tools.Property{
				"slug": {Type: "string", Description: "Challenge slug, e.g. anchor-vault"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			ch, err := c.GetChallenge(ctx, stringArg(args, "slug", ""))
			if err != nil {
				return "", err
			}
			return asJSON(ch)
		},
	}
}

// BlueshiftGetProgress reports completion state for the agent's own wallet.
func BlueshiftGetProgress(c *blueshift.Client, w *wallet.Wallet) *tools.Tool {
	return &tools.Tool{
		Name:        "blueshift_get_progress",
		Description: "Returns the current challenge progress for the agent wallet.",
		Category:    tools.CategoryChallenge,
		Idempotent:  true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			progress, err := c.GetProgress(ctx, w.Address())
			if err != nil {
				return "", err
			}
			return asJSON(progress)
		},
	}
}

// BlueshiftAttemptClient submits a signed base64 transaction for a
// client-side challenge. Submissions may mint NFTs on success, so the tool
// is deliberately not idempotent.
func BlueshiftAttemptClient(c *blueshift.Client, w *wallet.Wallet) *tools.Tool {
	return &tools.Tool{
		Name:        "blueshift_attempt_client",
		Description: "Submits a signed base64 transaction for a client-side challenge.",
		Category:    tools.CategoryChallenge,
		Schema: tools.Schema{
			Required: []string{"slug", "transaction_base64"},
			Properties: map[string]tools.Property{
				"slug":               {Type: "string", Description: "Challenge slug"},
				"transaction_base64": {Type: "string", Description: "Fully signed transaction, base64 encoded"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			slug := stringArg(args, "slug", "")
			txB64 := stringArg(args, "transaction_base64", "")

			raw, err := base64.StdEncoding.DecodeString(txB64)
			if err != nil {
				return "", &fault.ValidationError{
					Tool:   "blueshift_attempt_client",
					Reason: fmt.Sprintf("transaction_base64 is not valid base64: %v", err),
				}
			}
			if len(raw) == 0 {
				return "", &fault.ValidationError{
					Tool:   "blueshift_attempt_client",
					Reason: "transaction_base64 decodes to zero bytes",
				}
			}

			result, err := c.SubmitClient(ctx, slug, txB64, w.Address())
			if err != nil {
				return "", err
			}
			return asJSON(result)
		},
	}
}

// BlueshiftAttemptProgram submits a compiled program binary from the build
// workspace. The wallet signs the exact binary bytes; the signature
// authenticates the submission.
func BlueshiftAttemptProgram(c *blueshift.Client, w *wallet.Wallet, b *anchor.Builder) *tools.Tool {
	return &tools.Tool{
		Name:        "blueshift_attempt_program",
		Description: "Submits a compiled program (.so) for a program challenge. Reads the binary, signs it with the agent wallet, and uploads both.",
		Category:    tools.CategoryChallenge,
		Schema: tools.Schema{
			Required: []string{"slug", "program_path"},
			Properties: map[string]tools.Property{
				"slug":         {Type: "string", Description: "Challenge slug"},
				"program_path": {Type: "string", Description: "Path to the compiled .so inside the build workspace"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			slug := stringArg(args, "slug", "")
			path := stringArg(args, "program_path", "")

			abs, err := b.Workspace().Resolve(path)
			if err != nil {
				return "", err
			}
			program, err := os.ReadFile(abs)
			if err != nil {
				return "", fmt.Errorf("reading program binary %s: %w", path, err)
			}
			if len(program) == 0 {
				return "", &fault.ValidationError{
					Tool:   "blueshift_attempt_program",
					Reason: fmt.Sprintf("program binary %s is empty", path),
				}
			}

			sig, err := w.SignBase58(program)
			if err != nil {
				return "", err
			}

			result, err := c.SubmitProgram(ctx, slug, program, sig, w.Address())
			if err != nil {
				return "", err
			}
			return asJSON(result)
		},
	}
}
