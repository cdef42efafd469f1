package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brojonat/chutulu/client"
	"github.com/brojonat/chutulu/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
)

func newActionClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), &http.Client{Timeout: c.Duration("timeout")}, logger)
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: 30 * time.Second,
	}
}

func actionGetCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Fetch the action label and icon",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			meta, err := newActionClient(c).Metadata(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch metadata: %w", err)
			}

			if c.Bool("json") {
				return writeIndentedJSON(c.App.Writer, meta)
			}
			fmt.Fprintf(c.App.Writer, "Label: %s\n", meta.Label)
			fmt.Fprintf(c.App.Writer, "Icon:  %s\n", meta.Icon)
			return nil
		},
	}
}

func actionFireCommand() *cli.Command {
	return &cli.Command{
		Name:      "fire",
		Usage:     "Build a fire transaction for a player",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			timeoutFlag(),
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON output, e.g. '.transaction' or '.summary.signers'",
			},
			&cli.BoolFlag{
				Name:  "inspect",
				Usage: "Decode the returned transaction and include a summary",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account is required")
			}
			account := c.Args().Get(0)

			// Compile the filter before calling the server
			var code *gojq.Code
			if filter := c.String("jq"); filter != "" {
				var err error
				code, err = compileJQ(filter)
				if err != nil {
					return err
				}
			}

			result, err := newActionClient(c).Fire(context.Background(), account)
			if err != nil {
				return fmt.Errorf("failed to build fire transaction: %w", err)
			}

			output := map[string]interface{}{
				"transaction": result.Transaction,
				"message":     result.Message,
			}
			var summary *solana.TransactionSummary
			if c.Bool("inspect") {
				programID, err := solanago.PublicKeyFromBase58(c.String("program-id"))
				if err != nil {
					return fmt.Errorf("invalid program id: %w", err)
				}
				summary, err = solana.DecodeFireTransaction(result.Transaction, programID)
				if err != nil {
					return fmt.Errorf("failed to decode transaction: %w", err)
				}
				output["summary"] = summary
			}

			switch {
			case code != nil:
				return runJQ(c.App.Writer, code, output)
			case c.Bool("json"):
				return writeIndentedJSON(c.App.Writer, output)
			}

			fmt.Fprintf(c.App.Writer, "%s\n", result.Message)
			fmt.Fprintf(c.App.Writer, "Transaction: %s\n", result.Transaction)
			if summary != nil {
				printSummary(c.App.Writer, summary)
			}
			return nil
		},
	}
}

func actionQRCommand() *cli.Command {
	return &cli.Command{
		Name:  "qr",
		Usage: "Render the action URL as a QR code",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write a PNG to this file instead of printing to the terminal",
			},
			&cli.IntFlag{
				Name:  "size",
				Usage: "PNG size in pixels",
				Value: 256,
			},
		},
		Action: func(c *cli.Context) error {
			actionURL := client.NewClient(c.String("server-url"), nil, nil).ActionURL()

			qr, err := qrcode.New(actionURL, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("failed to create QR code: %w", err)
			}

			out := c.String("out")
			if out == "" {
				fmt.Fprint(c.App.Writer, qr.ToSmallString(false))
				fmt.Fprintf(c.App.Writer, "%s\n", actionURL)
				return nil
			}

			png, err := qr.PNG(c.Int("size"))
			if err != nil {
				return fmt.Errorf("failed to encode QR code: %w", err)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Wrote QR code for %s to %s\n", actionURL, out)
			return nil
		},
	}
}

func printSummary(w io.Writer, s *solana.TransactionSummary) {
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(w, "Fee payer:  %s\n", s.FeePayer)
	fmt.Fprintf(w, "Blockhash:  %s\n", s.Blockhash)
	for _, slot := range s.Signers {
		state := "missing"
		if slot.Signed && slot.Valid {
			state = "signed"
		} else if slot.Signed {
			state = "INVALID"
		}
		fmt.Fprintf(w, "Signer:     %s (%s)\n", slot.Address, state)
	}
	if pending := s.UnsignedSigners(); len(pending) > 0 {
		fmt.Fprintf(w, "Awaiting:   %s\n", strings.Join(pending, ", "))
	}
	if s.Fire != nil {
		fmt.Fprintf(w, "Program:    %s\n", s.Fire.ProgramID)
		for i, acct := range s.Fire.Accounts {
			fmt.Fprintf(w, "  %2d %-26s %s %s\n", i, acct.Role, acct.Address, accountFlags(acct.Writable, acct.Signer))
		}
	}
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func accountFlags(writable, signer bool) string {
	flags := "r"
	if writable {
		flags = "w"
	}
	if signer {
		flags += "s"
	}
	return flags
}

// compileJQ parses and compiles a jq filter.
func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// runJQ runs code against v and prints every result. Strings are printed
// raw so a transaction can be piped straight into another tool.
func runJQ(w io.Writer, code *gojq.Code, v interface{}) error {
	// gojq only understands plain JSON values
	input, err := toJQValue(v)
	if err != nil {
		return err
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		if s, isString := result.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}

func toJQValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return out, nil
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
