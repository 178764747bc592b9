package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/mesgate/adapters/hasher"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var (
	hashGenerate bool
	hashCost     int
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token",
	Short: "Hash an API token for server.api_token_hash",
	Long: `Hash an API token with bcrypt.

The token is read from the terminal (hidden) or from stdin. With --generate
a random token is created and printed once; store it, it cannot be
recovered from the hash.

Examples:
  mesgate hash-token --generate
  echo -n "$TOKEN" | mesgate hash-token`,
	RunE: runHashToken,
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)

	hashTokenCmd.Flags().BoolVar(&hashGenerate, "generate", false, "generate a random token")
	hashTokenCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}

func runHashToken(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var token string
	var err error
	if hashGenerate {
		token, err = hasher.NewToken()
	} else {
		token, err = readToken(cmd.InOrStdin(), out)
	}
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}

	hash, err := hasher.NewBcrypt(hashCost).Hash(token)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	if hashGenerate {
		fmt.Fprintf(out, "token:          %s\n", token)
	}
	fmt.Fprintf(out, "api_token_hash: %s\n", hash)
	return nil
}

// readToken prompts on a terminal and reads one line otherwise.
func readToken(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // Print newline after token input
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
