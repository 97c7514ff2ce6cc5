package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/mailbroker/internal/password"
)

func NewHashPasswordCommand() *cobra.Command {
	var (
		useBcrypt bool
		cost      int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for the user directory",
		Long: `Read a password from the first line of stdin and print a hash suitable
for the directory's password attribute. SHA-512 crypt ($6$) by default.

Example:
  printf '%s\n' "$PASSWORD" | mailbroker hash-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")
			if pw == "" {
				return errors.New("empty password on stdin")
			}

			var hash string
			if useBcrypt {
				hash, err = password.HashBcrypt(pw, cost)
			} else {
				hash, err = password.HashSHA512(pw)
			}
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "Produce a bcrypt hash instead of SHA-512 crypt")
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}
