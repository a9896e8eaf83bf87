package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/queuemon/internal/auth"
)

// NewHashPasswordCmd creates the hash-password command
func NewHashPasswordCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print a bcrypt FLOWER_AUTH entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(cmd.InOrStdin(), cmd.OutOrStdout(), username)
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "admin", "username for the entry")

	return cmd
}

func runHashPassword(in io.Reader, out io.Writer, username string) error {
	if username == "" || strings.ContainsAny(username, ":,") {
		return fmt.Errorf("username must be non-empty and must not contain ':' or ','")
	}

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		return errors.New("no password given on stdin")
	}

	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s:%s\n", username, hash)
	return nil
}
