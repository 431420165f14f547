package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pmicdash/pmicdash/pkg/auth"
)

func hashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for spec.auth.users",
		Long:  "Print a bcrypt hash for spec.auth.users. Reads the password from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	return cmd
}
