package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Interactive console (the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:     "exec COMMAND...",
		Short:   "Run one console command and exit",
		Example: "  arcana exec status\n  arcana exec read what should I notice today",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cli")
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Println(a.console.Exec(cmd.Context(), a.user(), strings.Join(args, " ")))
			return nil
		},
	})
}

func runREPL(ctx context.Context) error {
	a, err := newApp("cli")
	if err != nil {
		return err
	}
	defer a.Close()

	scanner := bufio.NewScanner(os.Stdin)

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	prompt := func() {
		if !isPipe {
			fmt.Print("arcana> ")
		}
	}

	if !isPipe {
		fmt.Println(a.console.Exec(ctx, a.user(), "status"))
	}
	prompt()
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			prompt()
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		fmt.Println(a.console.Exec(ctx, a.user(), input))
		prompt()
	}
	return scanner.Err()
}
