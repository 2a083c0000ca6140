package main

import (
	"github.com/spf13/cobra"

	"github.com/chris/arcana/internal/service"
)

func init() {
	svcCmd := &cobra.Command{Use: "service", Short: "Manage the background service"}
	for _, c := range []struct {
		use, short string
		fn         func() error
	}{
		{"install", "Install the binary and start the service on login", service.Install},
		{"uninstall", "Stop and remove the service", service.Uninstall},
		{"start", "Start the service", service.Start},
		{"stop", "Stop the service", service.Stop},
		{"restart", "Restart the service", service.Restart},
		{"status", "Show service status", service.Status},
		{"logs", "Follow service logs", service.Logs},
	} {
		fn := c.fn
		svcCmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return fn() },
		})
	}
	rootCmd.AddCommand(svcCmd)
}
