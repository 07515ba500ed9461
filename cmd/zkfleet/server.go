package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zkfleet/zkfleet/pkg/api"
	"github.com/zkfleet/zkfleet/pkg/client"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage ZooKeeper servers",
}

func init() {
	serverCmd.PersistentFlags().String("api", "http://localhost:6666", "Scheduler admin API address")

	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverUpdateCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverRemoveCmd)
	serverCmd.AddCommand(serverStatusCmd)
}

func apiClient(cmd *cobra.Command) *client.Client {
	base, _ := cmd.Flags().GetString("api")
	return client.New(base)
}

func serverRequest(cmd *cobra.Command, id string) (*api.ServerRequest, error) {
	cpus, _ := cmd.Flags().GetFloat64("cpus")
	mem, _ := cmd.Flags().GetFloat64("mem")
	ports, _ := cmd.Flags().GetString("ports")
	constraints, _ := cmd.Flags().GetStringArray("constraint")

	req := &api.ServerRequest{
		ID:    id,
		CPUs:  cpus,
		Mem:   mem,
		Ports: ports,
	}
	for _, c := range constraints {
		name, token, found := strings.Cut(c, "=")
		if !found || name == "" || token == "" {
			return nil, fmt.Errorf("invalid constraint %q, expected name=like:PATTERN or name=unique", c)
		}
		if req.Constraints == nil {
			req.Constraints = make(map[string][]string)
		}
		req.Constraints[name] = append(req.Constraints[name], token)
	}
	return req, nil
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("cpus", 0, "CPUs per server (0 = scheduler default)")
	cmd.Flags().Float64("mem", 0, "Memory in MB per server (0 = scheduler default)")
	cmd.Flags().String("ports", "", "Allowed client port ranges, e.g. 31000..31100,2181 (empty = any)")
	cmd.Flags().StringArray("constraint", nil, "Placement constraint name=like:PATTERN or name=unique (repeatable)")
}

var serverAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register a new server",
	Long: `Register a new server. The server starts inactive; use "server start"
to make it eligible for offers.

Examples:
  zkfleet server add zk-1 --cpus 1 --mem 1024
  zkfleet server add zk-2 --constraint hostname=unique --constraint rack=like:us-east-.*`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := serverRequest(cmd, args[0])
		if err != nil {
			return err
		}

		status, err := apiClient(cmd).AddServer(req)
		if err != nil {
			return fmt.Errorf("failed to add server: %w", err)
		}
		fmt.Printf("✓ Server added: %s\n", status.ID)
		return nil
	},
}

var serverUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Replace a server's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := serverRequest(cmd, args[0])
		if err != nil {
			return err
		}

		status, err := apiClient(cmd).UpdateServer(args[0], req)
		if err != nil {
			return fmt.Errorf("failed to update server: %w", err)
		}
		fmt.Printf("✓ Server updated: %s\n", status.ID)
		return nil
	},
}

var serverStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Make a server eligible for offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient(cmd).StartServer(args[0])
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		fmt.Printf("✓ Server started: %s\n", status.ID)
		return nil
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Take a server out of scheduling, killing its task if running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient(cmd).StopServer(args[0])
		if err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		fmt.Printf("✓ Server stopped: %s\n", status.ID)
		return nil
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an inactive server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).RemoveServer(args[0]); err != nil {
			return fmt.Errorf("failed to remove server: %w", err)
		}
		fmt.Printf("✓ Server removed: %s\n", args[0])
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show all servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := apiClient(cmd).Status()
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}
		if len(servers) == 0 {
			fmt.Println("No servers registered")
			return nil
		}

		fmt.Printf("%-12s %-8s %-20s %-6s %s\n", "ID", "STATE", "HOST", "PORT", "FAILURES")
		for _, s := range servers {
			host, port := "-", "-"
			if s.Task != nil {
				host = s.Task.Hostname
				port = fmt.Sprintf("%d", s.Task.Port)
			}
			failures := fmt.Sprintf("%d", s.Failover.Failures)
			if s.Failover.MaxTries != nil {
				failures = fmt.Sprintf("%d/%d", s.Failover.Failures, *s.Failover.MaxTries)
			}
			fmt.Printf("%-12s %-8s %-20s %-6s %s\n", s.ID, s.State, host, port, failures)
		}
		return nil
	},
}

func init() {
	addServerFlags(serverAddCmd)
	addServerFlags(serverUpdateCmd)
}
