// Package main provides rosterctl, the command line client for the
// roster REST API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		server    string
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "rosterctl",
		Short: "Command line client for the roster control plane",
		Long: `rosterctl manages roster resources over the REST API.

Resources are described in YAML documents with a kind and a spec:

  kind: agent
  spec:
    name: coder
    image: ghcr.io/rosterlabs/agent:latest

Supported kinds: agent, identity, team, workflow, workspace, task.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&server, "server", "s", "http://localhost:7888", "Roster API server URL")
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Namespace (server default when empty)")

	client := func() *Client { return NewClient(server, namespace) }

	cmd.AddCommand(applyCmd(client))
	cmd.AddCommand(getCmd(client))
	cmd.AddCommand(deleteCmd(client))
	cmd.AddCommand(initiateCmd(client))
	cmd.AddCommand(recordsCmd(client))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rosterctl version %s\n", Version)
		},
	})

	return cmd
}

func applyCmd(client func() *Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update resources from a YAML file",
		Long:  "Apply a multi-document YAML file. Use -f - to read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("-f is required")
			}

			in := os.Stdin
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			applied, err := client().ApplyStream(cmd.Context(), in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if applied == 0 {
				return fmt.Errorf("no documents in %s", file)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "filename", "f", "", "YAML file to apply (- for stdin)")
	return cmd
}

func getCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get KIND [NAME]",
		Short: "Show one resource or list a collection",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			out, err := client().Get(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func deleteCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KIND NAME",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s deleted\n", args[0], args[1])
			return nil
		},
	}
}

func initiateCmd(client func() *Client) *cobra.Command {
	var (
		inputs    []string
		workspace string
	)

	cmd := &cobra.Command{
		Use:   "initiate WORKFLOW",
		Short: "Start a workflow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make(map[string]string, len(inputs))
			for _, in := range inputs {
				key, value, found := strings.Cut(in, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid input %q, expected key=value", in)
				}
				parsed[key] = value
			}

			id, err := client().Initiate(cmd.Context(), args[0], parsed, workspace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s initiated, record %s\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Workflow input as key=value (repeatable)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace to bind the run to")
	return cmd
}

func recordsCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "records WORKFLOW [RECORD]",
		Short: "Show the runs of a workflow",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			out, err := client().Records(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
