package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	orchhttp "github.com/fyrsmithlabs/orchestratord/internal/http"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

func newRunCmd(opts *options) *cobra.Command {
	var (
		text       string
		file       string
		plan       []string
		showPlan   bool
		local      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Run a pipeline over some text",
		Long: `Run a pipeline over some text.

The server plans the instruction into tasks unless --plan lists them
explicitly. The final result is printed to stdout; with --json the whole
response is printed instead.

Examples:
  # Let the planner pick the tasks
  orchctl run "clean this up and summarize it" --text "  some   text "

  # Read the text from a file, or stdin with -
  cat notes.txt | orchctl run "summarize" --file -

  # Skip planning
  orchctl run --plan clean_text,summarization --file notes.txt

  # Run in-process with the daemon's config instead of calling a server
  orchctl run --local --plan clean_text --text "a  b"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchhttp.RunRequest{}
			if len(args) == 1 {
				req.Instruction = args[0]
			}
			if cmd.Flags().Changed("plan") {
				req.Plan = make([]registry.TaskID, 0, len(plan))
				for _, t := range plan {
					if t = strings.TrimSpace(t); t != "" {
						req.Plan = append(req.Plan, registry.TaskID(t))
					}
				}
			}
			if req.Plan == nil && req.Instruction == "" {
				return errors.New("an instruction or --plan is required")
			}

			body, err := readText(cmd.InOrStdin(), text, file)
			if err != nil {
				return err
			}
			req.Text = body

			var (
				resp  pipeline.Response
				runID string
			)
			if local {
				resp, runID, err = runLocal(cmd.Context(), configPath, req)
			} else {
				resp, runID, err = newClient(opts.serverURL).run(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, resp)
			}
			if resp.Failed() {
				return fmt.Errorf("run %s: %s", runID, resp.Error)
			}
			if showPlan {
				fmt.Fprintf(cmd.ErrOrStderr(), "[orchctl] run %s plan: %s\n", runID, strings.Join(resp.Plan.Strings(), " -> "))
			}
			fmt.Fprintln(out, resp.FinalResult)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "input text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read input text from a file (- for stdin)")
	cmd.Flags().StringSliceVar(&plan, "plan", nil, "comma-separated task ids to run instead of planning")
	cmd.Flags().BoolVar(&showPlan, "show-plan", false, "print the executed plan to stderr")
	cmd.Flags().BoolVar(&local, "local", false, "run in-process instead of calling the server")
	cmd.Flags().StringVar(&configPath, "config", "", "config file for --local (default ~/.config/orchestratord/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

func newTasksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks the server can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(opts.serverURL).tasks(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			for _, t := range resp.Tasks {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check orchestratord server health",
		Long: `Check the health status of the orchestratord HTTP server.

Examples:
  # Check health
  orchctl health

  # Check health on a different server
  orchctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(opts.serverURL).health(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", opts.serverURL)
			return nil
		},
	}
}

// readText returns the input text from --text, --file or stdin.
func readText(stdin io.Reader, text, file string) (string, error) {
	switch file {
	case "":
		return text, nil
	case "-":
		content, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	default:
		content, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", file, err)
		}
		return string(content), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the orchctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "orchctl %s\n", version)
		},
	}
}
