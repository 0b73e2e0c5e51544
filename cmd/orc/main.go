// Package main is the orc command-line front-end: a thin spf13/cobra
// wrapper over internal/engine, following the main()/run() split in the
// teacher's cmd/semspec/main.go. Argument parsing and output formatting
// live here; every decision about workflow semantics lives in the engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/orc/internal/cli"
	"github.com/c360studio/orc/internal/config"
	"github.com/c360studio/orc/internal/engine"
	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/store"

	// Profiles are plugins outside this module's boundary; a real
	// deployment registers its own by blank-importing it here, the same
	// way the teacher wires optional processors into its agent binary.
	_ "github.com/c360studio/orc/internal/provider" // registers the builtin skip/manual approvers
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	err := run(os.Args[1:])
	os.Exit(cli.ExitCodeFor(err))
}

func run(args []string) error {
	var (
		sessionsDir string
		configPath  string
		profileKey  string
		contextKVs  []string
		feedback    string
	)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rootCmd := &cobra.Command{
		Use:           "orc",
		Short:         "Resumable, file-materialized AI code-generation workflow orchestrator",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&sessionsDir, "sessions-dir", ".orc/sessions", "root directory for session state")

	newEngine := func() (*engine.Engine, error) {
		if configPath == "" {
			return nil, &model.ConfigurationError{Reason: "--config is required"}
		}
		doc, err := config.Load(configPath)
		if err != nil {
			return nil, &model.ConfigurationError{Reason: err.Error()}
		}
		st := store.New(sessionsDir)
		return engine.New(st, &doc.Workflow, logger, nil), nil
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Start a new workflow session",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			ctxMap, err := parseContext(contextKVs)
			if err != nil {
				return &model.ConfigurationError{Reason: err.Error()}
			}
			state, err := e.InitializeRun(cmd.Context(), engine.InitOptions{
				ProfileKey: profileKey,
				Context:    ctxMap,
			})
			if err != nil {
				return err
			}
			cli.RenderState(os.Stdout, state)
			return nil
		},
	}
	initCmd.Flags().StringVar(&profileKey, "profile", "", "registered profile key (required)")
	initCmd.Flags().StringArrayVar(&contextKVs, "context", nil, "context field as key=value, repeatable")
	initCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	_ = initCmd.MarkFlagRequired("profile")
	_ = initCmd.MarkFlagRequired("config")

	commandRunner := func(cmd model.Command) func(*cobra.Command, []string) error {
		return func(cc *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			sessionID := args[0]
			state, err := e.Execute(cc.Context(), sessionID, cmd, feedback)
			if err != nil {
				return err
			}
			cli.RenderState(os.Stdout, state)
			return nil
		}
	}

	approveCmd := &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve the pending gate, or retry after a provider error",
		Args:  cobra.ExactArgs(1),
		RunE:  commandRunner(model.CommandApprove),
	}
	approveCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	_ = approveCmd.MarkFlagRequired("config")

	rejectCmd := &cobra.Command{
		Use:   "reject <session-id>",
		Short: "Reject the pending gate with feedback",
		Args:  cobra.ExactArgs(1),
		RunE:  commandRunner(model.CommandReject),
	}
	rejectCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	rejectCmd.Flags().StringVar(&feedback, "feedback", "", "feedback recorded for the next retry")
	_ = rejectCmd.MarkFlagRequired("config")
	_ = rejectCmd.MarkFlagRequired("feedback")

	retryCmd := &cobra.Command{
		Use:   "retry <session-id>",
		Short: "Retry after a rejection or a provider error",
		Args:  cobra.ExactArgs(1),
		RunE:  commandRunner(model.CommandRetry),
	}
	retryCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	retryCmd.Flags().StringVar(&feedback, "feedback", "", "optional additional feedback")
	_ = retryCmd.MarkFlagRequired("config")

	cancelCmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Abandon a session",
		Args:  cobra.ExactArgs(1),
		RunE:  commandRunner(model.CommandCancel),
	}
	cancelCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	_ = cancelCmd.MarkFlagRequired("config")

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			state, err := e.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return cli.RenderStateJSON(os.Stdout, state)
			}
			cli.RenderState(os.Stdout, state)
			return nil
		},
	}
	statusCmd.Flags().StringVar(&configPath, "config", "", "path to workflow config YAML (required)")
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "emit the full state as JSON")
	_ = statusCmd.MarkFlagRequired("config")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every known session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := store.New(sessionsDir).List()
			if err != nil {
				return err
			}
			cli.RenderSessionList(os.Stdout, ids)
			return nil
		},
	}

	rootCmd.AddCommand(initCmd, approveCmd, rejectCmd, retryCmd, cancelCmd, statusCmd, listCmd)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// parseContext turns "key=value" pairs into a map, coercing each value to
// bool or int when it unambiguously parses as one so profiles declaring
// FieldBool/FieldInt context fields see the right Go type; everything
// else is kept as a string.
func parseContext(kvs []string) (map[string]any, error) {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --context %q: expected key=value", kv)
		}
		out[key] = coerce(value)
	}
	return out, nil
}

func coerce(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
