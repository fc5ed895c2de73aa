// Package main provides hwctl, the operator CLI for the homework ledger.
//
// hwctl loads the same configuration as the server (HW_CONFIG plus HW_ env)
// and works on the configured store directly, so it is meant for the sqlite
// and postgres drivers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	app "github.com/okian/homework/internal/app"
	"github.com/okian/homework/internal/config"
	"github.com/okian/homework/pkg/logger"
)

const defaultLeaderboardLimit = 10

// opener builds and starts the service a command runs against.
type opener func(ctx context.Context) (*app.Service, error)

func main() {
	if err := newRootCmd(openConfigured).Execute(); err != nil {
		os.Exit(1)
	}
}

func openConfigured(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	_ = logger.SetLevelString(cfg.LogLevel)

	svc := app.New(app.WithConfig(cfg), app.WithLogger(logger.Named("hwctl")))
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hwctl",
		Short:        "Operate the homework completion and reward ledger",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newLinkCmd(open))
	rootCmd.AddCommand(newProgressCmd(open))
	rootCmd.AddCommand(newDistributeCmd(open))
	rootCmd.AddCommand(newClaimCmd(open))
	rootCmd.AddCommand(newPendingCmd(open))
	rootCmd.AddCommand(newLeaderboardCmd(open))

	return rootCmd
}

// withService opens the service for one command and prints its result as JSON.
func withService(open opener, run func(ctx context.Context, svc *app.Service) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		svc, err := open(ctx)
		if err != nil {
			return fmt.Errorf("open service: %w", err)
		}
		defer svc.Stop()

		out, err := run(ctx, svc)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

func newLinkCmd(open opener) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "link <participant> <username>",
		Short: "Link a participant address to a repository username",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&token, "token", "", "external access token to store with the link")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.LinkIdentity(ctx, args[0], args[1], token)
		})(c, args)
	}
	return cmd
}

func newProgressCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <participant>",
		Short: "Show completed weeks, rewards and pending amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Progress(ctx, args[0])
			})(c, args)
		},
	}
}

func newDistributeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "distribute <participant> <week>",
		Short: "Pay one completed week",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			week, err := parseWeek(args[1])
			if err != nil {
				return err
			}
			return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Distribute(ctx, args[0], week)
			})(c, args)
		},
	}
}

func newClaimCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <participant>",
		Short: "Pay every completed, unrewarded week in one transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
				return svc.Claim(ctx, args[0])
			})(c, args)
		},
	}
}

type pendingOutput struct {
	Week         int      `json:"week"`
	Participants []string `json:"participants"`
}

func newPendingCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <week>",
		Short: "List participants owed the reward of a week",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			week, err := parseWeek(args[0])
			if err != nil {
				return err
			}
			return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
				ps, err := svc.PendingParticipants(ctx, week)
				if err != nil {
					return nil, err
				}
				if ps == nil {
					ps = []string{}
				}
				return pendingOutput{Week: week, Participants: ps}, nil
			})(c, args)
		},
	}
}

func newLeaderboardCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top participants by completed weeks",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLeaderboardLimit, "number of entries")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if limit <= 0 {
			return fmt.Errorf("limit must be positive, got %d", limit)
		}
		return withService(open, func(ctx context.Context, svc *app.Service) (any, error) {
			return svc.TopN(ctx, limit)
		})(c, args)
	}
	return cmd
}

func parseWeek(s string) (int, error) {
	week, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("week must be a number: %w", err)
	}
	return week, nil
}
