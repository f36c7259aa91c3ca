package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/ihi-server/ihi/internal/config"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/spf13/cobra"
)

func accountCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage player accounts in the configured store",
	}
	cmd.AddCommand(accountCreateCmd(configPath), accountTicketCmd(configPath))
	return cmd
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, configPath string, fn func(store.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverMemory {
		return fmt.Errorf("store.driver is memory; accounts would not outlive this command")
	}
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func accountCreateCmd(configPath *string) *cobra.Command {
	var a player.Account

	cmd := &cobra.Command{
		Use:   "create --id ID --name NAME",
		Short: "Register a new player",
		Long: `Register a new player.

Examples:
  ihi account create --id 1 --name alice --credits 1500
  ihi account create --id 2 --name bob --motto "hi there"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.ID == 0 || a.Name == "" {
				return fmt.Errorf("--id and --name are required")
			}
			return withStore(cmd.Context(), *configPath, func(st store.Store) error {
				if err := player.Register(cmd.Context(), st, a); err != nil {
					return err
				}
				success("Registered player %d (%s)", a.ID, a.Name)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&a.ID, "id", 0, "Player id")
	cmd.Flags().StringVar(&a.Name, "name", "", "Username")
	cmd.Flags().Int32Var(&a.Credits, "credits", 0, "Starting credits")
	cmd.Flags().StringVar(&a.Figure.Look, "figure", "", "Figure look string")
	cmd.Flags().BoolVar(&a.Figure.Male, "male", true, "Male figure")
	cmd.Flags().StringVar(&a.Motto, "motto", "", "Motto")

	return cmd
}

func accountTicketCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket ID [TICKET]",
		Short: "Issue a single sign-on ticket",
		Long: `Issue a single sign-on ticket for a player. A random ticket is
generated unless one is given. The ticket is consumed by the first login.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid player id %q", args[0])
			}
			ticket := uuid.NewString()
			if len(args) == 2 {
				ticket = args[1]
			}

			ctx := cmd.Context()
			return withStore(ctx, *configPath, func(st store.Store) error {
				p, err := player.Load(ctx, uint32(id), player.Deps{Store: st})
				if err != nil {
					return err
				}
				if err := p.SetSSOTicket(ctx, ticket); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ticket)
				return nil
			})
		},
	}
	return cmd
}
