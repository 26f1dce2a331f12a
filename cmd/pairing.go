package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/store/sqlite"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage DM pairing requests",
	}
	cmd.AddCommand(pairingListCmd(), pairingApproveCmd())
	return cmd
}

func openPairingStore() (*sqlite.PairingStore, *config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(cfg.StateDir())
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func pairingListCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending pairing requests",
		Run: func(cmd *cobra.Command, args []string) {
			store, _, err := openPairingStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer store.Close()

			requests, err := store.ListRequests(context.Background(), channel)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if len(requests) == 0 {
				fmt.Println("No pending pairing requests.")
				return
			}
			for _, r := range requests {
				name := r.SenderName
				if name == "" {
					name = "-"
				}
				fmt.Printf("%s  %-10s %-32s %-20s %s\n",
					r.Code, r.Channel, r.SenderID, name, r.CreatedAt.Format(time.RFC3339))
			}
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "filter by channel (dingtalk, lark)")
	return cmd
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pairing request by code",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, cfg, err := openPairingStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer store.Close()

			ctx := context.Background()
			request, err := store.Approve(ctx, args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("Approved %s on %s.\n", request.SenderID, request.Channel)

			for _, p := range buildPlugins() {
				if p.Meta.ID != request.Channel || p.NotifyApproval == nil {
					continue
				}
				if err := p.NotifyApproval(ctx, cfg, request.SenderID); err != nil {
					fmt.Fprintf(os.Stderr, "approval notification failed: %v\n", err)
				} else {
					fmt.Println("Sender notified.")
				}
			}
		},
	}
}
