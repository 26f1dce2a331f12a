package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect channel accounts",
	}
	cmd.AddCommand(channelsStatusCmd(), channelsProbeCmd(), channelsSendCmd())
	return cmd
}

func channelsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured channel accounts",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			for _, p := range buildPlugins() {
				ids := p.Config.ListAccountIDs(cfg)
				if len(ids) == 0 {
					fmt.Printf("%s: not configured\n", p.Meta.ID)
					continue
				}
				for _, id := range ids {
					info := p.Config.DescribeAccount(cfg, id)
					state := "ready"
					if !info.Enabled {
						state = "disabled"
					} else if !info.Configured {
						state = "not configured (" + p.Config.UnconfiguredReason + ")"
					}
					fmt.Printf("%s/%s  %-12s %s\n", p.Meta.ID, info.AccountID, state, info.WebhookPath)
				}
			}
		},
	}
}

func channelsProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe channel account credentials",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			failed := false
			for _, p := range buildPlugins() {
				for _, id := range p.Config.ListAccountIDs(cfg) {
					if err := p.Status.Probe(ctx, cfg, id); err != nil {
						failed = true
						fmt.Printf("%s/%s: FAIL (%v)\n", p.Meta.ID, id, err)
					} else {
						fmt.Printf("%s/%s: ok\n", p.Meta.ID, id)
					}
				}
			}
			if failed {
				os.Exit(1)
			}
		},
	}
}

func channelsSendCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "send <channel> <target> <text>",
		Short: "Send a test message through a channel",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			var found bool
			for _, p := range buildPlugins() {
				if p.Meta.ID != args[0] && !hasAlias(p.Meta.Aliases, args[0]) {
					continue
				}
				found = true

				target, ok := p.Messaging.NormalizeTarget(args[1])
				if !ok {
					fmt.Fprintf(os.Stderr, "invalid target %q, expected %s\n", args[1], p.Messaging.TargetHint)
					os.Exit(1)
				}

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				result, err := p.Outbound.SendText(ctx, cfg, accountID, target, args[2])
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(1)
				}
				if result.MessageID != "" {
					fmt.Printf("Sent (%s).\n", result.MessageID)
				} else {
					fmt.Println("Sent.")
				}
			}
			if !found {
				fmt.Fprintf(os.Stderr, "unknown channel %q\n", args[0])
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "default", "account id")
	return cmd
}

func hasAlias(aliases []string, name string) bool {
	for _, a := range aliases {
		if a == name {
			return true
		}
	}
	return false
}
