package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive channel setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	var selected []string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().
			Title("Which channels do you want to set up?").
			Options(
				huh.NewOption("DingTalk (custom robot)", "dingtalk"),
				huh.NewOption("Lark / Feishu (event subscription)", "lark"),
			).
			Value(&selected),
	)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(selected) == 0 {
		fmt.Println("Nothing selected, config unchanged.")
		return
	}

	for _, channel := range selected {
		switch channel {
		case "dingtalk":
			if err := onboardDingTalk(cfg); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		case "lark":
			if err := onboardLark(cfg); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved %s. Start the gateway with: clawbridge gateway\n", cfgPath)
}

func required(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func onboardDingTalk(cfg *config.Config) error {
	ch := cfg.Channels.DingTalk
	if ch == nil {
		ch = &config.DingTalkConfig{}
	}

	var allowFrom string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("DingTalk robot access token").
			Description("The access_token query value of the custom robot webhook URL.").
			Value(&ch.AccessToken).
			Validate(required("access token")),
		huh.NewInput().
			Title("Outgoing webhook token (optional)").
			Description("Shared token from the robot's outgoing-webhook settings; requests without it are rejected when set.").
			Value(&ch.VerificationToken),
		huh.NewInput().
			Title("Group allowlist").
			Description("Comma-separated sender ids or names. Leave empty to configure later; * allows everyone.").
			Value(&allowFrom),
	))
	if err := form.Run(); err != nil {
		return err
	}

	ch.AccessToken = strings.TrimSpace(ch.AccessToken)
	ch.VerificationToken = strings.TrimSpace(ch.VerificationToken)
	if entries := splitList(allowFrom); len(entries) > 0 {
		ch.GroupAllowFrom = entries
	}
	cfg.Channels.DingTalk = ch
	return nil
}

func onboardLark(cfg *config.Config) error {
	ch := cfg.Channels.Lark
	if ch == nil {
		ch = &config.LarkConfig{}
	}

	dmPolicy := ch.DMPolicy
	if dmPolicy == "" {
		dmPolicy = "pairing"
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Lark app id").
			Value(&ch.AppID).
			Validate(required("app id")),
		huh.NewInput().
			Title("Lark app secret").
			EchoMode(huh.EchoModePassword).
			Value(&ch.AppSecret).
			Validate(required("app secret")),
		huh.NewInput().
			Title("Event verification token").
			Description("From the app's event subscription settings. The webhook refuses to run without it.").
			Value(&ch.VerificationToken).
			Validate(required("verification token")),
		huh.NewSelect[string]().
			Title("Direct message policy").
			Options(
				huh.NewOption("Pairing (unknown senders get a pairing code)", "pairing"),
				huh.NewOption("Allowlist only", "allowlist"),
				huh.NewOption("Open (everyone)", "open"),
				huh.NewOption("Disabled", "disabled"),
			).
			Value(&dmPolicy),
	))
	if err := form.Run(); err != nil {
		return err
	}

	ch.AppID = strings.TrimSpace(ch.AppID)
	ch.AppSecret = strings.TrimSpace(ch.AppSecret)
	ch.VerificationToken = strings.TrimSpace(ch.VerificationToken)
	ch.DMPolicy = dmPolicy
	if dmPolicy == "open" && !containsWildcard(ch.AllowFrom) {
		// The schema requires an explicit wildcard for open DMs.
		ch.AllowFrom = append(ch.AllowFrom, "*")
	}
	cfg.Channels.Lark = ch
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsWildcard(entries []string) bool {
	for _, e := range entries {
		if strings.TrimSpace(e) == "*" {
			return true
		}
	}
	return false
}
