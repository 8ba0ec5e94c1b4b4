package main

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ctirelay/relay/internal/chatsource"
	"github.com/ctirelay/relay/internal/config"
	"github.com/ctirelay/relay/internal/cursor"
	"github.com/ctirelay/relay/internal/discover"
)

// discoverCredentials mirrors config's chatCredentials: discover needs the
// same two env vars even when the loaded config declares no channels at
// all, since discovery is how a channel_id gets into the config in the
// first place.
type discoverCredentials struct {
	APIID   int    `env:"RELAY_CHAT_API_ID"`
	APIHash string `env:"RELAY_CHAT_API_HASH"`
}

func newDiscoverCmd() *cobra.Command {
	var wantDiff, wantGenerate bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate chat channels reachable from the configured session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), wantDiff, wantGenerate)
		},
	}
	cmd.Flags().BoolVar(&wantDiff, "diff", false, "compare discovered channels against the loaded config")
	cmd.Flags().BoolVar(&wantGenerate, "generate", false, "print a generated config skeleton")
	return cmd
}

func runDiscover(ctx context.Context, wantDiff, wantGenerate bool) error {
	var creds discoverCredentials
	if err := env.Parse(&creds); err != nil {
		return fmt.Errorf("parsing chat credentials from environment: %w", err)
	}
	if creds.APIID == 0 || creds.APIHash == "" {
		return fmt.Errorf("RELAY_CHAT_API_ID and RELAY_CHAT_API_HASH must be set to run discover")
	}

	chatStore, err := cursor.NewChatStore(telegramLogDir)
	if err != nil {
		return fmt.Errorf("opening chat cursor store: %w", err)
	}

	// discover never subscribes to any channel: an empty channelIDs list
	// means Source.Start has nothing to poll, which discover never calls.
	client, err := chatsource.NewClient(creds.APIID, creds.APIHash, sessionPath, chatStore, nil)
	if err != nil {
		return fmt.Errorf("building chat client: %w", err)
	}

	var entities []discover.Entity
	runErr := client.Run(ctx, func(runCtx context.Context) error {
		var listErr error
		entities, listErr = discover.List(runCtx, client.API())
		return listErr
	})
	if runErr != nil {
		return fmt.Errorf("listing chat entities: %w", runErr)
	}

	switch {
	case wantDiff:
		return printDiff(entities)
	case wantGenerate:
		return printGenerated(entities)
	default:
		printEntities(entities)
		return nil
	}
}

func printEntities(entities []discover.Entity) {
	for _, e := range entities {
		if e.Username != "" {
			fmt.Printf("%-16s %-40s @%s\n", e.ChannelID, e.Title, e.Username)
		} else {
			fmt.Printf("%-16s %-40s\n", e.ChannelID, e.Title)
		}
	}
}

func printDiff(entities []discover.Entity) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config for diff: %w", err)
	}

	d := discover.Compare(entities, cfg)

	fmt.Println("reachable but not configured:")
	for _, e := range d.Unconfigured {
		fmt.Printf("  %-16s %s\n", e.ChannelID, e.Title)
	}
	fmt.Println("configured but not reachable:")
	for _, id := range d.Unreachable {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// printGenerated writes the discovered skeleton two ways: a YAML preview
// to the terminal for a human to review, and the JSON document itself in
// config.Load's own format, so it can be redirected straight to disk.
func printGenerated(entities []discover.Entity) error {
	skel := discover.GenerateSkeleton(entities)

	preview, err := yaml.Marshal(skel)
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}
	fmt.Println("# preview — review before writing to disk")
	fmt.Print(string(preview))
	fmt.Println()

	data, err := skel.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding generated config: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
