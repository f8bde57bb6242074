package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"gamebridge/internal/app"
	"gamebridge/internal/category"
	"gamebridge/internal/config"
	"gamebridge/internal/registry"
	logx "gamebridge/pkg/logx"
)

type registration struct {
	GuildID   string `json:"guild_id"`
	Category  string `json:"category"`
	ChannelID string `json:"channel_id"`
	Routed    bool   `json:"routed"`

	guild registry.GuildID
}

func newRegistryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the persisted channel registry",
	}

	var cat string
	list := &cobra.Command{
		Use:   "list",
		Short: "Print every registration as JSON",
		Long: `Print every (guild, category, channel) registration as a JSON array.

Registrations whose category is no longer configured are listed with
"routed": false.

Examples:
  gamebridge registry list -c config.yaml
  gamebridge registry list -c config.yaml --category joined | jq '.[].channel_id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, catalog, closeFn, err := openRegistry(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()

			out := registrations(reg.Snapshot(), catalog, cat)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	list.Flags().StringVar(&cat, "category", "", "only list this category")

	check := &cobra.Command{
		Use:   "check",
		Short: "Load the registry and report corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, catalog, closeFn, err := openRegistry(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()

			snap := reg.Snapshot()
			inert := 0
			for _, r := range registrations(snap, catalog, "") {
				if !r.Routed {
					inert++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d registrations in %d guilds (%d with unconfigured categories)\n",
				snap.Len(), len(snap), inert)
			return nil
		},
	}

	cmd.AddCommand(list, check)
	return cmd
}

// openRegistry reads the config without requiring bot credentials.
func openRegistry(cmd *cobra.Command, cfgPath string) (*registry.Service, *category.Catalog, func(), error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, nil, nil, err
	}
	catalog, err := config.Catalog(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logx.NewWriter(cmd.ErrOrStderr(), "warn")
	reg, store, err := app.OpenRegistry(cmd.Context(), cfg, catalog, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, catalog, func() { _ = store.Close() }, nil
}

func registrations(snap registry.Registry, catalog *category.Catalog, only string) []registration {
	out := []registration{}
	for g, cats := range snap {
		for c, ch := range cats {
			if only != "" && string(c) != only {
				continue
			}
			_, known := catalog.Lookup(c)
			out = append(out, registration{
				GuildID:   g.String(),
				Category:  string(c),
				ChannelID: ch.String(),
				Routed:    known,
				guild:     g,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].guild != out[j].guild {
			return out[i].guild < out[j].guild
		}
		return out[i].Category < out[j].Category
	})
	return out
}
