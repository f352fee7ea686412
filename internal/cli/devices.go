package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/marquee/internal/sonos"
	"github.com/tessro/marquee/internal/transport"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Sonos zone players on the local network",
	Long:  `Discovers zone players over SSDP and prints the zone group topology.`,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hosts, err := transport.DiscoverHosts(ctx, transport.Search{
		Target:   sonos.SonosSearchTarget,
		Timeout:  cfg.Sonos.DiscoveryTimeout.Std(),
		MaxHosts: cfg.Sonos.MaxHosts,
	})
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(hosts) == 0 {
		if JSONOutput() {
			return json.NewEncoder(os.Stdout).Encode([]any{})
		}
		fmt.Println("No zone players found")
		return nil
	}

	client := sonos.NewClient(transport.NewAdapter(), cfg.Sonos.Timeout.Std())

	var groups []sonos.ZoneGroup
	for _, h := range hosts {
		gs, err := client.GetZoneGroupState(ctx, h.BaseURL())
		if err != nil {
			if Verbose() {
				fmt.Fprintf(os.Stderr, "%s: %v\n", h.Addr, err)
			}
			continue
		}
		groups = gs
		break
	}
	if groups == nil {
		return fmt.Errorf("no zone player answered a topology request")
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(groups)
	}

	for _, g := range groups {
		if !g.Playable() {
			continue
		}
		name := g.ID
		if coord, ok := g.Coordinator(); ok {
			name = coord.Name
		}
		fmt.Printf("🔊 %s\n", name)
		for _, m := range g.Members {
			if m.Invisible {
				continue
			}
			marker := "  "
			if m.UUID == g.CoordinatorUUID {
				marker = "* "
			}
			fmt.Printf("  %s%s (%s)\n", marker, m.Name, m.Addr)
		}
	}
	return nil
}
