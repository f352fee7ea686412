package sonos

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/transport"
)

// GroupCoordinator is the resolved leader of a playable speaker group.
type GroupCoordinator struct {
	Base    string // HTTP base URL, e.g. http://10.0.1.15:1400
	UUID    string
	Name    string
	Members []string // ordered sibling names, coordinator included
}

// Locator resolves which discovered host is the group coordinator worth
// watching. Two strategies, selectable by config name:
//
//   - "topology": fetch topology first, then verify the claimed
//     coordinator actually has live media before trusting it. Favors
//     hosts that already expose a friendly name.
//   - "media": fetch live media first, extract the embedded RINCON
//     identifier from the media URI, then confirm it against a topology
//     member. Useful when topology data is structurally unreliable.
//
// Both treat "no coordinator found" as a normal outcome: (nil, nil).
type Locator struct {
	client   *Client
	strategy string
	logger   *zap.Logger
}

// NewLocator creates a Locator. Unknown strategy names fall back to
// topology-first.
func NewLocator(client *Client, strategy string, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{client: client, strategy: strategy, logger: logger}
}

// Locate resolves a coordinator among the discovered hosts.
func (l *Locator) Locate(ctx context.Context, hosts []transport.Host) (*GroupCoordinator, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	if l.strategy == "media" {
		return l.locateByMedia(ctx, hosts)
	}
	return l.locateByTopology(ctx, hosts)
}

// locateByTopology walks the zone topology and returns the first playable
// group whose coordinator has live media loaded.
func (l *Locator) locateByTopology(ctx context.Context, hosts []transport.Host) (*GroupCoordinator, error) {
	groups, answered, err := l.fetchTopology(ctx, hosts)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if !g.Playable() {
			continue
		}
		coord, ok := g.Coordinator()
		if !ok || coord.Invisible {
			continue
		}

		coordBase := memberBase(coord, answered)

		// Trust the claimed coordinator only if it has live media.
		pos, err := l.client.GetPositionInfo(ctx, coordBase)
		if err != nil {
			l.logger.Debug("coordinator candidate unreachable",
				zap.String("name", coord.Name), zap.Error(err))
			continue
		}
		track := parseTrackMetadata(pos.TrackMetaData, pos.TrackURI, coordBase)
		if pos.TrackURI == "" && track == nil {
			continue
		}

		return &GroupCoordinator{
			Base:    coordBase,
			UUID:    coord.UUID,
			Name:    coord.Name,
			Members: g.MemberNames(),
		}, nil
	}

	return nil, nil
}

// locateByMedia asks each host what it is playing, extracts the RINCON
// identifier embedded in the media URI, and confirms it against the
// topology.
func (l *Locator) locateByMedia(ctx context.Context, hosts []transport.Host) (*GroupCoordinator, error) {
	var rincon string
	for _, h := range hosts {
		media, err := l.client.GetMediaInfo(ctx, h.BaseURL())
		if err != nil {
			continue
		}
		if id := extractRincon(media.CurrentURI); id != "" {
			rincon = id
			break
		}
	}
	if rincon == "" {
		return nil, nil
	}

	groups, answered, err := l.fetchTopology(ctx, hosts)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if !g.Playable() {
			continue
		}
		for _, m := range g.Members {
			if m.UUID != rincon || m.Invisible {
				continue
			}
			return &GroupCoordinator{
				Base:    memberBase(m, answered),
				UUID:    m.UUID,
				Name:    m.Name,
				Members: g.MemberNames(),
			}, nil
		}
	}

	return nil, nil
}

// fetchTopology gets the zone group state from the first host that
// answers. Every host carries the full topology, so one answer is enough.
func (l *Locator) fetchTopology(ctx context.Context, hosts []transport.Host) ([]ZoneGroup, transport.Host, error) {
	var lastErr error
	for _, h := range hosts {
		groups, err := l.client.GetZoneGroupState(ctx, h.BaseURL())
		if err != nil {
			lastErr = err
			continue
		}
		return groups, h, nil
	}
	return nil, transport.Host{}, lastErr
}

// memberBase builds a member's control base URL. Devices in one
// household serve control on the same port, so the answering host's port
// carries over to siblings.
func memberBase(m ZoneMember, answered transport.Host) string {
	if m.Addr == "" {
		return answered.BaseURL()
	}
	port := answered.Port
	if port == 0 {
		port = 1400
	}
	return fmt.Sprintf("http://%s:%d", m.Addr, port)
}
