package sonos

import (
	"encoding/xml"
	"strings"

	"github.com/tessro/marquee/internal/merr"
)

// ZoneMember is one device inside a zone group. Invisible members are
// auxiliary units with no renderer (bridges, signal boosters, the hidden
// half of a stereo pair).
type ZoneMember struct {
	UUID      string
	Addr      string
	Name      string
	Invisible bool
}

// ZoneGroup is a group of speakers with an elected coordinator.
type ZoneGroup struct {
	ID              string
	CoordinatorUUID string
	Members         []ZoneMember
}

// Coordinator returns the group's coordinator member, if present.
func (g ZoneGroup) Coordinator() (ZoneMember, bool) {
	for _, m := range g.Members {
		if m.UUID == g.CoordinatorUUID {
			return m, true
		}
	}
	return ZoneMember{}, false
}

// MemberNames returns the ordered names of the group's visible members.
func (g ZoneGroup) MemberNames() []string {
	var names []string
	for _, m := range g.Members {
		if !m.Invisible && m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}

// Playable reports whether the group has any renderer-capable member.
// Groups made entirely of auxiliary hardware are skipped during
// coordinator resolution.
func (g ZoneGroup) Playable() bool {
	for _, m := range g.Members {
		if !m.Invisible {
			return true
		}
	}
	return false
}

// parseZoneGroupState parses the (already HTML-unescaped) ZoneGroupState
// XML into groups.
func parseZoneGroupState(xmlData string) ([]ZoneGroup, error) {
	type zoneMemberXML struct {
		UUID      string `xml:"UUID,attr"`
		Location  string `xml:"Location,attr"`
		ZoneName  string `xml:"ZoneName,attr"`
		Invisible string `xml:"Invisible,attr"`
	}

	type zoneGroupXML struct {
		Coordinator string          `xml:"Coordinator,attr"`
		ID          string          `xml:"ID,attr"`
		Members     []zoneMemberXML `xml:"ZoneGroupMember"`
	}

	type zoneGroupStateXML struct {
		ZoneGroups struct {
			Groups []zoneGroupXML `xml:"ZoneGroup"`
		} `xml:"ZoneGroups"`
		// Some firmware versions put ZoneGroup directly under the root.
		Groups []zoneGroupXML `xml:"ZoneGroup"`
	}

	var state zoneGroupStateXML
	if err := xml.Unmarshal([]byte(xmlData), &state); err != nil {
		return nil, merr.Protocol("parse zone group state", err)
	}

	raw := state.ZoneGroups.Groups
	if len(raw) == 0 {
		raw = state.Groups
	}

	var groups []ZoneGroup
	for _, zg := range raw {
		group := ZoneGroup{
			ID:              zg.ID,
			CoordinatorUUID: zg.Coordinator,
		}
		for _, m := range zg.Members {
			group.Members = append(group.Members, ZoneMember{
				UUID:      m.UUID,
				Addr:      addrFromLocation(m.Location),
				Name:      m.ZoneName,
				Invisible: m.Invisible == "1",
			})
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// addrFromLocation extracts the host IP from a member Location URL.
func addrFromLocation(location string) string {
	if location == "" {
		return ""
	}
	parts := strings.Split(location, "//")
	if len(parts) < 2 {
		return ""
	}
	hostPort := strings.Split(parts[1], "/")[0]
	return strings.Split(hostPort, ":")[0]
}
