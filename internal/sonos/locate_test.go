package sonos

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tessro/marquee/internal/transport"
)

// soapDevice fakes a zone player's control endpoints.
type soapDevice struct {
	topology string // raw (unescaped) ZoneGroupState XML
	trackURI string
	metadata string
	mediaURI string
}

func (d *soapDevice) handler(w http.ResponseWriter, r *http.Request) {
	action := r.Header.Get("SOAPAction")
	switch {
	case strings.Contains(action, "GetZoneGroupState"):
		fmt.Fprintf(w, `<s:Envelope><s:Body><GetZoneGroupStateResponse><ZoneGroupState>%s</ZoneGroupState></GetZoneGroupStateResponse></s:Body></s:Envelope>`,
			html.EscapeString(d.topology))
	case strings.Contains(action, "GetPositionInfo"):
		fmt.Fprintf(w, `<s:Envelope><s:Body><GetPositionInfoResponse><Track>1</Track><TrackDuration>0:03:27</TrackDuration><TrackMetaData>%s</TrackMetaData><TrackURI>%s</TrackURI><RelTime>0:01:10</RelTime></GetPositionInfoResponse></s:Body></s:Envelope>`,
			html.EscapeString(d.metadata), d.trackURI)
	case strings.Contains(action, "GetMediaInfo"):
		fmt.Fprintf(w, `<s:Envelope><s:Body><GetMediaInfoResponse><NrTracks>1</NrTracks><CurrentURI>%s</CurrentURI></GetMediaInfoResponse></s:Body></s:Envelope>`,
			d.mediaURI)
	case strings.Contains(action, "GetTransportInfo"):
		fmt.Fprint(w, `<s:Envelope><s:Body><GetTransportInfoResponse><CurrentTransportState>PLAYING</CurrentTransportState></GetTransportInfoResponse></s:Body></s:Envelope>`)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// startDevice serves the fake and wires its topology so the coordinator
// member resolves back to the fake's own address and port.
func startDevice(t *testing.T, d *soapDevice, uuid, name string) transport.Host {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(d.handler))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	d.topology = `<ZoneGroupState><ZoneGroups>` +
		`<ZoneGroup Coordinator="` + uuid + `" ID="` + uuid + `:1">` +
		`<ZoneGroupMember UUID="` + uuid + `" Location="` + srv.URL + `/xml/desc.xml" ZoneName="` + name + `"/>` +
		`</ZoneGroup></ZoneGroups></ZoneGroupState>`

	port, _ := strconv.Atoi(u.Port())
	return transport.Host{Addr: u.Hostname(), Port: port, Location: srv.URL + "/xml/desc.xml"}
}

func TestLocateByTopology(t *testing.T) {
	d := &soapDevice{
		trackURI: "x-sonos-spotify:spotify%3atrack%3aabc?sid=9",
		metadata: sampleDIDL,
	}
	host := startDevice(t, d, "RINCON_A", "Living Room")

	client := NewClient(transport.NewAdapter(), time.Second)
	loc := NewLocator(client, "topology", nil)

	coord, err := loc.Locate(context.Background(), []transport.Host{host})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if coord == nil {
		t.Fatal("Locate() = nil, want coordinator with live media")
	}
	if coord.Name != "Living Room" {
		t.Errorf("Name = %q, want Living Room", coord.Name)
	}
	if coord.UUID != "RINCON_A" {
		t.Errorf("UUID = %q, want RINCON_A", coord.UUID)
	}
	if coord.Base != host.BaseURL() {
		t.Errorf("Base = %q, want %q", coord.Base, host.BaseURL())
	}
}

func TestLocateByTopologySkipsIdleCoordinator(t *testing.T) {
	// No URI and no metadata: the claimed coordinator has no live media
	// and must not be trusted.
	d := &soapDevice{trackURI: "", metadata: ""}
	host := startDevice(t, d, "RINCON_A", "Living Room")

	client := NewClient(transport.NewAdapter(), time.Second)
	loc := NewLocator(client, "topology", nil)

	coord, err := loc.Locate(context.Background(), []transport.Host{host})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if coord != nil {
		t.Errorf("Locate() = %+v, want nil for idle coordinator", coord)
	}
}

func TestLocateByMedia(t *testing.T) {
	d := &soapDevice{mediaURI: "x-rincon-queue:RINCON_A#0"}
	host := startDevice(t, d, "RINCON_A", "Living Room")

	client := NewClient(transport.NewAdapter(), time.Second)
	loc := NewLocator(client, "media", nil)

	coord, err := loc.Locate(context.Background(), []transport.Host{host})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if coord == nil {
		t.Fatal("Locate() = nil, want coordinator confirmed by topology")
	}
	if coord.UUID != "RINCON_A" {
		t.Errorf("UUID = %q, want RINCON_A", coord.UUID)
	}
	if coord.Name != "Living Room" {
		t.Errorf("Name = %q, want Living Room", coord.Name)
	}
}

func TestLocateByMediaNoRincon(t *testing.T) {
	d := &soapDevice{mediaURI: "spotify:track:no-embedded-id"}
	host := startDevice(t, d, "RINCON_A", "Living Room")

	client := NewClient(transport.NewAdapter(), time.Second)
	loc := NewLocator(client, "media", nil)

	coord, err := loc.Locate(context.Background(), []transport.Host{host})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if coord != nil {
		t.Errorf("Locate() = %+v, want nil when no RINCON id embedded", coord)
	}
}

func TestLocateNoHostsIsNormal(t *testing.T) {
	client := NewClient(transport.NewAdapter(), time.Second)
	loc := NewLocator(client, "topology", nil)

	coord, err := loc.Locate(context.Background(), nil)
	if err != nil {
		t.Errorf("Locate() with no hosts errored: %v", err)
	}
	if coord != nil {
		t.Errorf("Locate() with no hosts = %+v, want nil", coord)
	}
}

func TestClientGetPositionInfo(t *testing.T) {
	d := &soapDevice{
		trackURI: "x-sonos-spotify:spotify%3atrack%3aabc?sid=9",
		metadata: sampleDIDL,
	}
	host := startDevice(t, d, "RINCON_A", "Living Room")

	client := NewClient(transport.NewAdapter(), time.Second)
	pos, err := client.GetPositionInfo(context.Background(), host.BaseURL())
	if err != nil {
		t.Fatalf("GetPositionInfo() error: %v", err)
	}
	if pos.TrackURI != d.trackURI {
		t.Errorf("TrackURI = %q, want %q", pos.TrackURI, d.trackURI)
	}
	if pos.TrackDuration != "0:03:27" {
		t.Errorf("TrackDuration = %q", pos.TrackDuration)
	}
	if pos.RelTime != "0:01:10" {
		t.Errorf("RelTime = %q", pos.RelTime)
	}

	ti, err := client.GetTransportInfo(context.Background(), host.BaseURL())
	if err != nil {
		t.Fatalf("GetTransportInfo() error: %v", err)
	}
	if ti.CurrentTransportState != "PLAYING" {
		t.Errorf("CurrentTransportState = %q, want PLAYING", ti.CurrentTransportState)
	}
}
