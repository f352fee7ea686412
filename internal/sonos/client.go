package sonos

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/tessro/marquee/internal/merr"
	"github.com/tessro/marquee/internal/transport"
)

const (
	// UPnP service endpoints
	AVTransportEndpoint       = "/MediaRenderer/AVTransport/Control"
	ZoneGroupTopologyEndpoint = "/ZoneGroupTopology/Control"

	// UPnP service URNs
	AVTransportService       = "urn:schemas-upnp-org:service:AVTransport:1"
	ZoneGroupTopologyService = "urn:upnp-org:serviceId:ZoneGroupTopology"

	// SonosSearchTarget is the SSDP search target for zone players.
	SonosSearchTarget = "urn:schemas-upnp-org:device:ZonePlayer:1"
)

// Client makes SOAP requests to zone players over the shared transport
// adapter. It holds no per-device state.
type Client struct {
	adapter *transport.Adapter
	timeout time.Duration
}

// NewClient creates a SOAP client. timeout bounds each call.
func NewClient(adapter *transport.Adapter, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{adapter: adapter, timeout: timeout}
}

// PositionInfo is the parsed GetPositionInfo response.
type PositionInfo struct {
	Track         int
	TrackDuration string
	TrackMetaData string
	TrackURI      string
	RelTime       string
}

// GetPositionInfo returns the coordinator's current track position.
func (c *Client) GetPositionInfo(ctx context.Context, base string) (*PositionInfo, error) {
	resp, err := c.call(ctx, base, AVTransportEndpoint, AVTransportService, "GetPositionInfo",
		map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Body struct {
			Response PositionInfo `xml:"GetPositionInfoResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(resp, &envelope); err != nil {
		return nil, merr.Protocol("parse position info", err)
	}
	return &envelope.Body.Response, nil
}

// TransportInfo is the parsed GetTransportInfo response.
type TransportInfo struct {
	CurrentTransportState string // PLAYING, PAUSED_PLAYBACK, STOPPED, TRANSITIONING
}

// GetTransportInfo returns the coordinator's transport state.
func (c *Client) GetTransportInfo(ctx context.Context, base string) (*TransportInfo, error) {
	resp, err := c.call(ctx, base, AVTransportEndpoint, AVTransportService, "GetTransportInfo",
		map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Body struct {
			Response TransportInfo `xml:"GetTransportInfoResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(resp, &envelope); err != nil {
		return nil, merr.Protocol("parse transport info", err)
	}
	return &envelope.Body.Response, nil
}

// MediaInfo is the parsed GetMediaInfo response.
type MediaInfo struct {
	CurrentURI string
	NrTracks   int
}

// GetMediaInfo returns the device's current transport URI.
func (c *Client) GetMediaInfo(ctx context.Context, base string) (*MediaInfo, error) {
	resp, err := c.call(ctx, base, AVTransportEndpoint, AVTransportService, "GetMediaInfo",
		map[string]string{"InstanceID": "0"})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Body struct {
			Response MediaInfo `xml:"GetMediaInfoResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(resp, &envelope); err != nil {
		return nil, merr.Protocol("parse media info", err)
	}
	return &envelope.Body.Response, nil
}

// GetZoneGroupState fetches and parses the device's zone group topology.
func (c *Client) GetZoneGroupState(ctx context.Context, base string) ([]ZoneGroup, error) {
	resp, err := c.call(ctx, base, ZoneGroupTopologyEndpoint, ZoneGroupTopologyService, "GetZoneGroupState", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Body struct {
			Response struct {
				ZoneGroupState string `xml:"ZoneGroupState"`
			} `xml:"GetZoneGroupStateResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(resp, &envelope); err != nil {
		return nil, merr.Protocol("parse zone group response", err)
	}

	return parseZoneGroupState(html.UnescapeString(envelope.Body.Response.ZoneGroupState))
}

// call makes a SOAP request to a zone player.
func (c *Client) call(ctx context.Context, base, endpoint, service, action string, args map[string]string) ([]byte, error) {
	header := http.Header{}
	header.Set("Content-Type", "text/xml; charset=utf-8")
	header.Set("SOAPAction", fmt.Sprintf("%q", service+"#"+action))

	resp, err := c.adapter.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     base + endpoint,
		Header:  header,
		Body:    buildSOAPBody(service, action, args),
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, merr.Protocol("soap "+action,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(resp.Body, 200)))
	}

	return resp.Body, nil
}

// buildSOAPBody constructs the SOAP envelope.
func buildSOAPBody(service, action string, args map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body>`)
	buf.WriteString(fmt.Sprintf(`<u:%s xmlns:u="%s">`, action, service))

	for k, v := range args {
		buf.WriteString(fmt.Sprintf("<%s>%s</%s>", k, xmlEscape(v), k))
	}

	buf.WriteString(fmt.Sprintf(`</u:%s>`, action))
	buf.WriteString(`</s:Body>`)
	buf.WriteString(`</s:Envelope>`)

	return buf.Bytes()
}

// xmlEscape escapes special XML characters.
func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
