package sonos

import (
	"encoding/xml"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tessro/marquee/internal/core"
)

// notImplemented is the literal sentinel some renderers return instead of
// omitting a field. It is treated as absent everywhere.
const notImplemented = "NOT_IMPLEMENTED"

// DIDLLite represents DIDL-Lite metadata format used by UPnP.
type DIDLLite struct {
	XMLName xml.Name   `xml:"urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/ DIDL-Lite"`
	Items   []DIDLItem `xml:"urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/ item"`
}

// DIDLItem represents a single item in DIDL-Lite metadata.
type DIDLItem struct {
	ID string `xml:"id,attr"`
	// Dublin Core namespace elements
	Title   string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	// UPnP namespace elements
	Album       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ album"`
	AlbumArtURI string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ albumArtURI"`
	Class       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ class"`
	// Default namespace
	Res string `xml:"res"`
}

// parseTrackMetadata parses a DIDL-Lite blob into a core.Track. Malformed
// or empty metadata yields nil, never an error. base is the device's HTTP
// base URL, used to absolutize relative artwork paths.
func parseTrackMetadata(metadata, uri, base string) *core.Track {
	if metadata == "" || metadata == notImplemented {
		return nil
	}
	if uri == notImplemented {
		uri = ""
	}

	metadata = html.UnescapeString(metadata)

	// Namespace-aware parsing first
	var didl DIDLLite
	if err := xml.Unmarshal([]byte(metadata), &didl); err == nil && len(didl.Items) > 0 {
		item := didl.Items[0]
		if item.Title != "" && item.Title != notImplemented {
			return &core.Track{
				ID:         itemID(item.ID, uri),
				URI:        uri,
				Title:      item.Title,
				Artist:     cleanField(item.Creator),
				Artists:    splitArtists(cleanField(item.Creator)),
				Album:      cleanField(item.Album),
				ArtworkURL: absolutizeArtwork(cleanField(item.AlbumArtURI), base),
			}
		}
	}

	// Fallback: extract elements with regex (handles any namespace prefix)
	title := extractXMLElement(metadata, "title")
	if title == "" || title == notImplemented {
		return nil
	}
	creator := cleanField(extractXMLElement(metadata, "creator"))
	album := cleanField(extractXMLElement(metadata, "album"))
	art := cleanField(extractXMLElement(metadata, "albumArtURI"))

	return &core.Track{
		ID:         itemID("", uri),
		URI:        uri,
		Title:      title,
		Artist:     creator,
		Artists:    splitArtists(creator),
		Album:      album,
		ArtworkURL: absolutizeArtwork(art, base),
	}
}

// parseTrackDuration converts "H:MM:SS", "MM:SS" and fractional variants
// ("0:03:27.331") to a duration. Malformed input yields zero, never an
// error; a missing duration is better than a failed poll.
func parseTrackDuration(s string) time.Duration {
	if s == "" || s == notImplemented {
		return 0
	}

	var millis time.Duration
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac := s[i+1:]
		s = s[:i]
		// pad/truncate to milliseconds
		for len(frac) < 3 {
			frac += "0"
		}
		if v, err := strconv.Atoi(frac[:3]); err == nil {
			millis = time.Duration(v) * time.Millisecond
		}
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var total int
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return 0
		}
		total = total*60 + v
	}

	return time.Duration(total)*time.Second + millis
}

// extractXMLElement extracts content from an XML element, ignoring namespace prefixes.
func extractXMLElement(xmlData, localName string) string {
	re := regexp.MustCompile(`<(?:\w+:)?` + localName + `[^>]*>([^<]*)</(?:\w+:)?` + localName + `>`)
	matches := re.FindStringSubmatch(xmlData)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func cleanField(s string) string {
	if s == notImplemented {
		return ""
	}
	return s
}

// itemID picks a stable track identity: the DIDL item id when present,
// otherwise the transport URI.
func itemID(id, uri string) string {
	if id != "" && id != "-1" {
		return id
	}
	return uri
}

// absolutizeArtwork prefixes device-relative artwork paths with the
// device's HTTP base so display clients can fetch them.
func absolutizeArtwork(art, base string) string {
	if art == "" {
		return ""
	}
	if strings.HasPrefix(art, "http://") || strings.HasPrefix(art, "https://") {
		return art
	}
	if base == "" {
		return art
	}
	if !strings.HasPrefix(art, "/") {
		art = "/" + art
	}
	return base + art
}

// splitArtists splits a creator string into individual artists.
func splitArtists(creator string) []string {
	if creator == "" {
		return nil
	}

	for _, sep := range []string{" & ", ", ", " feat. ", " ft. ", " featuring "} {
		if strings.Contains(creator, sep) {
			parts := strings.Split(creator, sep)
			var artists []string
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					artists = append(artists, p)
				}
			}
			return artists
		}
	}

	return []string{creator}
}

var rinconRe = regexp.MustCompile(`RINCON_[0-9A-Za-z]+`)

// extractRincon pulls the embedded RINCON identifier out of a transport
// URI, e.g. "x-rincon-queue:RINCON_949F3EC2E15A01400#0". Empty when the
// URI carries none.
func extractRincon(uri string) string {
	return rinconRe.FindString(uri)
}
