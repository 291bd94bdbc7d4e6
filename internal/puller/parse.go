package puller

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PluralKit/avatars/internal/faults"
)

// allowedHosts is the fixed set of source CDN hostnames we will fetch from.
var allowedHosts = map[string]struct{}{
	"media.discordapp.net": {},
	"cdn.discordapp.com":   {},
}

// ParsedSource is a validated, normalized source URL. AttachmentID doubles as
// the dedup key checked before any fetch happens.
type ParsedSource struct {
	ChannelID    uint64
	AttachmentID uint64
	Filename     string
	FullURL      string
}

// ParseURL validates a raw source URL: https scheme, allow-listed host, and a
// path of exactly four segments where the middle two are numeric ids. Every
// deviation collapses into the single invalid-source classification.
func ParseURL(raw string) (*ParsedSource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, faults.InvalidSourceErr()
	}
	if u.Scheme != "https" {
		return nil, faults.InvalidSourceErr()
	}
	if _, ok := allowedHosts[u.Hostname()]; !ok {
		return nil, faults.InvalidSourceErr()
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 4 {
		return nil, faults.InvalidSourceErr()
	}

	channelID, err := strconv.ParseUint(segments[1], 10, 64)
	if err != nil {
		return nil, faults.InvalidSourceErr()
	}
	attachmentID, err := strconv.ParseUint(segments[2], 10, 64)
	if err != nil {
		return nil, faults.InvalidSourceErr()
	}

	return &ParsedSource{
		ChannelID:    channelID,
		AttachmentID: attachmentID,
		Filename:     segments[3],
		FullURL:      u.String(),
	}, nil
}
