package docname

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forPelevin/ytscribe/internal/types"
)

type Naming string

const (
	// NamingID keys documents by video id; titles live only in the header.
	NamingID Naming = "id"
	// NamingTitle keys documents by sanitized title. Equal titles collide.
	NamingTitle Naming = "title"
)

const (
	Ext        = ".txt"
	PartialExt = ".partial"
)

func (n Naming) Valid() bool {
	return n == NamingID || n == NamingTitle
}

var separatorReplacer = strings.NewReplacer("/", "-", "\\", "-")

// SafeTitle replaces path separators in a display title.
func SafeTitle(title string) string {
	return separatorReplacer.Replace(norm.NFC.String(title))
}

// FileName derives the on-disk document name for a video.
func FileName(v types.Video, naming Naming) (string, error) {
	switch naming {
	case NamingTitle:
		if strings.TrimSpace(v.Title) == "" {
			return "", fmt.Errorf("video %q has no title", v.ID)
		}
		return SafeTitle(v.Title) + Ext, nil
	case NamingID, "":
		id := SafeTitle(strings.TrimSpace(v.ID))
		if id == "" {
			return "", fmt.Errorf("video id is empty")
		}
		return id + Ext, nil
	default:
		return "", fmt.Errorf("unknown naming %q", naming)
	}
}

// ChannelKey turns a channel argument (id, @handle, name or URL) into a
// directory name.
func ChannelKey(channel string) string {
	channel = strings.TrimSpace(channel)
	if u, err := url.Parse(channel); err == nil && u.Host != "" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case len(parts) >= 2 && (parts[0] == "channel" || parts[0] == "c" || parts[0] == "user"):
			channel = parts[1]
		default:
			channel = parts[0]
		}
	}
	channel = strings.TrimPrefix(channel, "@")

	var b strings.Builder
	for _, r := range norm.NFC.String(channel) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	key := strings.Trim(b.String(), "-.")
	if key == "" {
		return "channel"
	}
	return key
}
