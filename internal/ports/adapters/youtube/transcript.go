package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/types"
)

var _ ports.TranscriptSource = (*Client)(nil)

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails *struct {
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
	} `json:"videoDetails"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type timedText struct {
	Lines []timedLine `xml:"text"`
}

type timedLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

// Fetch scrapes the watch page for caption tracks and downloads the best
// one for the configured languages. Videos without usable captions yield
// ports.ErrTranscriptUnavailable.
func (c *Client) Fetch(ctx context.Context, videoID string) (types.Transcript, error) {
	pr, err := c.playerResponse(ctx, videoID)
	if err != nil {
		return types.Transcript{}, err
	}

	if pr.Captions == nil {
		reason := "captions are disabled"
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			reason = pr.PlayabilityStatus.Reason
		}
		return types.Transcript{}, fmt.Errorf("video %s: %w: %s", videoID, ports.ErrTranscriptUnavailable, reason)
	}
	tracks := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return types.Transcript{}, fmt.Errorf("video %s: %w: no caption tracks", videoID, ports.ErrTranscriptUnavailable)
	}
	track, ok := pickBestTrack(tracks, c.langs)
	if !ok {
		return types.Transcript{}, fmt.Errorf("video %s: %w: all caption tracks require a browser token", videoID, ports.ErrTranscriptUnavailable)
	}
	c.log.Debug("youtube: caption track selected", "video", videoID, "lang", track.LanguageCode, "kind", track.Kind)

	fragments, err := c.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("video %s: %w", videoID, err)
	}
	return types.Transcript{VideoID: videoID, Language: track.LanguageCode, Fragments: fragments}, nil
}

func (c *Client) watchPage(ctx context.Context, videoID string) ([]byte, error) {
	page, err := c.getPage(ctx, "/watch?"+url.Values{"v": {videoID}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("watch page %s: %w", videoID, err)
	}
	return page, nil
}

func (c *Client) playerResponse(ctx context.Context, videoID string) (playerResponse, error) {
	page, err := c.watchPage(ctx, videoID)
	if err != nil {
		return playerResponse{}, err
	}
	return parsePlayerResponse(page, videoID)
}

func parsePlayerResponse(page []byte, videoID string) (playerResponse, error) {
	data := initialJSON(page, "ytInitialPlayerResponse")
	if data == nil {
		return playerResponse{}, fmt.Errorf("watch page %s: ytInitialPlayerResponse not found", videoID)
	}
	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return playerResponse{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return pr, nil
}

// needsPoToken reports whether a caption track URL can only be fetched from
// a browser session.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers manual tracks in a preferred language, then
// auto-generated ones, then any English track, then whatever is left.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

func (c *Client) fetchTimedText(ctx context.Context, baseURL string) ([]types.Fragment, error) {
	body, err := c.getPage(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("fetch timedtext: empty body")
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]types.Fragment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	out := make([]types.Fragment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := cleanCaption(line.Text)
		if text == "" {
			continue
		}
		out = append(out, types.Fragment{
			Text:     text,
			Start:    seconds(line.Start),
			Duration: seconds(line.Dur),
		})
	}
	return out, nil
}

// cleanCaption undoes the second escaping layer YouTube applies to caption
// text, drops inline markup and collapses whitespace.
func cleanCaption(s string) string {
	s = html.UnescapeString(s)
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func seconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
