package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strings"

	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/types"
)

var _ ports.VideoLister = (*Client)(nil)

var sortParams = map[types.SortOrder]string{
	types.SortNewest:  "dd",
	types.SortOldest:  "da",
	types.SortPopular: "p",
}

// ListVideos yields the channel's videos in page order, following browse
// continuations lazily. ContentBoth yields the videos tab, then streams.
func (c *Client) ListVideos(ctx context.Context, channel string, content types.ContentType, sort types.SortOrder) iter.Seq2[types.Video, error] {
	return func(yield func(types.Video, error) bool) {
		path, err := channelPath(channel)
		if err != nil {
			yield(types.Video{}, err)
			return
		}
		sp, ok := sortParams[sort]
		if !ok {
			sp = sortParams[types.SortNewest]
		}

		tabs := []string{string(types.ContentVideos)}
		switch content {
		case types.ContentStreams:
			tabs = []string{string(types.ContentStreams)}
		case types.ContentBoth:
			tabs = []string{string(types.ContentVideos), string(types.ContentStreams)}
		}

		seen := make(map[string]struct{})
		for _, tab := range tabs {
			if !c.listTab(ctx, path+"/"+tab+"?"+url.Values{"view": {"0"}, "sort": {sp}}.Encode(), seen, yield) {
				return
			}
		}
	}
}

func (c *Client) listTab(ctx context.Context, pageURL string, seen map[string]struct{}, yield func(types.Video, error) bool) bool {
	fail := func(err error) bool {
		yield(types.Video{}, err)
		return false
	}

	page, err := c.getPage(ctx, pageURL)
	if err != nil {
		return fail(fmt.Errorf("channel page: %w", err))
	}
	data := initialJSON(page, "ytInitialData")
	if data == nil {
		return fail(errors.New("ytInitialData not found in channel page"))
	}
	cfg := readPageConfig(page)

	for pageNo := 1; ; pageNo++ {
		videos, token, err := parseBrowse(data)
		if err != nil {
			return fail(fmt.Errorf("parse listing page %d: %w", pageNo, err))
		}
		for _, v := range videos {
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}
			if !yield(v, nil) {
				return false
			}
		}
		if token == "" {
			return true
		}
		c.log.Debug("youtube: following continuation", "page", pageNo+1)
		data, err = c.postInnertube(ctx, "browse", cfg, map[string]any{"continuation": token})
		if err != nil {
			return fail(err)
		}
	}
}

// channelPath maps a channel id, @handle, bare name or channel URL to the
// site path of its page.
func channelPath(channel string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", errors.New("channel is empty")
	}

	if strings.Contains(channel, "://") || strings.HasPrefix(channel, "www.") || strings.HasPrefix(channel, "youtube.com") {
		raw := channel
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid channel url %q: %w", channel, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case len(parts) >= 2 && (parts[0] == "channel" || parts[0] == "c" || parts[0] == "user"):
			return "/" + parts[0] + "/" + parts[1], nil
		case len(parts) >= 1 && parts[0] != "":
			return "/" + parts[0], nil
		default:
			return "", fmt.Errorf("channel url %q has no channel path", channel)
		}
	}

	switch {
	case strings.HasPrefix(channel, "@"):
		return "/" + url.PathEscape(channel), nil
	case len(channel) == 24 && strings.HasPrefix(channel, "UC"):
		return "/channel/" + channel, nil
	default:
		return "/@" + url.PathEscape(channel), nil
	}
}

type textRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t textRuns) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

type videoRenderer struct {
	VideoID string   `json:"videoId"`
	Title   textRuns `json:"title"`
}

// parseBrowse walks a ytInitialData document or a browse continuation
// response and returns video renderers in document order plus the next
// continuation token.
func parseBrowse(data []byte) ([]types.Video, string, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, "", err
	}

	var (
		videos []types.Video
		token  string
	)
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case map[string]any:
			if raw, ok := x["videoRenderer"]; ok {
				if vid, ok := decodeVideo(raw); ok {
					videos = append(videos, vid)
				}
				return
			}
			if raw, ok := x["continuationItemRenderer"]; ok {
				if token == "" {
					token = continuationToken(raw)
				}
				return
			}
			// Object keys carry no order; sort them so output is stable.
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				walk(x[k])
			}
		case []any:
			for _, it := range x {
				walk(it)
			}
		}
	}
	walk(root)
	return videos, token, nil
}

func decodeVideo(raw any) (types.Video, bool) {
	b, err := json.Marshal(raw)
	if err != nil {
		return types.Video{}, false
	}
	var vr videoRenderer
	if err := json.Unmarshal(b, &vr); err != nil || vr.VideoID == "" {
		return types.Video{}, false
	}
	return types.Video{ID: vr.VideoID, Title: strings.TrimSpace(vr.Title.String())}, true
}

func continuationToken(raw any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	var cr struct {
		ContinuationEndpoint struct {
			ContinuationCommand struct {
				Token string `json:"token"`
			} `json:"continuationCommand"`
		} `json:"continuationEndpoint"`
	}
	if err := json.Unmarshal(b, &cr); err != nil {
		return ""
	}
	return cr.ContinuationEndpoint.ContinuationCommand.Token
}
