package youtube

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/forPelevin/ytscribe/internal/ports"
)

var _ ports.TitleResolver = (*Client)(nil)

// ResolveTitle reads the video title from the watch page <title>, falling
// back to the player response when the element is empty.
func (c *Client) ResolveTitle(ctx context.Context, videoID string) (string, error) {
	page, err := c.watchPage(ctx, videoID)
	if err != nil {
		return "", err
	}
	if t := pageTitle(page); t != "" {
		return t, nil
	}
	if pr, err := parsePlayerResponse(page, videoID); err == nil && pr.VideoDetails != nil {
		if t := strings.TrimSpace(pr.VideoDetails.Title); t != "" {
			return t, nil
		}
	}
	return "", fmt.Errorf("watch page %s: title not found", videoID)
}

func pageTitle(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var title string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			var b strings.Builder
			for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
				if ch.Type == html.TextNode {
					b.WriteString(ch.Data)
				}
			}
			title = b.String()
			return true
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	walk(doc)

	title = strings.TrimSpace(title)
	title = strings.TrimSpace(strings.TrimSuffix(title, "- YouTube"))
	if title == "YouTube" {
		return ""
	}
	return title
}
