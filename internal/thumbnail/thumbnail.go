// Package thumbnail picks a preview image for an item.
package thumbnail

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/njoerd114/newssync/internal/model"
)

// Resolve returns the item's preview image: the server-provided media
// thumbnail when set, otherwise the first usable <img> in the body resolved
// against the item URL. It returns "" when there is none.
func Resolve(it model.Item) string {
	if it.ImageLink != "" {
		return it.ImageLink
	}
	src := FirstImage(it.Body)
	if src == "" {
		return ""
	}
	return absolute(it.URL, src)
}

// FirstImage returns the src of the first <img> in body that is not a data
// URI or a 1x1 tracking pixel.
func FirstImage(body string) string {
	if body == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "img" {
				continue
			}
			if src := usableSrc(tok.Attr); src != "" {
				return src
			}
		}
	}
}

func usableSrc(attrs []html.Attribute) string {
	var src string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "src":
			src = strings.TrimSpace(a.Val)
		case "width", "height":
			if strings.TrimSpace(a.Val) == "1" {
				return ""
			}
		}
	}
	if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
		return ""
	}
	return src
}

func absolute(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() || base == "" {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return r.String()
	}
	return b.ResolveReference(r).String()
}
