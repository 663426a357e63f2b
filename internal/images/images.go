// -----------------------------------------------------------------------------
// Image Mirrors
// -----------------------------------------------------------------------------
//
// Package images mirrors remote images (profile picture, light and dark
// backgrounds) into memory so the site serves them without hot-linking.
// Every download is decoded far enough to read its header; anything that
// is not a PNG, JPEG, GIF or WebP image fails the tick.
//
// -----------------------------------------------------------------------------

package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/afreidah/personal-site-backend/internal/remote"
	_ "golang.org/x/image/webp"
)

// GravatarBase is the avatar endpoint used when only an email is configured.
const GravatarBase = "https://gravatar.com/avatar/"

// Image is a mirrored image payload.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Mirror is a fetcher that downloads one image URL.
type Mirror struct {
	name string
	url  string
	http *remote.Client
}

// NewMirror builds a mirror named name for url. An empty url disables it.
func NewMirror(name, url string, hc *http.Client) *Mirror {
	return &Mirror{name: name, url: url, http: remote.New(hc)}
}

func (m *Mirror) ServiceName() string { return m.name }

// Enabled reports whether a source URL is configured.
func (m *Mirror) Enabled() bool { return m.url != "" }

// Describe summarizes a fetch for the success log.
func (m *Mirror) Describe(img *Image) []any {
	return []any{"bytes", len(img.Data), "type", img.ContentType, "width", img.Width, "height", img.Height}
}

// Fetch downloads and validates the image.
func (m *Mirror) Fetch(ctx context.Context) (*Image, error) {
	data, _, err := m.http.GetBytes(ctx, m.url, nil)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode validates data as an image and returns it with a content type
// derived from the decoded format rather than the upstream header.
func Decode(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a supported image: %w", err)
	}
	return &Image{
		Data:        data,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// ProfilePictureURL picks the explicit URL, or a Gravatar URL derived from
// email, or "" when neither is set.
func ProfilePictureURL(explicit, email string) string {
	if explicit != "" {
		return explicit
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return GravatarBase + hex.EncodeToString(sum[:]) + "?s=512&d=identicon"
}
