package processing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// MaxImageBytes caps how much of a remote image is read into memory.
const MaxImageBytes = 20 << 20

var ErrImageTooLarge = errors.New("image exceeds size limit")

type Image struct {
	MIMEType string
	Data     []byte
}

// LoadImage resolves an image reference into raw bytes. Data URIs are decoded
// in place, anything else is fetched with client.
func LoadImage(ctx context.Context, client *http.Client, url string) (*Image, error) {
	if strings.HasPrefix(url, "data:") {
		return parseDataURI(url)
	}
	return fetchImage(ctx, client, url)
}

// data:[<media type>][;base64],<data>
func parseDataURI(uri string) (*Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("invalid data URI")
	}

	params := strings.Split(meta, ";")
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, errors.New("only base64 data URIs are supported for images")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}

	mediaType := params[0]
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return &Image{MIMEType: mediaType, Data: data}, nil
}

func fetchImage(ctx context.Context, client *http.Client, url string) (*Image, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	return &Image{MIMEType: mediaType, Data: data}, nil
}
