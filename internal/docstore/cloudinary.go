// Package docstore uploads excuse supporting documents to Cloudinary.
package docstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Document is a stored supporting document.
type Document struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

// Cloudinary uploads files with signed requests to the Cloudinary REST API.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	Clock     clockwork.Clock
}

// NewCloudinary creates an uploader.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Clock:     clockwork.NewRealClock(),
	}
}

// Upload stores r under the owner's folder. Cloudinary detects the
// resource type, so PDFs and images share the endpoint.
func (c *Cloudinary) Upload(ctx context.Context, owner, filename string, r io.Reader) (Document, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.Clock.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if folder := c.folder(owner); folder != "" {
		params["folder"] = folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = w.WriteField(k, params[k])
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: write file")
	}
	if err := w.Close(); err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: close form")
	}

	url := fmt.Sprintf("%s/%s/auto/upload", strings.TrimSuffix(c.BaseURL, "/"), c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return Document{}, errors.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, errors.Wrap(err, "cloudinary: decode response")
	}
	return doc, nil
}

func (c *Cloudinary) folder(owner string) string {
	switch {
	case c.Folder == "":
		return owner
	case owner == "":
		return c.Folder
	default:
		return c.Folder + "/" + owner
	}
}

// sign computes the API signature. api_key, file and resource_type are
// not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.APISecret))
	return hex.EncodeToString(sum[:])
}
