package docstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSendsSignedForm(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	var gotPath string
	var fields map[string]string
	var file string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(f)
		file = string(b)
		_, _ = w.Write([]byte(`{"public_id":"excuses/stu-1/abc","secure_url":"https://res.cloudinary.com/demo/raw/upload/abc.pdf","format":"pdf","bytes":7}`))
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "excuses")
	c.BaseURL = srv.URL
	c.Clock = clockwork.NewFakeClockAt(now)

	doc, err := c.Upload(context.Background(), "stu-1", "note.pdf", strings.NewReader("%PDF-1."))
	require.NoError(t, err)

	assert.Equal(t, "/demo/auto/upload", gotPath)
	assert.Equal(t, "%PDF-1.", file)
	assert.Equal(t, "key", fields["api_key"])
	assert.Equal(t, "excuses/stu-1", fields["folder"])
	assert.Equal(t, "1792054800", fields["timestamp"])

	sum := sha1.Sum([]byte("folder=excuses/stu-1&timestamp=1792054800secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), fields["signature"])

	assert.Equal(t, "https://res.cloudinary.com/demo/raw/upload/abc.pdf", doc.SecureURL)
	assert.Equal(t, "pdf", doc.Format)
}

func TestUploadSurfacesRemoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "wrong", "")
	c.BaseURL = srv.URL
	_, err := c.Upload(context.Background(), "stu-1", "a.png", strings.NewReader("png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestFolder(t *testing.T) {
	c := &Cloudinary{}
	assert.Equal(t, "stu-1", c.folder("stu-1"))
	c.Folder = "docs"
	assert.Equal(t, "docs/stu-1", c.folder("stu-1"))
	assert.Equal(t, "docs", c.folder(""))
}
