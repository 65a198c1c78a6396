package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/s/lifelessons/internal/logger"
)

func TestImgBBUpload(t *testing.T) {
	var gotKey, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("missing image field: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(b)
		_, _ = w.Write([]byte(`{"success":true,"data":{"display_url":"https://i.example/abc.png"}}`))
	}))
	defer srv.Close()

	u := NewImgBB(logger.Nop(), srv.URL, "k1", nil)
	got, err := u.Upload(context.Background(), "cover.png", "image/png", strings.NewReader("PNG"), 3)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got != "https://i.example/abc.png" || gotKey != "k1" || gotName != "cover.png" || gotBody != "PNG" {
		t.Fatalf("unexpected upload: url=%q key=%q name=%q body=%q", got, gotKey, gotName, gotBody)
	}
}

func TestImgBBFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reply  string
	}{
		{"not successful", http.StatusOK, `{"success":false}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"no url", http.StatusOK, `{"success":true,"data":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.reply))
			}))
			defer srv.Close()

			_, err := NewImgBB(logger.Nop(), srv.URL, "k", nil).Upload(context.Background(), "a.jpg", "image/jpeg", strings.NewReader("x"), 1)
			if !errors.Is(err, ErrUploadFailed) {
				t.Fatalf("expected ErrUploadFailed, got %v", err)
			}
		})
	}
}

func TestObjectNameKeepsExtension(t *testing.T) {
	a, b := objectName("Photo.JPG"), objectName("Photo.JPG")
	if !strings.HasPrefix(a, "lessons/") || !strings.HasSuffix(a, ".jpg") || a == b {
		t.Fatalf("unexpected object names %q %q", a, b)
	}
}

func TestPublicReadPolicyNamesBucket(t *testing.T) {
	if !strings.Contains(publicReadPolicy("imgs"), "arn:aws:s3:::imgs/*") {
		t.Fatalf("policy must grant read on the bucket objects")
	}
}
