package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestCloudinaryHost(t *testing.T, prefix string, secret string) *cloudinaryHost {
	t.Helper()
	h, err := newCloudinaryHost(CloudinaryConfig{
		CloudName:    "demo",
		APIKey:       "key",
		APISecret:    secret,
		UploadPreset: "parfum_unsigned",
		UploadPrefix: prefix,
	})
	if err != nil {
		t.Fatalf("new cloudinary host: %v", err)
	}
	return h
}

func TestCloudinaryHostUpload(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"parfum/rose","secure_url":"https://res.cloudinary.com/demo/image/upload/parfum/rose.png","resource_type":"image"}`))
	}))
	defer srv.Close()

	h := newTestCloudinaryHost(t, srv.URL, "secret")
	asset, err := h.Put(context.Background(), assetUpload{Data: pngHeader, PublicID: "rose", Folder: "parfum", Category: categoryImage})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if asset.URL != "https://res.cloudinary.com/demo/image/upload/parfum/rose.png" || asset.PublicID != "parfum/rose" {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if !strings.HasSuffix(gotPath, "/demo/image/upload") {
		t.Fatalf("unexpected upload path %q", gotPath)
	}
}

func TestCloudinaryHostAudioUsesVideoPathway(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"parfum/jingle","secure_url":"https://res.cloudinary.com/demo/video/upload/parfum/jingle.mp3","resource_type":"video"}`))
	}))
	defer srv.Close()

	h := newTestCloudinaryHost(t, srv.URL, "")
	if !h.unsigned {
		t.Fatalf("host without secret must upload unsigned")
	}
	if _, err := h.Put(context.Background(), assetUpload{Data: []byte("ID3"), PublicID: "jingle", Folder: "parfum", Category: categoryAudio}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/demo/video/upload") {
		t.Fatalf("unexpected upload path %q", gotPath)
	}
}

func TestCloudinaryHostRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid image file"}}`))
	}))
	defer srv.Close()

	h := newTestCloudinaryHost(t, srv.URL, "secret")
	_, err := h.Put(context.Background(), assetUpload{Data: pngHeader, PublicID: "bad", Folder: "parfum", Category: categoryImage})
	if kindOf(err) != KindUpstreamRejected {
		t.Fatalf("expected upstream rejected, got %v", err)
	}
}

func TestPlaceholderHost(t *testing.T) {
	asset, err := placeholderHost{}.Put(context.Background(), assetUpload{PublicID: "rose oud", Folder: "parfum", Category: categoryImage})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if asset.URL != "https://via.placeholder.com/800x600.png?text=rose+oud" {
		t.Fatalf("unexpected url %q", asset.URL)
	}
	if asset.PublicID != "parfum/rose oud" || asset.ResourceType != "image" {
		t.Fatalf("unexpected asset %+v", asset)
	}
}
