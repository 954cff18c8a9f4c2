package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/whiskerworks/catmood/analysis"
)

func TestPostJSON_SendsBodyAndBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123")
	status, body, err := c.PostJSON(context.Background(), "/api/analyze", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("status=%d, want 201", status)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body=%q", body)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type=%q", gotContentType)
	}
	if gotBody["k"] != "v" {
		t.Fatalf("server saw body %v", gotBody)
	}
}

func TestPostJSON_Non2xxIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	status, body, err := c.PostJSON(context.Background(), "/api/analyze", struct{}{}, nil)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", status)
	}
	if string(body) != `{"error":"down"}` {
		t.Fatalf("body=%q", body)
	}
}

func TestPostJSON_ConnectionFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL, "")
	_, _, err := c.PostJSON(context.Background(), "/api/analyze", struct{}{}, nil)
	var ne *analysis.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err=%v, want *analysis.NetworkError", err)
	}
}

func TestPostMultipart_FormRoundTrip(t *testing.T) {
	t.Parallel()

	var gotField, gotFilename string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotField = r.FormValue("purpose")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotFile, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"fileUri":"files/xyz"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	status, body, err := c.PostMultipart(context.Background(), "/api/upload",
		map[string]string{"purpose": "analysis"}, "file", []byte("jpeg-bytes"), "photo.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if string(body) != `{"fileUri":"files/xyz"}` {
		t.Fatalf("body=%q", body)
	}
	if gotField != "analysis" {
		t.Fatalf("purpose field=%q", gotField)
	}
	if gotFilename != "photo.jpg" {
		t.Fatalf("filename=%q", gotFilename)
	}
	if string(gotFile) != "jpeg-bytes" {
		t.Fatalf("file bytes=%q", gotFile)
	}
}

func TestStreamLines_ReadsUntilEOF(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "line one\nline two\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	status, stream, err := c.StreamLines(context.Background(), "/api/analyze", struct{}{}, nil)
	if err != nil {
		t.Fatalf("StreamLines: %v", err)
	}
	defer stream.Close()
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}

	var lines []string
	for {
		line, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Fatalf("lines=%v", lines)
	}
}

func TestStreamLines_ReadAllForErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"quota"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	status, stream, err := c.StreamLines(context.Background(), "/api/analyze", struct{}{}, nil)
	if err != nil {
		t.Fatalf("StreamLines: %v", err)
	}
	defer stream.Close()
	if status != http.StatusTooManyRequests {
		t.Fatalf("status=%d", status)
	}
	body, err := stream.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"error":"quota"}` {
		t.Fatalf("body=%q", body)
	}
}
