package indexer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadSendsMultipart(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotFields map[string]string
		gotFile   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				gotFields[k] = v[0]
			}
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		gotFile, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc := Document{ID: "mat-1", TaskID: "task-1", FileName: "handbook.pdf", ContentType: "application/pdf"}
	if err := client.Upload(context.Background(), doc, bytes.NewReader([]byte("pdf-bytes"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/documents" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotFields["document_id"] != "mat-1" || gotFields["task_id"] != "task-1" {
		t.Fatalf("fields not carried: %v", gotFields)
	}
	if string(gotFile) != "pdf-bytes" {
		t.Fatalf("payload not carried: %q", gotFile)
	}
}

func TestUpdateAndDeleteAddressDocument(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc := Document{ID: "mat-1", FileName: "handbook.pdf"}
	if err := client.Update(context.Background(), doc, bytes.NewReader(nil)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := client.Delete(context.Background(), "mat-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(paths) != 2 || paths[0] != "PUT /documents/mat-1" || paths[1] != "DELETE /documents/mat-1" {
		t.Fatalf("unexpected requests: %v", paths)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Delete(context.Background(), "mat-1"); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
