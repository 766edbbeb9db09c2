package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func adminRequest(t *testing.T, mux *http.ServeMux, path, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(&Run{Session: 1, Variant: "1_0", StartedAt: time.Unix(0, 0)}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	if w := adminRequest(t, mux, "/debug/tailsql/", "127.0.0.1:40000"); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for the SQL console, got %d", w.Code)
	}
	if w := adminRequest(t, mux, "/debug/backup", "203.0.113.7:40000"); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a remote client, got %d", w.Code)
	}

	w := adminRequest(t, mux, "/debug/backup", "127.0.0.1:40000")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for the backup, got %d: %s", w.Code, w.Body.String())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Backup is not gzip: %v", err)
	}
	backup, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}
	if !bytes.HasPrefix(backup, []byte("SQLite format 3\x00")) {
		t.Errorf("Backup does not start with the SQLite header")
	}
}
