package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/model"
)

// newTestSite serves "/" linking to a working page and a missing one.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/ok">ok</a> <a href="/missing">missing</a></body></html>`)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>fine</body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// archivedResult builds a finished scan of startURL with the given broken links.
func archivedResult(startURL string, start time.Time, broken ...string) *model.ScanResult {
	live := model.NewLiveResult(model.DefaultScanConfig(startURL))
	live.Begin("example.com", start)
	live.Add(model.LinkRecord{URL: startURL, Status: model.StatusWorking, StatusCode: 200, Kind: model.KindPage})
	for _, u := range broken {
		live.Add(model.LinkRecord{URL: u, Status: model.StatusBroken, StatusCode: 404, Kind: model.KindCheck})
	}
	return live.Finish(start.Add(time.Second), false)
}

// seedArchive stores results under the given ids in a new archive in dir.
func seedArchive(t *testing.T, dir string, scans map[string]*model.ScanResult) {
	t.Helper()

	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for id, result := range scans {
		if err := db.SaveScan(context.Background(), id, result); err != nil {
			t.Fatalf("failed to save scan %s: %v", id, err)
		}
	}
}
