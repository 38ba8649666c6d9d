package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/report"
)

// runCompare executes the compare command against the archive in dir.
func runCompare(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewCompareCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCompareCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedArchive(t, dir, map[string]*model.ScanResult{
		"first":  archivedResult("https://example.com/", day, "https://example.com/a", "https://example.com/b"),
		"second": archivedResult("https://example.com/", day.Add(time.Hour), "https://example.com/b", "https://example.com/c"),
		"third":  archivedResult("https://example.com/", day.Add(2*time.Hour), "https://example.com/c"),
	})

	t.Run("compares the latest two scans", func(t *testing.T) {
		t.Parallel()

		out, err := runCompare(t, dir, "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"Comparison for https://example.com/",
			"improved",
			"broken -1",
			"Resolved (1)",
			"https://example.com/b",
			"Still failing (1)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
		if strings.Contains(out, "New problems") {
			t.Errorf("expected no new problems, got:\n%s", out)
		}
	})

	t.Run("compares with a chosen scan as JSON", func(t *testing.T) {
		t.Parallel()

		out, err := runCompare(t, dir, "--json", "--with", "first", "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var c report.Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, out)
		}
		if len(c.NewProblems) != 1 || c.NewProblems[0].URL != "https://example.com/c" {
			t.Errorf("expected /c as new problem, got %+v", c.NewProblems)
		}
		if len(c.Resolved) != 2 {
			t.Errorf("expected /a and /b resolved, got %+v", c.Resolved)
		}
		if c.BrokenDelta != -1 {
			t.Errorf("expected broken delta -1, got %d", c.BrokenDelta)
		}
	})

	t.Run("rejects the latest scan as baseline", func(t *testing.T) {
		t.Parallel()

		if _, err := runCompare(t, dir, "--with", "third", "https://example.com/"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestCompareCmdNeedsTwoScans(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seedArchive(t, dir, map[string]*model.ScanResult{
		"only": archivedResult("https://example.com/", time.Now()),
	})

	_, err := runCompare(t, dir, "https://example.com/")
	if !errors.Is(err, errNotEnoughScans) {
		t.Errorf("expected errNotEnoughScans, got %v", err)
	}

	if _, err := runCompare(t, dir, "https://unknown.example/"); err == nil {
		t.Error("expected an error for a site without scans")
	}
	if _, err := runCompare(t, dir, "mailto:someone@example.com"); err == nil {
		t.Error("expected an error for an invalid URL")
	}
}

func TestSigned(t *testing.T) {
	t.Parallel()

	tests := map[int]string{3: "+3", 0: "0", -2: "-2"}
	for n, want := range tests {
		if got := signed(n); got != want {
			t.Errorf("signed(%d) = %q, want %q", n, got, want)
		}
	}
}
