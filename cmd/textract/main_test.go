package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/textract/api"
	"github.com/hazyhaar/textract/internal/fixture"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExtractCmd(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "report.pdf")
	os.WriteFile(pdfPath, fixture.TextPDF([]fixture.Text{{X: 72, Y: 720, S: "Annual figures"}}), 0o644)

	out, err := run(t, "", "extract", pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Annual figures\n" {
		t.Errorf("out = %q", out)
	}

	out, err = run(t, "", "extract", "--json", pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if res["format"] != "pdf" || res["quality"] == nil {
		t.Errorf("result = %v", res)
	}
}

func TestExtractCmd_Stdin(t *testing.T) {
	out, err := run(t, "a\t\tb\n\n\n\nc ", "extract", "-")
	if err != nil {
		t.Fatal(err)
	}
	if out != "a b\n\nc\n" {
		t.Errorf("out = %q", out)
	}
}

func TestExtractCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "tool.exe")
	os.WriteFile(exe, []byte("MZ"), 0o644)

	if _, err := run(t, "", "extract", exe); err == nil {
		t.Error("unsupported extension: expected error")
	}
	if _, err := run(t, "", "extract", filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := run(t, "", "extract"); err == nil {
		t.Error("no argument: expected error")
	}
}

func TestFormatsAndVersion(t *testing.T) {
	out, err := run(t, "", "formats")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"html", "pdf", "docx", "txt", ".htm"} {
		if !strings.Contains(out, f) {
			t.Errorf("formats output missing %q: %s", f, out)
		}
	}

	out, _ = run(t, "", "version")
	if out != "textract dev\n" {
		t.Errorf("version = %q", out)
	}
}

func TestServe(t *testing.T) {
	// WHAT: serve answers /health, records heartbeats and stops on cancel.
	// WHY: The process must shut down cleanly on SIGTERM.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := &api.Config{Listen: addr, ObsDB: filepath.Join(t.TempDir(), "obs.db")}
	cfg.Version = "test"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get("http://" + addr + "/health"); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
