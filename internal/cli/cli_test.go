package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauern/wikisync/internal/config"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/util"
)

func TestVersionVariables(t *testing.T) {
	// Version should be set (even if to "dev")
	if Version == "" {
		t.Error("Version should not be empty")
	}

	// Commit and BuildDate should have defaults
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildDate == "" {
		t.Error("BuildDate should not be empty")
	}
}

func TestConfigureLogging(t *testing.T) {
	tests := map[string]struct {
		args      []string
		env       map[string]string
		wantLevel slog.Level
	}{
		"no flags keeps warn level": {
			args:      []string{"wikisync", "version"},
			wantLevel: slog.LevelWarn,
		},
		"verbose flag enables info level": {
			args:      []string{"wikisync", "--verbose", "version"},
			wantLevel: slog.LevelInfo,
		},
		"verbose config enables info level": {
			args:      []string{"wikisync", "version"},
			env:       map[string]string{"WIKISYNC_OUTPUT_VERBOSE": "true"},
			wantLevel: slog.LevelInfo,
		},
		"debug flag enables debug level": {
			args:      []string{"wikisync", "--debug", "version"},
			wantLevel: slog.LevelDebug,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			// Reset logging to default before each test
			logging.SetDefault(logging.New(logging.DefaultOptions()))

			if _, err := runCLI(t, tt.args...); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			ctx := context.Background()
			logger := slog.Default()
			if got := logger.Enabled(ctx, tt.wantLevel); !got {
				t.Errorf("logger should be enabled at %v", tt.wantLevel)
			}
			if tt.wantLevel > slog.LevelDebug && logger.Enabled(ctx, tt.wantLevel-4) {
				t.Errorf("logger should not be enabled below %v", tt.wantLevel)
			}
		})
	}
}

// runCLI runs the CLI with args and returns what it printed to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	runErr := Run(context.Background(), args)

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close pipe writer: %v", err)
	}
	os.Stdout = old
	<-done
	_ = r.Close()

	return buf.String(), runErr
}

// fakeWiki serves the part of the wiki REST API the engine uses.
type fakeWiki struct {
	mu          sync.Mutex
	pages       map[string]string
	saved       map[string]string
	attachments map[string]map[string][]byte
}

func newFakeWiki(t *testing.T) *fakeWiki {
	t.Helper()
	f := &fakeWiki{
		pages: map[string]string{
			"Main.WebHome": "<h1>Welcome</h1>",
			"Main.Sandbox": "<p>play here</p>",
			"Blog.Post0":   "<p>first post</p>",
			"XWiki.Prefs":  "<p>preferences</p>",
		},
		saved: map[string]string{},
		attachments: map[string]map[string][]byte{
			"Main.WebHome": {"logo.png": {0x89, 'P', 'N', 'G'}},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	pages := t.TempDir()
	t.Setenv("WIKISYNC_HOME", t.TempDir())
	t.Setenv("WIKISYNC_SERVER_URL", srv.URL)
	t.Setenv("WIKISYNC_SERVER_USERNAME", "Admin")
	t.Setenv("WIKISYNC_SERVER_PASSWORD", "admin")
	t.Setenv("WIKISYNC_REPOSITORIES_PAGES", pages)
	t.Setenv("WIKISYNC_REPOSITORIES_ATTACHMENTS", filepath.Join(pages, "downloads"))
	return f
}

func (f *fakeWiki) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "Admin" || pass != "admin" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if rest, ok := strings.CutPrefix(r.URL.Path, "/bin/view/"); ok {
		content, found := f.pages[strings.Replace(rest, "/", ".", 1)]
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, content)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rest/wikis/xwiki"), "/")
	switch {
	case r.URL.Path == "/rest/wikis/xwiki":
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && parts[1] == "spaces":
		writeNames(w, "spaces", f.spaceNames())
	case len(parts) == 4 && parts[3] == "pages":
		writeNames(w, "pageSummaries", f.pageNames(parts[2]))
	case len(parts) == 5 && r.Method == http.MethodPut:
		var u struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		full := parts[2] + "." + parts[4]
		f.saved[full] = u.Content
		f.pages[full] = u.Content
		w.WriteHeader(http.StatusAccepted)
	case len(parts) == 6 && parts[5] == "attachments":
		full := parts[2] + "." + parts[4]
		if _, ok := f.pages[full]; !ok {
			http.NotFound(w, r)
			return
		}
		var names []string
		for name := range f.attachments[full] {
			names = append(names, name)
		}
		sort.Strings(names)
		writeNames(w, "attachments", names)
	case len(parts) == 7 && parts[5] == "attachments":
		full := parts[2] + "." + parts[4]
		if r.Method == http.MethodPut {
			data, _ := io.ReadAll(r.Body)
			if f.attachments[full] == nil {
				f.attachments[full] = map[string][]byte{}
			}
			f.attachments[full][parts[6]] = data
			w.WriteHeader(http.StatusCreated)
			return
		}
		data, ok := f.attachments[full][parts[6]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeWiki) spaceNames() []string {
	seen := map[string]bool{}
	var names []string
	for full := range f.pages {
		space, _, _ := strings.Cut(full, ".")
		if !seen[space] {
			seen[space] = true
			names = append(names, space)
		}
	}
	sort.Strings(names)
	return names
}

func (f *fakeWiki) pageNames(space string) []string {
	var names []string
	for full := range f.pages {
		if s, page, _ := strings.Cut(full, "."); s == space {
			names = append(names, page)
		}
	}
	sort.Strings(names)
	return names
}

func (f *fakeWiki) savedContent(full string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.saved[full]
	return content, ok
}

func writeNames(w http.ResponseWriter, key string, names []string) {
	items := make([]map[string]string, 0, len(names))
	for _, n := range names {
		items = append(items, map[string]string{"name": n})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{key: items})
}

// writeEditor writes an executable script that replaces the edited file
// with body.
func writeEditor(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("editor script needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "editor.sh")
	script := "#!/bin/sh\ncat > \"$1\" <<'EOF'\n" + body + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil { // #nosec G306
		t.Fatalf("failed to write editor script: %v", err)
	}
	return path
}

func TestCommandsWithoutServer(t *testing.T) {
	t.Setenv("WIKISYNC_HOME", t.TempDir())

	tests := map[string][]string{
		"tree":        {"wikisync", "tree"},
		"show":        {"wikisync", "show", "Main.WebHome"},
		"attachments": {"wikisync", "attachments", "Main.WebHome"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, args...)
			if err == nil || !strings.Contains(err.Error(), "no wiki server configured") {
				t.Errorf("Run() error = %v, want missing server error", err)
			}
		})
	}
}

func TestLoginCommand(t *testing.T) {
	newFakeWiki(t)

	output, err := runCLI(t, "wikisync", "login", "--save")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "Logged in to") || !strings.Contains(output, "as Admin") {
		t.Errorf("output = %q, want login confirmation", output)
	}

	t.Setenv("WIKISYNC_SERVER_PASSWORD", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if cfg.Server.Username != "Admin" {
		t.Errorf("saved username = %q, want Admin", cfg.Server.Username)
	}
	if cfg.Server.Password != "" {
		t.Error("login --save must not store the password")
	}
}

func TestLoginCommandBadCredentials(t *testing.T) {
	newFakeWiki(t)
	t.Setenv("WIKISYNC_SERVER_PASSWORD", "wrong")

	_, err := runCLI(t, "wikisync", "login")
	if err == nil || !strings.Contains(err.Error(), "Login failed") {
		t.Errorf("Run() error = %v, want login failure message", err)
	}
}

func TestTreeCommand(t *testing.T) {
	newFakeWiki(t)
	t.Setenv("WIKISYNC_EDITING_HIDDEN_SPACES", "Blog")

	tests := map[string]struct {
		args    []string
		want    []string
		notWant []string
	}{
		"hidden spaces left out": {
			args:    []string{"wikisync", "tree"},
			want:    []string{"Main", "WebHome", "Sandbox"},
			notWant: []string{"Post0", "Prefs"},
		},
		"all includes hidden spaces": {
			args:    []string{"wikisync", "tree", "--all"},
			want:    []string{"Main", "Blog", "Post0"},
			notWant: []string{"Prefs"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			output, err := runCLI(t, tt.args...)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output = %q, want substring %q", output, want)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(output, notWant) {
					t.Errorf("output = %q, should not contain %q", output, notWant)
				}
			}
		})
	}
}

func TestShowCommand(t *testing.T) {
	newFakeWiki(t)

	tests := map[string]struct {
		args    []string
		want    string
		wantErr string
	}{
		"html": {
			args: []string{"wikisync", "show", "Main.WebHome"},
			want: "<h1>Welcome</h1>",
		},
		"markdown": {
			args: []string{"wikisync", "show", "--markdown", "Main.WebHome"},
			want: "# Welcome",
		},
		"protected page": {
			args:    []string{"wikisync", "show", "XWiki.Prefs"},
			wantErr: "protected",
		},
		"invalid name": {
			args:    []string{"wikisync", "show", "NoSeparator"},
			wantErr: "invalid document identity",
		},
		"missing argument": {
			args:    []string{"wikisync", "show"},
			wantErr: "missing page argument",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			output, err := runCLI(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Run() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !strings.Contains(output, tt.want) {
				t.Errorf("output = %q, want substring %q", output, tt.want)
			}
		})
	}
}

func TestNewCommandPublishes(t *testing.T) {
	wiki := newFakeWiki(t)

	output, err := runCLI(t, "wikisync", "new", "--no-editor", "--title", "My Post", "Blog.Post1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "Saved Blog.Post1") {
		t.Errorf("output = %q, want save confirmation", output)
	}
	saved, ok := wiki.savedContent("Blog.Post1")
	if !ok {
		t.Fatal("page was not saved")
	}
	if !strings.Contains(saved, "<h1>My Post</h1>") {
		t.Errorf("saved = %q, want the title heading", saved)
	}
}

func TestNewCommandFromMarkdown(t *testing.T) {
	wiki := newFakeWiki(t)
	src := filepath.Join(t.TempDir(), "post.md")
	util.WriteFile(t, src, "Some *text*.\n")

	if _, err := runCLI(t, "wikisync", "new", "--no-editor", "--from-markdown", src, "Blog.Post2"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	saved, _ := wiki.savedContent("Blog.Post2")
	if !strings.Contains(saved, "<em>text</em>") {
		t.Errorf("saved = %q, want converted markdown", saved)
	}
}

func TestEditCommand(t *testing.T) {
	wiki := newFakeWiki(t)
	t.Setenv("WIKISYNC_EDITING_EDITOR", writeEditor(t, "<html><body><h1>Edited</h1></body></html>"))

	output, err := runCLI(t, "wikisync", "edit", "Main.WebHome")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "Saved Main.WebHome") {
		t.Errorf("output = %q, want save confirmation", output)
	}
	saved, ok := wiki.savedContent("Main.WebHome")
	if !ok || !strings.Contains(saved, "<h1>Edited</h1>") {
		t.Errorf("saved = %q, want edited content", saved)
	}
}

func TestEditCommandWithoutChanges(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs the true command")
	}
	wiki := newFakeWiki(t)
	t.Setenv("WIKISYNC_EDITING_EDITOR", "true")

	output, err := runCLI(t, "wikisync", "edit", "Main.Sandbox")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "No changes") {
		t.Errorf("output = %q, want no-change notice", output)
	}
	if _, ok := wiki.savedContent("Main.Sandbox"); ok {
		t.Error("unchanged page should not be saved")
	}
}

func TestEditCommandErrors(t *testing.T) {
	newFakeWiki(t)
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")

	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"protected page": {
			args:    []string{"wikisync", "edit", "XWiki.Prefs"},
			wantErr: "protected",
		},
		"missing page": {
			args:    []string{"wikisync", "edit", "Main.Missing"},
			wantErr: "",
		},
		"no editor": {
			args:    []string{"wikisync", "edit", "Blog.Post0"},
			wantErr: "no editor configured",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil {
				t.Fatal("Run() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Run() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAttachCommand(t *testing.T) {
	wiki := newFakeWiki(t)
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.txt", "b.txt"} {
		path := filepath.Join(dir, name)
		util.WriteFile(t, path, name)
		files = append(files, path)
	}

	output, err := runCLI(t, append([]string{"wikisync", "attach", "Main.Sandbox"}, files...)...)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "Attached 2 files to Main.Sandbox") {
		t.Errorf("output = %q, want attach confirmation", output)
	}
	wiki.mu.Lock()
	got := len(wiki.attachments["Main.Sandbox"])
	wiki.mu.Unlock()
	if got != 2 {
		t.Errorf("uploaded %d attachments, want 2", got)
	}

	output, err = runCLI(t, "wikisync", "attachments", "Main.Sandbox")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "a.txt") || !strings.Contains(output, "b.txt") {
		t.Errorf("output = %q, want both attachments", output)
	}
}

func TestAttachCommandErrors(t *testing.T) {
	newFakeWiki(t)
	file := filepath.Join(t.TempDir(), "a.txt")
	util.WriteFile(t, file, "a")

	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"no files": {
			args:    []string{"wikisync", "attach", "Main.WebHome"},
			wantErr: "at least one file",
		},
		"unpublished page": {
			args:    []string{"wikisync", "attach", "Main.Draft", file},
			wantErr: "Save the page to the wiki before attaching files.",
		},
		"missing file stops the batch": {
			args:    []string{"wikisync", "attach", "Main.WebHome", filepath.Join(t.TempDir(), "nope.txt"), file},
			wantErr: "Uploaded 0 of 2 attachments",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Run() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDownloadCommand(t *testing.T) {
	newFakeWiki(t)
	dest := filepath.Join(t.TempDir(), "logo.png")

	output, err := runCLI(t, "wikisync", "download", "--output", dest, "Main.WebHome", "logo.png")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(output, "Downloaded logo.png (4 bytes)") {
		t.Errorf("output = %q, want download confirmation", output)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if string(data) != "\x89PNG" {
		t.Errorf("downloaded %q, want PNG header", data)
	}

	if _, err := runCLI(t, "wikisync", "download", "Main.WebHome"); err == nil {
		t.Error("download without a name should fail")
	}
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("WIKISYNC_HOME", t.TempDir())

	_, err := runCLI(t, "wikisync", "config", "init", "--server", "https://wiki.example.com/xwiki", "--username", "bob")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !config.Exists() {
		t.Fatal("config init should write the config file")
	}

	_, err = runCLI(t, "wikisync", "config", "init")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init error = %v, want already exists", err)
	}

	t.Setenv("WIKISYNC_SERVER_PASSWORD", "s3cret")
	output, err := runCLI(t, "wikisync", "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{config.FilePath(), "https://wiki.example.com/xwiki", "bob", "********"} {
		if !strings.Contains(output, want) {
			t.Errorf("output = %q, want substring %q", output, want)
		}
	}
	if strings.Contains(output, "s3cret") {
		t.Error("config output must mask the password")
	}
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikisync.toml")
	cfg := config.Default()
	cfg.Output.Verbose = true
	if err := cfg.SaveToPath(path); err != nil {
		t.Fatalf("SaveToPath() error = %v", err)
	}
	logging.SetDefault(logging.New(logging.DefaultOptions()))

	if _, err := runCLI(t, "wikisync", "--config", path, "version"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("verbose from the TOML config should enable info logging")
	}

	if _, err := runCLI(t, "wikisync", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"); err == nil {
		t.Error("a missing --config file should fail")
	}
}
