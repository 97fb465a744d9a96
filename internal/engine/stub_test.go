package engine

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/protect"
	"github.com/klauern/wikisync/internal/wiki"
)

const testServerURL = "http://wiki.test/xwiki"

// stubClient is an in-memory wiki.Client that records every call.
type stubClient struct {
	mu       sync.Mutex
	calls    []string
	loggedIn bool
	logins   int

	loginErr   error
	listErr    error
	saveErr    error
	expireNext int

	spaces      []string
	pages       map[string][]string
	content     map[string]string
	saved       map[string]string
	attachments map[string][]string
	files       map[string][]byte
	failUpload  map[string]bool

	failSpaces int

	onLogin      func()
	onGetContent func(model.Identity)
	onSave       func(model.Identity)
}

var _ wiki.Client = (*stubClient)(nil)

func newStubClient() *stubClient {
	return &stubClient{
		spaces: []string{"XWiki", "Main", "Blog"},
		pages: map[string][]string{
			"Main":  {"WebHome", "Sandbox"},
			"Blog":  {"Post0"},
			"XWiki": {"XWikiPreferences", "AdminSheet"},
		},
		content: map[string]string{
			"Main.WebHome": `<p>Welcome</p>`,
			"Main.Sandbox": `<p>Play here</p>`,
		},
		saved:       map[string]string{},
		attachments: map[string][]string{},
		files:       map[string][]byte{},
		failUpload:  map[string]bool{},
	}
}

var errUnauthorized = &wiki.HTTPError{StatusCode: http.StatusUnauthorized, Method: "GET", Path: "/rest"}

func (s *stubClient) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if s.expireNext > 0 && !strings.HasPrefix(call, "Login") {
		s.expireNext--
		s.loggedIn = false
		return errUnauthorized
	}
	return nil
}

func (s *stubClient) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubClient) count(prefix string) int {
	n := 0
	for _, c := range s.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *stubClient) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *stubClient) Login(_ context.Context, username, password string) error {
	_ = s.record("Login")
	if s.onLogin != nil {
		s.onLogin()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	if s.loginErr != nil {
		return s.loginErr
	}
	s.loggedIn = true
	return nil
}

func (s *stubClient) GetSpacesNames(context.Context) ([]string, error) {
	if err := s.record("GetSpacesNames"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSpaces > 0 {
		s.failSpaces--
		return nil, errors.New("connection reset")
	}
	return append([]string(nil), s.spaces...), nil
}

func (s *stubClient) GetPagesNames(_ context.Context, space string) ([]string, error) {
	if err := s.record("GetPagesNames:" + space); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pages[space]...), nil
}

func (s *stubClient) GetRenderedPageContent(_ context.Context, id model.Identity) (string, error) {
	if err := s.record("GetRenderedPageContent:" + id.String()); err != nil {
		return "", err
	}
	if s.onGetContent != nil {
		s.onGetContent(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.content[id.String()]
	if !ok {
		return "", &wiki.HTTPError{StatusCode: http.StatusNotFound, Method: "GET", Path: id.String()}
	}
	return c, nil
}

func (s *stubClient) SavePageContent(_ context.Context, id model.Identity, content, syntax string) error {
	if err := s.record("SavePageContent:" + id.String()); err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[id.String()] = content
	return nil
}

func (s *stubClient) GetDocumentAttachmentList(_ context.Context, id model.Identity) ([]string, error) {
	if err := s.record("GetDocumentAttachmentList:" + id.String()); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.attachments[id.String()]...), nil
}

func (s *stubClient) GetAttachmentContent(_ context.Context, id model.Identity, name string) ([]byte, error) {
	if err := s.record("GetAttachmentContent:" + id.String() + ":" + name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[id.String()+"/"+name]
	if !ok {
		return nil, &wiki.HTTPError{StatusCode: http.StatusNotFound, Method: "GET", Path: name}
	}
	return data, nil
}

func (s *stubClient) AddAttachment(_ context.Context, space, page, localFilePath string) error {
	name := filepath.Base(localFilePath)
	if err := s.record("AddAttachment:" + space + "." + page + ":" + name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpload[name] {
		return errors.New("connection reset")
	}
	s.attachments[space+"."+page] = append(s.attachments[space+"."+page], name)
	return nil
}

type testEngine struct {
	*Engine
	stub     *stubClient
	pagesDir string
}

func newTestEngine(t *testing.T, stub *stubClient, configure ...func(*Options)) *testEngine {
	t.Helper()
	policy, err := protect.NewPolicy(protect.DefaultPatterns, false)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	dir := t.TempDir()
	opts := Options{
		Client:      stub,
		Username:    "Admin",
		Password:    "admin",
		ServerURL:   testServerURL,
		PagesDir:    filepath.Join(dir, "pages"),
		DownloadDir: filepath.Join(dir, "downloads"),
		Protected:   policy,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	e := New(opts)
	t.Cleanup(func() { _ = e.Close() })
	return &testEngine{Engine: e, stub: stub, pagesDir: opts.PagesDir}
}

// waitStructure logs in and waits for the background structure load so
// later call counts are stable.
func (te *testEngine) waitStructure(t *testing.T) []model.Space {
	t.Helper()
	spaces, err := te.Structure(context.Background())
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	return spaces
}
