package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
)

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	// Wiki is the wiki name in REST paths. Defaults to "xwiki".
	Wiki string
	// Timeout bounds each request. Defaults to 30 seconds.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a network error, 429
	// or 5xx response.
	MaxRetries uint
	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration
	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// HTTPClient is a Client for the XWiki REST API using basic authentication.
type HTTPClient struct {
	baseURL    string
	wiki       string
	httpClient *http.Client
	maxRetries uint
	retryDelay time.Duration

	mu       sync.RWMutex
	username string
	password string
	loggedIn bool
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the wiki at baseURL, for example
// "https://wiki.example.com/xwiki".
func NewHTTPClient(baseURL string, opts HTTPOptions) *HTTPClient {
	if opts.Wiki == "" {
		opts.Wiki = "xwiki"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		wiki:       opts.Wiki,
		httpClient: httpClient,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// BaseURL returns the server URL the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

// Login checks the credentials against the server and keeps them for every
// later request.
func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	c.username, c.password = username, password
	c.loggedIn = false
	c.mu.Unlock()

	if _, err := c.do(ctx, http.MethodGet, c.restPath(), nil, "", nil); err != nil {
		return fmt.Errorf("login as %s: %w", username, err)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	logging.Debug("logged in", "user", username)
	return nil
}

type spacesResponse struct {
	Spaces []struct {
		Name string `json:"name"`
	} `json:"spaces"`
}

func (c *HTTPClient) GetSpacesNames(ctx context.Context) ([]string, error) {
	var out spacesResponse
	if err := c.getJSON(ctx, c.restPath("spaces"), &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Spaces))
	for _, s := range out.Spaces {
		names = append(names, s.Name)
	}
	return names, nil
}

type pagesResponse struct {
	PageSummaries []struct {
		Name string `json:"name"`
	} `json:"pageSummaries"`
}

func (c *HTTPClient) GetPagesNames(ctx context.Context, space string) ([]string, error) {
	var out pagesResponse
	if err := c.getJSON(ctx, c.restPath("spaces", space, "pages"), &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.PageSummaries))
	for _, p := range out.PageSummaries {
		names = append(names, p.Name)
	}
	return names, nil
}

// GetRenderedPageContent returns the page rendered as HTML without the skin.
func (c *HTTPClient) GetRenderedPageContent(ctx context.Context, id model.Identity) (string, error) {
	path := "/bin/view/" + url.PathEscape(id.Space) + "/" + url.PathEscape(id.Name) + "?xpage=plain&outputSyntax=annotatedxhtml"
	body, err := c.do(ctx, http.MethodGet, path, nil, "", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type pageUpdate struct {
	Content string `json:"content"`
	Syntax  string `json:"syntax,omitempty"`
}

func (c *HTTPClient) SavePageContent(ctx context.Context, id model.Identity, content, syntax string) error {
	payload, err := json.Marshal(pageUpdate{Content: content, Syntax: syntax})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, c.pagePath(id), payload, "application/json", nil)
	return err
}

type attachmentsResponse struct {
	Attachments []struct {
		Name string `json:"name"`
	} `json:"attachments"`
}

func (c *HTTPClient) GetDocumentAttachmentList(ctx context.Context, id model.Identity) ([]string, error) {
	var out attachmentsResponse
	if err := c.getJSON(ctx, c.pagePath(id)+"/attachments", &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Attachments))
	for _, a := range out.Attachments {
		names = append(names, a.Name)
	}
	return names, nil
}

func (c *HTTPClient) GetAttachmentContent(ctx context.Context, id model.Identity, name string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.pagePath(id)+"/attachments/"+url.PathEscape(name), nil, "", nil)
}

// AddAttachment uploads a local file, named after its base name.
func (c *HTTPClient) AddAttachment(ctx context.Context, space, page, localFilePath string) error {
	// #nosec G304 - the path is a file the user chose to attach
	data, err := os.ReadFile(localFilePath)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	id := model.Identity{Space: space, Name: page}
	path := c.pagePath(id) + "/attachments/" + url.PathEscape(filepath.Base(localFilePath))
	_, err = c.do(ctx, http.MethodPut, path, data, "application/octet-stream", nil)
	return err
}

func (c *HTTPClient) restPath(segments ...string) string {
	var b strings.Builder
	b.WriteString("/rest/wikis/")
	b.WriteString(url.PathEscape(c.wiki))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *HTTPClient) pagePath(id model.Identity) string {
	return c.restPath("spaces", id.Space, "pages", id.Name)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, "", map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends one request, retrying network failures, 429 and 5xx responses.
// Any other non-2xx status is returned as an HTTPError at once; a 401 also
// drops the logged-in flag.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, contentType string, headers map[string]string) ([]byte, error) {
	c.mu.RLock()
	username, password := c.username, c.password
	c.mu.RUnlock()

	correlationID := uuid.NewString()
	log := logging.WithContext(ctx).With("method", method, logging.Path(path), "correlation_id", correlationID)

	payload, err := retry.DoWithData(
		func() ([]byte, error) {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			if username != "" {
				req.SetBasicAuth(username, password)
			}
			req.Header.Set("X-Correlation-Id", correlationID)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			data, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
				return data, nil
			}
			httpErr := &HTTPError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    strings.TrimSpace(firstLine(string(data))),
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, httpErr
			}
			return nil, retry.Unrecoverable(httpErr)
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries+1),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("retrying request", "attempt", n+1, logging.Err(err))
		}),
	)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			c.mu.Lock()
			c.loggedIn = false
			c.mu.Unlock()
		}
		log.Debug("request failed", logging.Err(err))
		return nil, err
	}
	return payload, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
