package webdav

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// File names per data class, fixed so every installation finds the same
// objects in a shared remote directory.
const (
	settingsFileName = "weibodr-settings.json"
	historyFileName  = "weibodr-history.json"
)

type Client interface {
	// GetFile fetches the remote object for the data class. A missing
	// object is reported as (nil, nil), not as an error.
	GetFile(ctx context.Context, class domain.DataClass) ([]byte, error)
	// PutFile creates or fully replaces the remote object in one request.
	PutFile(ctx context.Context, class domain.DataClass, data []byte) error
	// Test probes the endpoint with a PROPFIND, the most reliable way to
	// verify both reachability and credentials against WebDAV servers.
	Test(ctx context.Context) error
}

type client struct {
	log     zerolog.Logger
	http    *http.Client
	profile domain.ConnectionProfile
}

// NewClient builds an adapter bound to one profile. The profile's secret must
// already be decrypted; the adapter never touches the vault.
func NewClient(log logger.Logger, profile domain.ConnectionProfile) Client {
	return &client{
		log:     log.With().Str("module", "webdav").Str("profile", profile.Name).Logger(),
		http:    &http.Client{Timeout: 30 * time.Second},
		profile: profile,
	}
}

func (c *client) GetFile(ctx context.Context, class domain.DataClass) ([]byte, error) {
	remoteURL, err := c.resolveURL(class)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassTransport, "bad-request", err)
	}
	req.SetBasicAuth(c.profile.Username, c.profile.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.Debug().Str("class", string(class)).Msg("remote object absent")
		return nil, nil
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassTransport, "read-failed", err)
	}

	c.log.Debug().Str("class", string(class)).Int("bytes", len(data)).Msg("remote object fetched")
	return data, nil
}

func (c *client) PutFile(ctx context.Context, class domain.DataClass, data []byte) error {
	remoteURL, err := c.resolveURL(class)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, remoteURL, bytes.NewReader(data))
	if err != nil {
		return domain.NewSyncError(domain.ErrorClassTransport, "bad-request", err)
	}
	req.SetBasicAuth(c.profile.Username, c.profile.Secret)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// a PUT expects the parent collection to exist
	if resp.StatusCode == http.StatusNotFound {
		return domain.NewSyncError(domain.ErrorClassNotFound, "remote-dir-missing",
			errors.Errorf("remote directory not found for %s", remoteURL))
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	c.log.Debug().Str("class", string(class)).Int("bytes", len(data)).Msg("remote object replaced")
	return nil
}

func (c *client) Test(ctx context.Context) error {
	if c.profile.URL == "" || c.profile.Username == "" || c.profile.Secret == "" {
		return domain.NewSyncError(domain.ErrorClassFormat, "incomplete-profile",
			errors.New("url, username and password are required"))
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", c.profile.URL, nil)
	if err != nil {
		return domain.NewSyncError(domain.ErrorClassTransport, "bad-request", err)
	}
	req.SetBasicAuth(c.profile.Username, c.profile.Secret)
	req.Header.Set("Depth", "0")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 207 Multi-Status is the usual WebDAV success answer
	if resp.StatusCode == http.StatusMultiStatus || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.NewSyncError(domain.ErrorClassNotFound, "url-not-found",
			errors.Errorf("remote URL not found: %s", c.profile.URL))
	}
	return classifyStatus(resp.StatusCode)
}

// resolveURL joins the profile URL, the remote directory and the per-class
// file name. A remote directory that already looks like a file path gets its
// final segment rewritten instead of nested under.
func (c *client) resolveURL(class domain.DataClass) (string, error) {
	fileName, err := classFileName(class)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(c.profile.URL)
	if err != nil {
		return "", domain.NewSyncError(domain.ErrorClassFormat, "invalid-url", err)
	}

	dir := strings.Trim(c.profile.RemoteDir, "/")
	if last := lastSegment(dir); strings.Contains(last, ".") {
		dir = strings.TrimSuffix(dir, last)
		dir = strings.Trim(dir, "/")
	}

	segments := []string{strings.TrimSuffix(base.Path, "/")}
	if dir != "" {
		segments = append(segments, dir)
	}
	segments = append(segments, fileName)
	base.Path = strings.Join(segments, "/")

	return base.String(), nil
}

func classFileName(class domain.DataClass) (string, error) {
	switch class {
	case domain.DataClassConfig:
		return settingsFileName, nil
	case domain.DataClassHistory:
		return historyFileName, nil
	default:
		return "", domain.NewSyncError(domain.ErrorClassFormat, "invalid-class",
			errors.Errorf("no remote file for data class %q", class))
	}
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// classifyStatus maps a non-success HTTP status onto the error taxonomy.
// 404 is handled by the callers because its meaning depends on the operation.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewSyncError(domain.ErrorClassAuth, "unauthorized",
			errors.Errorf("remote rejected credentials (HTTP %d)", status))
	case status == http.StatusInsufficientStorage:
		return domain.NewSyncError(domain.ErrorClassServer, "quota-exceeded",
			errors.New("remote storage quota exceeded (HTTP 507)"))
	case status >= 500:
		return domain.NewSyncError(domain.ErrorClassServer, "server-error",
			errors.Errorf("remote server error (HTTP %d)", status))
	default:
		return domain.NewSyncError(domain.ErrorClassServer, "request-rejected",
			errors.Errorf("remote rejected request (HTTP %d)", status))
	}
}

func classifyTransport(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return domain.NewSyncError(domain.ErrorClassTransport, "timeout", err)
	}
	return domain.NewSyncError(domain.ErrorClassTransport, "network", err)
}
