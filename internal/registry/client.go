// Package registry talks to a GitHub-style release registry: it lists
// releases, selects the newest one satisfying a version constraint, and
// streams release asset content.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/version"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "qldist"

	acceptJSON        = "application/vnd.github+json"
	acceptOctetStream = "application/octet-stream"

	// maxRedirects caps the manual redirect-following loop. Past the cap
	// the last response is returned and handled by the normal status path.
	maxRedirects = 20

	rateLimitResetHeader = "x-ratelimit-reset"

	// maxErrorBody bounds how much of an error response is kept for the
	// error message.
	maxErrorBody = 4 << 10
)

// Client retrieves releases for one owner/repo pair.
type Client struct {
	baseURL    *url.URL
	owner      string
	repo       string
	token      string
	httpClient *http.Client
	log        logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets a personal access token sent as an authorization header on
// requests to the registry host.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the registry API base URL (useful for testing).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if u, err := url.Parse(base); err == nil {
			c.baseURL = u
		}
	}
}

// WithLogger sets the logging sink.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the given repository.
func New(owner, repo string, opts ...Option) *Client {
	base, _ := url.Parse(defaultBaseURL)
	c := &Client{
		baseURL:    base,
		owner:      owner,
		repo:       repo,
		httpClient: http.DefaultClient,
		log:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Redirects are followed manually so the authorization header can be
	// stripped on cross-host hops; disable the transport's own following.
	hc := *c.httpClient
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.httpClient = &hc
	return c
}

// ListReleases fetches every release published for the repository.
func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, c.owner, c.repo)

	resp, err := c.get(ctx, u, acceptJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("parsing release listing: %w", err)
	}
	return releases, nil
}

// LatestRelease returns the newest release whose tag parses, satisfies the
// constraint, and (unless includePrerelease is set) is not a prerelease.
// Releases with equal versions are ordered by descending creation
// timestamp. Fails with ErrNoCompatibleRelease when nothing survives the
// filter and with UnexpectedAssetCountError when the chosen release does
// not carry exactly one asset.
func (c *Client) LatestRelease(ctx context.Context, constraint version.Constraint, includePrerelease bool) (*Release, error) {
	releases, err := c.ListReleases(ctx)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		release Release
		version *semver.Version
	}
	var candidates []candidate
	for _, r := range releases {
		v, ok := version.Parse(r.TagName)
		if !ok {
			c.log.Debug("skipping release with unparseable tag", "tag", r.TagName)
			continue
		}
		if r.Prerelease && !includePrerelease {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		candidates = append(candidates, candidate{release: r, version: v})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no release satisfies %s", ErrNoCompatibleRelease, constraint.Description)
	}

	// Stable sort keeps the registry's own order for exact ties. Creation
	// timestamps are fixed-width ISO 8601, so lexical comparison orders
	// them chronologically.
	sort.SliceStable(candidates, func(i, j int) bool {
		if cmp := version.Compare(candidates[i].version, candidates[j].version); cmp != 0 {
			return cmp > 0
		}
		return candidates[i].release.CreatedAt > candidates[j].release.CreatedAt
	})

	chosen := candidates[0].release
	if len(chosen.Assets) != 1 {
		return nil, &UnexpectedAssetCountError{Release: chosen.Name, Count: len(chosen.Assets)}
	}
	return &chosen, nil
}

// AssetStream is the body and response metadata of one asset download.
// The caller owns Body and must close it.
type AssetStream struct {
	Body          io.ReadCloser
	ContentLength int64
	Header        http.Header
}

// DownloadAsset requests the binary content of one release asset.
func (c *Client) DownloadAsset(ctx context.Context, asset Asset) (*AssetStream, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", c.baseURL, c.owner, c.repo, asset.ID)

	resp, err := c.get(ctx, u, acceptOctetStream)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return &AssetStream{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}

// get issues an authenticated GET and follows redirects manually. Every
// redirect target must use secure transport; when a redirect leaves the
// registry host the authorization header is dropped from subsequent
// requests so the token never reaches a third-party asset host.
func (c *Client) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	sendAuth := c.token != ""
	current := rawURL

	for redirects := 0; ; redirects++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)
		if sendAuth {
			req.Header.Set("Authorization", "token "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("requesting %s: %w", current, err)
		}

		if !isRedirect(resp.StatusCode) || redirects >= maxRedirects {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		if location == "" {
			return resp, nil
		}

		next, err := req.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parsing redirect target %q: %w", location, err)
		}
		if next.Scheme != "https" {
			return nil, fmt.Errorf("%w: %s", ErrInsecureRedirect, next)
		}
		if next.Host != c.baseURL.Host && sendAuth {
			c.log.Debug("dropping authorization header on cross-host redirect", "host", next.Host)
			sendAuth = false
		}
		current = next.String()
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// checkStatus maps a non-2xx response to the error taxonomy. A 403 carrying
// a rate-limit-reset header is a rate limit; anything else non-2xx is an
// API error with the (bounded) response body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusForbidden {
		if reset := resp.Header.Get(rateLimitResetHeader); reset != "" {
			if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
				return &RateLimitError{ResetAt: time.Unix(secs, 0).UTC()}
			}
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
