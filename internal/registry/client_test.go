package registry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/codeql-community/qldist/internal/version"
)

func anyVersion() version.Constraint {
	return version.Constraint{
		Description: "any version",
		Check:       func(*semver.Version) bool { return true },
	}
}

func majorTwo() version.Constraint {
	return version.Constraint{
		Description: "major version 2",
		Check:       func(v *semver.Version) bool { return v.Major() == 2 },
	}
}

func oneAsset(id int64) []Asset {
	return []Asset{{ID: id, Name: "codeql-bundle.zip", Size: 1024}}
}

func serveReleases(t *testing.T, releases []Release) (*Client, *int) {
	t.Helper()
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/repos/github/codeql-cli-binaries/releases" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(releases)
	}))
	t.Cleanup(server.Close)
	return New("github", "codeql-cli-binaries", WithBaseURL(server.URL), WithHTTPClient(server.Client())), &requests
}

func TestListReleases_Headers(t *testing.T) {
	var gotAccept, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithToken("secret-pat"))

	if _, err := c.ListReleases(context.Background()); err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if gotAccept != acceptJSON {
		t.Errorf("Accept = %q, want %q", gotAccept, acceptJSON)
	}
	if gotAuth != "token secret-pat" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "token secret-pat")
	}
}

func TestListReleases_NoTokenNoAuthHeader(t *testing.T) {
	var authPresent bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authPresent = r.Header["Authorization"]
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if _, err := c.ListReleases(context.Background()); err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if authPresent {
		t.Error("Authorization header sent without a configured token")
	}
}

func TestLatestRelease_ConstraintFiltering(t *testing.T) {
	c, _ := serveReleases(t, []Release{
		{ID: 1, Name: "1.9.0", TagName: "v1.9.0", CreatedAt: "2023-01-01T00:00:00Z", Assets: oneAsset(11)},
		{ID: 2, Name: "2.3.1", TagName: "v2.3.1", CreatedAt: "2023-03-01T00:00:00Z", Assets: oneAsset(12)},
		{ID: 3, Name: "2.3.0", TagName: "v2.3.0", CreatedAt: "2023-02-01T00:00:00Z", Assets: oneAsset(13)},
		{ID: 4, Name: "3.0.0", TagName: "v3.0.0", CreatedAt: "2023-04-01T00:00:00Z", Assets: oneAsset(14)},
	})

	got, err := c.LatestRelease(context.Background(), majorTwo(), false)
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("selected release ID = %d, want 2 (v2.3.1)", got.ID)
	}
}

func TestLatestRelease_PrereleaseFlag(t *testing.T) {
	releases := []Release{
		{ID: 1, Name: "2.3.0", TagName: "v2.3.0", CreatedAt: "2023-01-01T00:00:00Z", Assets: oneAsset(11)},
		{ID: 2, Name: "2.4.0-rc1", TagName: "v2.4.0-rc1", CreatedAt: "2023-02-01T00:00:00Z", Prerelease: true, Assets: oneAsset(12)},
	}

	c, _ := serveReleases(t, releases)
	got, err := c.LatestRelease(context.Background(), anyVersion(), false)
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("with prereleases excluded, selected ID = %d, want 1", got.ID)
	}

	c, _ = serveReleases(t, releases)
	got, err = c.LatestRelease(context.Background(), anyVersion(), true)
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("with prereleases included, selected ID = %d, want 2", got.ID)
	}
}

func TestLatestRelease_SkipsUnparseableTags(t *testing.T) {
	c, _ := serveReleases(t, []Release{
		{ID: 1, Name: "bundle", TagName: "codeql-bundle-20240101", CreatedAt: "2024-01-01T00:00:00Z", Assets: oneAsset(11)},
		{ID: 2, Name: "2.1.0", TagName: "v2.1.0", CreatedAt: "2023-01-01T00:00:00Z", Assets: oneAsset(12)},
	})

	got, err := c.LatestRelease(context.Background(), anyVersion(), false)
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("selected ID = %d, want 2", got.ID)
	}
}

func TestLatestRelease_TimestampTieBreak(t *testing.T) {
	c, _ := serveReleases(t, []Release{
		{ID: 1, Name: "2.3.1 respin", TagName: "v2.3.1", CreatedAt: "2023-03-02T00:00:00Z", Assets: oneAsset(11)},
		{ID: 2, Name: "2.3.1", TagName: "v2.3.1", CreatedAt: "2023-03-01T00:00:00Z", Assets: oneAsset(12)},
	})

	got, err := c.LatestRelease(context.Background(), anyVersion(), false)
	if err != nil {
		t.Fatalf("LatestRelease failed: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("selected ID = %d, want 1 (later creation timestamp)", got.ID)
	}
}

func TestLatestRelease_NoCompatibleRelease(t *testing.T) {
	c, _ := serveReleases(t, []Release{
		{ID: 1, Name: "1.9.0", TagName: "v1.9.0", CreatedAt: "2023-01-01T00:00:00Z", Assets: oneAsset(11)},
	})

	_, err := c.LatestRelease(context.Background(), majorTwo(), false)
	if !errors.Is(err, ErrNoCompatibleRelease) {
		t.Errorf("error = %v, want ErrNoCompatibleRelease", err)
	}
}

func TestLatestRelease_UnexpectedAssetCount(t *testing.T) {
	tests := []struct {
		name   string
		assets []Asset
	}{
		{"zero assets", nil},
		{"two assets", []Asset{{ID: 1, Name: "a.zip"}, {ID: 2, Name: "b.zip"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := serveReleases(t, []Release{
				{ID: 1, Name: "2.0.0", TagName: "v2.0.0", CreatedAt: "2023-01-01T00:00:00Z", Assets: tt.assets},
			})

			_, err := c.LatestRelease(context.Background(), anyVersion(), false)
			var assetErr *UnexpectedAssetCountError
			if !errors.As(err, &assetErr) {
				t.Fatalf("error = %v, want UnexpectedAssetCountError", err)
			}
			if assetErr.Count != len(tt.assets) {
				t.Errorf("Count = %d, want %d", assetErr.Count, len(tt.assets))
			}
		})
	}
}

func TestListReleases_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Reset", "1700000000")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := c.ListReleases(context.Background())

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if rateErr.ResetAt.Unix() != 1700000000 {
		t.Errorf("ResetAt = %v, want unix 1700000000", rateErr.ResetAt)
	}
}

func TestListReleases_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := c.ListReleases(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Body != "boom" {
		t.Errorf("Body = %q, want %q", apiErr.Body, "boom")
	}
}

func TestDownloadAsset(t *testing.T) {
	content := []byte("fake archive bytes")
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		if r.URL.Path != "/repos/github/codeql-cli-binaries/releases/assets/42" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		w.Write(content)
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	stream, err := c.DownloadAsset(context.Background(), Asset{ID: 42, Name: "codeql-bundle.zip"})
	if err != nil {
		t.Fatalf("DownloadAsset failed: %v", err)
	}
	defer stream.Body.Close()

	if stream.ContentLength != int64(len(content)) {
		t.Errorf("ContentLength = %d, want %d", stream.ContentLength, len(content))
	}
	if gotAccept != acceptOctetStream {
		t.Errorf("Accept = %q, want %q", gotAccept, acceptOctetStream)
	}
	got, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("body = %q, want %q", got, content)
	}
}

// insecureTLSClient trusts any certificate so a test client can talk to
// more than one httptest TLS server.
func insecureTLSClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

func TestDownloadAsset_CrossHostRedirectStripsAuth(t *testing.T) {
	content := []byte("asset content")

	var storageAuth []string
	var storageAccept string
	storage := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageAuth = r.Header["Authorization"]
		storageAccept = r.Header.Get("Accept")
		w.Write(content)
	}))
	defer storage.Close()

	var apiAuth string
	api := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiAuth = r.Header.Get("Authorization")
		http.Redirect(w, r, storage.URL+"/blob", http.StatusFound)
	}))
	defer api.Close()

	c := New("github", "codeql-cli-binaries",
		WithBaseURL(api.URL),
		WithHTTPClient(insecureTLSClient()),
		WithToken("secret-pat"))

	stream, err := c.DownloadAsset(context.Background(), Asset{ID: 7})
	if err != nil {
		t.Fatalf("DownloadAsset failed: %v", err)
	}
	defer stream.Body.Close()

	if apiAuth != "token secret-pat" {
		t.Errorf("registry request Authorization = %q, want token", apiAuth)
	}
	if len(storageAuth) != 0 {
		t.Errorf("cross-host request carried Authorization %v, want none", storageAuth)
	}
	if storageAccept != acceptOctetStream {
		t.Errorf("cross-host Accept = %q, want %q (semantics preserved)", storageAccept, acceptOctetStream)
	}

	got, _ := io.ReadAll(stream.Body)
	if string(got) != string(content) {
		t.Errorf("body = %q, want %q", got, content)
	}
}

func TestDownloadAsset_SameHostRedirectKeepsAuth(t *testing.T) {
	var finalAuth string
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			finalAuth = r.Header.Get("Authorization")
			w.Write([]byte("ok"))
			return
		}
		http.Redirect(w, r, server.URL+"/final", http.StatusTemporaryRedirect)
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries",
		WithBaseURL(server.URL),
		WithHTTPClient(insecureTLSClient()),
		WithToken("secret-pat"))

	stream, err := c.DownloadAsset(context.Background(), Asset{ID: 7})
	if err != nil {
		t.Fatalf("DownloadAsset failed: %v", err)
	}
	stream.Body.Close()

	if finalAuth != "token secret-pat" {
		t.Errorf("same-host redirect Authorization = %q, want token preserved", finalAuth)
	}
}

func TestDownloadAsset_InsecureRedirect(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://storage.example.com/blob", http.StatusFound)
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries",
		WithBaseURL(server.URL),
		WithHTTPClient(insecureTLSClient()))

	_, err := c.DownloadAsset(context.Background(), Asset{ID: 7})
	if !errors.Is(err, ErrInsecureRedirect) {
		t.Errorf("error = %v, want ErrInsecureRedirect", err)
	}
}

func TestDownloadAsset_RedirectCapYieldsLastResponse(t *testing.T) {
	var server *httptest.Server
	var hits int
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, server.URL+"/again", http.StatusFound)
	}))
	defer server.Close()

	c := New("github", "codeql-cli-binaries",
		WithBaseURL(server.URL),
		WithHTTPClient(insecureTLSClient()))

	_, err := c.DownloadAsset(context.Background(), Asset{ID: 7})

	// The capped loop returns the final 302, which the status check then
	// reports as an API error rather than a distinct redirect error.
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", apiErr.StatusCode)
	}
	if hits != maxRedirects+1 {
		t.Errorf("request count = %d, want %d", hits, maxRedirects+1)
	}
}
