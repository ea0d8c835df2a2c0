package registry

// Release is one published release as reported by the registry, an
// immutable snapshot of its state at fetch time.
type Release struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	TagName    string  `json:"tag_name"`
	CreatedAt  string  `json:"created_at"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release. Releases consumed by
// this system carry exactly one.
type Asset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}
