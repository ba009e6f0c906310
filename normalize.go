package lookbook

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ImageRequest is one submitted image. NormalizedURL is derived from RawURL
// by Normalize and is the identity used for exact duplicate detection.
type ImageRequest struct {
	RawURL        string `json:"raw_url"`
	NormalizedURL string `json:"normalized_url"`
}

// NewImageRequest normalizes raw and returns the request.
func NewImageRequest(raw string) (ImageRequest, error) {
	norm, err := Normalize(raw)
	if err != nil {
		return ImageRequest{RawURL: raw}, err
	}
	return ImageRequest{RawURL: raw, NormalizedURL: norm}, nil
}

// linkShape is a known sharing-link family. rewrite reports false when the
// URL belongs to the host but not to a recognized path pattern.
type linkShape struct {
	name    string
	hosts   []string
	rewrite func(u *url.URL) (string, bool, error)
}

var linkShapes = []linkShape{
	{
		name:    "google-drive",
		hosts:   []string{"drive.google.com", "docs.google.com"},
		rewrite: rewriteDrive,
	},
	{
		name:    "dropbox",
		hosts:   []string{"dropbox.com", "www.dropbox.com", "dl.dropbox.com", "dl.dropboxusercontent.com"},
		rewrite: rewriteDropbox,
	},
	{
		name:    "github",
		hosts:   []string{"github.com", "www.github.com"},
		rewrite: rewriteGitHub,
	},
}

// Normalize canonicalizes an image URL. Known sharing-link shapes are
// rewritten to one direct-fetch form; any other URL is trimmed and gets its
// host lower-cased, with path and query left untouched.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)

	host := u.Hostname()
	for _, shape := range linkShapes {
		if !hostIn(host, shape.hosts) {
			continue
		}
		out, ok, err := shape.rewrite(u)
		if err != nil {
			return "", fmt.Errorf("%w: %s link: %w", ErrInvalidURL, shape.name, err)
		}
		if ok {
			return out, nil
		}
	}
	return u.String(), nil
}

func hostIn(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h {
			return true
		}
	}
	return false
}

var driveIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// rewriteDrive handles /file/d/<id>/..., /open?id=<id> and /uc?id=<id>.
func rewriteDrive(u *url.URL) (string, bool, error) {
	var id string
	switch segs := splitPath(u.Path); {
	case len(segs) >= 3 && segs[0] == "file" && segs[1] == "d":
		id = segs[2]
	case len(segs) == 1 && (segs[0] == "open" || segs[0] == "uc"):
		id = u.Query().Get("id")
		if id == "" {
			return "", false, fmt.Errorf("missing file id")
		}
	default:
		return "", false, nil
	}
	if !driveIDRe.MatchString(id) {
		return "", false, fmt.Errorf("bad file id %q", id)
	}
	return "https://drive.google.com/uc?export=download&id=" + id, true, nil
}

// rewriteDropbox handles /s/<key>/<name> and /scl/fi/<id>/<name> links. Only
// rlkey survives in the query; dl and raw toggles are dropped.
func rewriteDropbox(u *url.URL) (string, bool, error) {
	segs := splitPath(u.Path)
	switch {
	case len(segs) >= 3 && segs[0] == "s":
	case len(segs) >= 4 && segs[0] == "scl" && segs[1] == "fi":
	default:
		return "", false, nil
	}
	out := url.URL{
		Scheme:  "https",
		Host:    "dl.dropboxusercontent.com",
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	if key := u.Query().Get("rlkey"); key != "" {
		out.RawQuery = url.Values{"rlkey": {key}}.Encode()
	}
	return out.String(), true, nil
}

// rewriteGitHub handles /<owner>/<repo>/blob|raw/<ref>/<path>.
func rewriteGitHub(u *url.URL) (string, bool, error) {
	segs := splitPath(u.Path)
	if len(segs) < 5 || (segs[2] != "blob" && segs[2] != "raw") {
		return "", false, nil
	}
	rest := append([]string{segs[0], segs[1]}, segs[3:]...)
	out := url.URL{
		Scheme: "https",
		Host:   "raw.githubusercontent.com",
		Path:   "/" + strings.Join(rest, "/"),
	}
	return out.String(), true, nil
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
