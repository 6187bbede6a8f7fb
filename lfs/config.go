package lfs

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-lfs/go-netrc/netrc"
	"github.com/rubyist/tracerx"
	"gopkg.in/ini.v1"
)

// KeyValueProvider is the external collaborator the host supplies for
// repository-local Git config and remote URL lookups. This package
// never parses the repository's main Git config itself; it only parses
// the `.lfsconfig` file, which is LFS-specific and has no other natural
// owner.
type KeyValueProvider interface {
	// Get returns the value for key (e.g. "lfs.url", "remote.origin.url",
	// "remote.origin.lfsurl") and whether it was set.
	Get(key string) (string, bool)
}

// ClientConfig is the resolved configuration for a Batch HTTP client.
type ClientConfig struct {
	Endpoint string // base URL, without the trailing /objects/batch
	Ref      string

	// Credentials. Token overrides Basic; if neither is set and no netrc
	// match is found, requests are anonymous.
	Token     string
	BasicUser string
	BasicPass string

	// CookieFile, when set, is a Netscape-format cookie jar file loaded
	// into the HTTP client's transport.
	CookieFile string

	// ProxyURL, when set, is a socks5://host:port URL the HTTP transport
	// dials through.
	ProxyURL string
}

// BatchURL returns the full Batch API endpoint.
func (c *ClientConfig) BatchURL() string {
	return strings.TrimSuffix(c.Endpoint, "/") + "/objects/batch"
}

// ResolveConfig implements the endpoint discovery order:
//  1. lfs.url from repository-local config
//  2. lfs.url from .lfsconfig at the repository root
//  3. remote.<name>.lfsurl for the chosen remote
//  4. derived from the remote URL
//
// repoConfig is the repository-local KeyValueProvider (item 1 and the
// remote.* lookups in items 3-4). repoRoot is the working directory
// containing .lfsconfig, if any. remoteName selects which remote's URL
// to fall back to.
func ResolveConfig(repoConfig KeyValueProvider, repoRoot, remoteName string) (*ClientConfig, error) {
	if v, ok := repoConfig.Get("lfs.url"); ok && v != "" {
		tracerx.Printf("lfs: endpoint from lfs.url (repo config): %s", v)
		return finishConfig(v, repoConfig, remoteName)
	}

	if v, ok := lfsConfigURL(repoRoot); ok && v != "" {
		tracerx.Printf("lfs: endpoint from .lfsconfig: %s", v)
		return finishConfig(v, repoConfig, remoteName)
	}

	if remoteName != "" {
		if v, ok := repoConfig.Get(fmt.Sprintf("remote.%s.lfsurl", remoteName)); ok && v != "" {
			tracerx.Printf("lfs: endpoint from remote.%s.lfsurl: %s", remoteName, v)
			return finishConfig(v, repoConfig, remoteName)
		}
	}

	if remoteName != "" {
		if remoteURL, ok := repoConfig.Get(fmt.Sprintf("remote.%s.url", remoteName)); ok && remoteURL != "" {
			derived, err := DeriveEndpoint(remoteURL)
			if err != nil {
				return nil, err
			}
			tracerx.Printf("lfs: endpoint derived from remote.%s.url: %s", remoteName, derived)
			return finishConfig(derived, repoConfig, remoteName)
		}
	}

	return nil, &ErrInvalidConfig{Reason: "no lfs.url, .lfsconfig, remote lfsurl, or remote url found"}
}

// lfsConfigURL reads lfs.url from .lfsconfig at repoRoot, if present.
// Local lfs.url always wins over this, which the caller already
// enforces by trying repoConfig first.
func lfsConfigURL(repoRoot string) (string, bool) {
	if repoRoot == "" {
		return "", false
	}
	path := filepath.Join(repoRoot, ".lfsconfig")
	cfg, err := ini.Load(path)
	if err != nil {
		return "", false
	}
	section := cfg.Section("lfs")
	if !section.HasKey("url") {
		return "", false
	}
	return section.Key("url").String(), true
}

// DeriveEndpoint derives a Batch endpoint from a bare remote URL: parse
// it, strip any git+ prefix, coerce git@host:path into https://host/path,
// then append /info/lfs.
func DeriveEndpoint(remoteURL string) (string, error) {
	remoteURL = strings.TrimPrefix(remoteURL, "git+")

	if host, path, ok := splitSCPLike(remoteURL); ok {
		return fmt.Sprintf("https://%s/%s/info/lfs", host, strings.TrimPrefix(path, "/")), nil
	}

	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", &ErrInvalidConfig{Reason: "cannot parse remote url: " + err.Error()}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return strings.TrimSuffix(u.String(), "/") + "/info/lfs", nil
}

// splitSCPLike recognizes git@host:path scp-like syntax. It deliberately
// does not match strings containing "://", so an explicit scheme always
// takes the url.Parse path instead.
func splitSCPLike(s string) (host, path string, ok bool) {
	if strings.Contains(s, "://") {
		return "", "", false
	}
	at := strings.Index(s, "@")
	colon := strings.Index(s, ":")
	if at < 0 || colon < 0 || colon < at {
		return "", "", false
	}
	return s[at+1 : colon], s[colon+1:], true
}

// finishConfig fills in credentials once the endpoint has been decided.
func finishConfig(endpoint string, repoConfig KeyValueProvider, remoteName string) (*ClientConfig, error) {
	cfg := &ClientConfig{Endpoint: endpoint}

	if v, ok := repoConfig.Get("lfs.url.ref"); ok {
		cfg.Ref = v
	}

	secure := strings.HasPrefix(strings.ToLower(endpoint), "https://")

	if token, ok := repoConfig.Get("lfs.token"); ok && token != "" {
		if !secure {
			return nil, &ErrInsecureCredential{URL: endpoint}
		}
		cfg.Token = token
		return cfg, nil
	}

	if user, ok := repoConfig.Get("lfs.user"); ok && user != "" {
		pass, _ := repoConfig.Get("lfs.password")
		if !secure {
			return nil, &ErrInsecureCredential{URL: endpoint}
		}
		cfg.BasicUser, cfg.BasicPass = user, pass
		return cfg, nil
	}

	if user, pass, ok := netrcCredentials(endpoint); ok {
		if !secure {
			return nil, &ErrInsecureCredential{URL: endpoint}
		}
		cfg.BasicUser, cfg.BasicPass = user, pass
		return cfg, nil
	}

	return cfg, nil
}

// netrcCredentials resolves credentials for endpoint's host from
// ~/.netrc. A missing or unreadable netrc file is not an error: the
// caller falls through to anonymous access.
func netrcCredentials(endpoint string) (user, pass string, ok bool) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", false
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", false
	}

	n, err := netrc.ParseFile(filepath.Join(home, ".netrc"))
	if err != nil {
		return "", "", false
	}

	machine := n.FindMachine(u.Hostname())
	if machine == nil {
		return "", "", false
	}
	return machine.Login, machine.Password, true
}

// checkSecure fails fast when credentials would be attached to a
// non-HTTPS URL. NewClient calls it, so a ClientConfig built outside of
// ResolveConfig gets the same check.
func (c *ClientConfig) checkSecure() error {
	if c.Token == "" && c.BasicUser == "" {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(c.Endpoint), "https://") {
		return &ErrInsecureCredential{URL: c.Endpoint}
	}
	return nil
}
