package connectors

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"limeal.fr/mcboot/pkg/utils"
)

// Pool keeps one connected Connector per mirror so every artifact of a launch
// reuses the same session.
type Pool struct {
	mu    sync.Mutex
	conns map[string]Connector
}

func NewPool() *Pool {
	return &Pool{conns: make(map[string]Connector)}
}

// SplitLocator separates a mirror locator into the URI of its connector and
// the path of the file inside it. For s3 locators the first path segment is
// the bucket and belongs to the connector.
func SplitLocator(uri string) (base string, remotePath string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid locator %q: %w", uri, err)
	}
	if parsed.Scheme == "" {
		return "", "", fmt.Errorf("locator %q has no scheme", uri)
	}

	root := url.URL{Scheme: parsed.Scheme, User: parsed.User, Host: parsed.Host, RawQuery: parsed.RawQuery, Path: "/"}
	remotePath = parsed.Path

	if parsed.Scheme == S3_SCHEME {
		bucket, rest, _ := strings.Cut(strings.TrimLeft(parsed.Path, "/"), "/")
		if bucket == "" {
			return "", "", fmt.Errorf("locator %q has no bucket", uri)
		}
		root.Path = "/" + bucket
		remotePath = "/" + rest
	}
	return root.String(), remotePath, nil
}

// Source implements utils.SourceResolver.
func (p *Pool) Source(uri string) (utils.Source, string, error) {
	base, remotePath, err := SplitLocator(uri)
	if err != nil {
		return nil, "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[base]; ok {
		return c, remotePath, nil
	}

	c := FindConnectorFromURI(base)
	if c == nil {
		return nil, "", fmt.Errorf("no connector for %s", uri)
	}
	if err := c.Connect(); err != nil {
		return nil, "", fmt.Errorf("failed to connect to %s: %w", c.GetURI(), err)
	}
	p.conns[base] = c
	return c, remotePath, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for base, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, base)
	}
	return firstErr
}
