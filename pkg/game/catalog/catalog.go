package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"limeal.fr/mcboot/pkg/game/manifests"
	"limeal.fr/mcboot/pkg/jsonscan"
	"limeal.fr/mcboot/pkg/utils"
)

const DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

type Channel string

const (
	ChannelRelease  Channel = "release"
	ChannelSnapshot Channel = "snapshot"
	ChannelOldBeta  Channel = "old_beta"
	ChannelOldAlpha Channel = "old_alpha"
)

// Channels in display order.
var Channels = []Channel{ChannelRelease, ChannelSnapshot, ChannelOldBeta, ChannelOldAlpha}

// Summary is one catalog entry.
type Summary struct {
	ID        string
	Channel   Channel
	DetailURL string
}

// Catalog keeps the document order of its versions. Lookups by id return the
// last entry carrying that id.
type Catalog struct {
	Latest   manifests.LatestVersions
	versions []Summary
	index    map[string]int
}

func New(versions []Summary) *Catalog {
	c := &Catalog{
		versions: versions,
		index:    make(map[string]int, len(versions)),
	}
	for i, v := range versions {
		c.index[v.ID] = i
	}
	return c
}

func (c *Catalog) Len() int {
	return len(c.versions)
}

func (c *Catalog) Versions() []Summary {
	out := make([]Summary, len(c.versions))
	copy(out, c.versions)
	return out
}

func (c *Catalog) Get(id string) (Summary, bool) {
	i, ok := c.index[id]
	if !ok {
		return Summary{}, false
	}
	return c.versions[i], true
}

func (c *Catalog) ByChannel(ch Channel) []Summary {
	var out []Summary
	for _, v := range c.versions {
		if v.Channel == ch {
			out = append(out, v)
		}
	}
	return out
}

/////////////////////////////////////////////////////////////////////
// Resolver
/////////////////////////////////////////////////////////////////////

type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type Resolver struct {
	Fetcher TextFetcher
	URL     string
}

func NewResolver(f TextFetcher, url string) *Resolver {
	if url == "" {
		url = DefaultManifestURL
	}
	return &Resolver{Fetcher: f, URL: url}
}

// Load fetches and parses the catalog. Only a failed fetch is an error.
func (r *Resolver) Load(ctx context.Context) (*Catalog, error) {
	text, err := r.Fetcher.FetchText(ctx, r.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch version catalog: %w", err)
	}
	c := Parse(text)
	logger.Debug("catalog loaded", utils.URLKey, r.URL, utils.CountKey, c.Len())
	return c, nil
}

// Parse decodes a catalog document. Documents that do not decode are scanned
// for every object carrying an id instead. Entries without an id or a detail
// url are skipped.
func Parse(text string) *Catalog {
	var m manifests.MCManifest
	err := json.Unmarshal([]byte(text), &m)
	if err == nil {
		versions := make([]Summary, 0, len(m.Versions))
		for _, v := range m.Versions {
			if v.ID == "" || v.URL == "" {
				continue
			}
			versions = append(versions, Summary{ID: v.ID, Channel: Channel(v.Type), DetailURL: v.URL})
		}
		c := New(versions)
		c.Latest = m.Latest
		return c
	}
	logger.Warn("catalog is not valid JSON, scanning it", utils.ErrorKey, err)

	var versions []Summary
	for _, obj := range jsonscan.ObjectsWithKey(text, "id") {
		id, ok := jsonscan.FindString(obj, "id")
		if !ok || id == "" {
			continue
		}
		url, ok := jsonscan.FindString(obj, "url")
		if !ok || url == "" {
			continue
		}
		typ, _ := jsonscan.FindString(obj, "type")
		versions = append(versions, Summary{ID: id, Channel: Channel(typ), DetailURL: url})
	}
	return New(versions)
}
