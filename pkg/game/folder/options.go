package folder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Options is the key:value settings document of the game. Key order is kept
// so rewriting a file only touches the values that changed.
type Options struct {
	keys   []string
	values map[string]string
}

func NewOptions() *Options {
	return &Options{values: make(map[string]string)}
}

// ParseOptions ignores blank lines, # comments and lines without a key.
func ParseOptions(r io.Reader) (*Options, error) {
	o := NewOptions()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found || key == "" {
			continue
		}
		o.Set(key, value)
	}
	return o, sc.Err()
}

// ReadOptions returns an empty document when path does not exist.
func ReadOptions(path string) (*Options, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewOptions(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseOptions(f)
}

func (o *Options) Get(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Options) Set(key, value string) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *Options) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *Options) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, k := range o.keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(o.values[k])
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

func (o *Options) Save(path string) error {
	var buf bytes.Buffer
	if _, err := o.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

/////////////////////////////////////////////////////////////////////
// Tuning
/////////////////////////////////////////////////////////////////////

type Booster string

const (
	BoosterFastRender   Booster = "fast_render"
	BoosterChunkBuilder Booster = "chunk_builder"
	BoosterEntityCull   Booster = "entity_cull"
	BoosterLowParticles Booster = "low_particles"
	BoosterSmoothFPS    Booster = "smooth_fps"
)

var boosterOptions = map[Booster][][2]string{
	BoosterFastRender:   {{"renderClouds", `"fast"`}, {"graphicsMode", "1"}},
	BoosterChunkBuilder: {{"chunkBuilder", "1"}},
	BoosterEntityCull:   {{"entityShadows", "false"}},
	BoosterLowParticles: {{"particles", "2"}},
	BoosterSmoothFPS:    {{"enableVsync", "true"}},
}

func ParseBooster(s string) (Booster, error) {
	b := Booster(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := boosterOptions[b]; !ok {
		return "", fmt.Errorf("unknown booster %q", s)
	}
	return b, nil
}

// Tuning is the set of performance settings written before every launch.
type Tuning struct {
	RenderDistance int
	Boosters       []Booster
}

const maxSimulationDistance = 12

func (o *Options) ApplyTuning(t Tuning) {
	for _, b := range t.Boosters {
		for _, kv := range boosterOptions[b] {
			o.Set(kv[0], kv[1])
		}
	}

	if t.RenderDistance > 0 {
		o.Set("renderDistance", strconv.Itoa(t.RenderDistance))
		o.Set("simulationDistance", strconv.Itoa(min(t.RenderDistance, maxSimulationDistance)))
	}
	o.Set("ao", "1")
	o.Set("mipmapLevels", "2")
	o.Set("biomeBlendRadius", "2")
}

// ApplyTuning rewrites the options document of the installation in place.
func (g *Installation) ApplyTuning(t Tuning) error {
	opts, err := ReadOptions(g.OptionsPath())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", OptionsFile, err)
	}
	opts.ApplyTuning(t)
	if err := opts.Save(g.OptionsPath()); err != nil {
		return fmt.Errorf("failed to write %s: %w", OptionsFile, err)
	}
	return nil
}
