package launcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"limeal.fr/mcboot/pkg/utils"
)

// RuntimeCeiling is the highest major version the selection policy scans for.
const RuntimeCeiling = 30

const (
	DefaultScanDepth    = 4
	DefaultQueryTimeout = 5 * time.Second
)

// Runtime is one installed java executable.
type Runtime struct {
	Major   int
	Path    string
	Version string
}

func (r Runtime) String() string {
	return fmt.Sprintf("java %d (%s)", r.Major, r.Path)
}

/////////////////////////////////////////////////////////////////////
// Runtimes
/////////////////////////////////////////////////////////////////////

// Runtimes maps a major version to the first runtime discovered for it. It is
// filled once by a RuntimeLocator and only read afterwards.
type Runtimes struct {
	host    *Runtime
	byMajor map[int]Runtime
	order   []int
}

// NewRuntimes seeds the map with the hosting runtime, when there is one.
func NewRuntimes(host *Runtime) *Runtimes {
	r := &Runtimes{byMajor: map[int]Runtime{}}
	if host != nil {
		h := *host
		r.host = &h
		r.Add(h)
	}
	return r
}

// Add records rt unless a runtime with the same major version is already
// known. It reports whether rt was added.
func (r *Runtimes) Add(rt Runtime) bool {
	if rt.Major <= 0 {
		return false
	}
	if _, ok := r.byMajor[rt.Major]; ok {
		return false
	}
	r.byMajor[rt.Major] = rt
	r.order = append(r.order, rt.Major)
	return true
}

func (r *Runtimes) Get(major int) (Runtime, bool) {
	rt, ok := r.byMajor[major]
	return rt, ok
}

func (r *Runtimes) Host() (Runtime, bool) {
	if r.host == nil {
		return Runtime{}, false
	}
	return *r.host, true
}

func (r *Runtimes) Len() int {
	return len(r.byMajor)
}

// Majors returns the known major versions in ascending order.
func (r *Runtimes) Majors() []int {
	majors := make([]int, 0, len(r.byMajor))
	for m := range r.byMajor {
		majors = append(majors, m)
	}
	sort.Ints(majors)
	return majors
}

// All returns the known runtimes in ascending major order.
func (r *Runtimes) All() []Runtime {
	out := make([]Runtime, 0, len(r.byMajor))
	for _, m := range r.Majors() {
		out = append(out, r.byMajor[m])
	}
	return out
}

// Highest returns the largest known major version, 0 when empty.
func (r *Runtimes) Highest() int {
	majors := r.Majors()
	if len(majors) == 0 {
		return 0
	}
	return majors[len(majors)-1]
}

// FindRuntimeForRequirement picks the runtime to launch a game requiring the
// given major version. The highest runtime at or above the requirement wins,
// then an exact match in discovery order, then the first available major
// between required and RuntimeCeiling. The hosting runtime is the last resort.
func (r *Runtimes) FindRuntimeForRequirement(required int) (Runtime, bool) {
	best, found := Runtime{}, false
	for _, rt := range r.byMajor {
		if rt.Major >= required && (!found || rt.Major > best.Major) {
			best, found = rt, true
		}
	}
	if found {
		return best, true
	}

	for _, m := range r.order {
		if m == required {
			return r.byMajor[m], true
		}
	}

	for m := required; m <= RuntimeCeiling; m++ {
		if rt, ok := r.byMajor[m]; ok {
			return rt, true
		}
	}

	return r.Host()
}

/////////////////////////////////////////////////////////////////////
// Discovery
/////////////////////////////////////////////////////////////////////

// VersionQuery runs an executable and returns the version string it reports.
type VersionQuery func(ctx context.Context, exe string) (string, error)

type RuntimeLocator struct {
	// Roots are the directories whose descendants are tested for a runtime.
	Roots []string
	// Subpaths are tried, in order, under every scanned directory.
	Subpaths []string
	MaxDepth int
	Timeout  time.Duration
	Query    VersionQuery
	// HostPath is the runtime used when nothing else matches. Empty means
	// JAVA_HOME, then PATH.
	HostPath string
}

func NewRuntimeLocator() *RuntimeLocator {
	home, _ := os.UserHomeDir()
	return &RuntimeLocator{
		Roots:    DefaultRuntimeRoots(runtime.GOOS, home),
		Subpaths: DefaultRuntimeSubpaths(runtime.GOOS),
		MaxDepth: DefaultScanDepth,
		Timeout:  DefaultQueryTimeout,
		Query:    QueryVersion,
	}
}

func javaExecutable(goos string) string {
	if goos == "windows" {
		return "java.exe"
	}
	return "java"
}

// DefaultRuntimeSubpaths lists where a java executable sits inside an
// installation directory.
func DefaultRuntimeSubpaths(goos string) []string {
	exe := javaExecutable(goos)
	return []string{
		filepath.Join("bin", exe),
		filepath.Join("Contents", "Home", "bin", exe),
		filepath.Join("jre", "bin", exe),
	}
}

// DefaultRuntimeRoots lists the well-known install locations of goos.
func DefaultRuntimeRoots(goos, home string) []string {
	switch goos {
	case "darwin":
		roots := []string{
			"/Library/Java/JavaVirtualMachines",
			filepath.Join(home, "Library/Java/JavaVirtualMachines"),
			"/opt/homebrew/opt/openjdk/libexec/openjdk.jdk/Contents/Home",
			"/usr/local/opt/openjdk/libexec/openjdk.jdk/Contents/Home",
			filepath.Join(home, "Library/Application Support/minecraft/runtime"),
		}
		for _, prefix := range []string{"/opt/homebrew", "/usr/local"} {
			roots = append(roots, filepath.Join(prefix, "Cellar", "openjdk"))
			for _, v := range []string{"21", "17", "11", "8"} {
				roots = append(roots, filepath.Join(prefix, "Cellar", "openjdk@"+v))
			}
		}
		return roots
	case "windows":
		roots := []string{
			`C:\Program Files\Java`,
			`C:\Program Files\Eclipse Adoptium`,
			`C:\Program Files\Zulu`,
			`C:\Program Files\Microsoft`,
		}
		if appData := os.Getenv("APPDATA"); appData != "" {
			roots = append(roots, filepath.Join(appData, ".minecraft", "runtime"))
		}
		return roots
	}
	return []string{
		"/usr/lib/jvm",
		"/usr/java",
		filepath.Join(home, ".sdkman", "candidates", "java"),
		filepath.Join(home, ".minecraft", "runtime"),
	}
}

// HostRuntimePath returns the java executable of JAVA_HOME, or the first one
// on PATH.
func HostRuntimePath() string {
	exe := javaExecutable(runtime.GOOS)
	if jh := os.Getenv("JAVA_HOME"); jh != "" {
		p := filepath.Join(jh, "bin", exe)
		if utils.FileExists(p) {
			return p
		}
	}
	p, err := exec.LookPath(exe)
	if err != nil {
		return ""
	}
	return p
}

// Discover builds the runtime map: the hosting runtime first, then every
// runtime found under Roots. A candidate that cannot be queried is skipped.
func (l *RuntimeLocator) Discover(ctx context.Context) *Runtimes {
	start := time.Now()

	var host *Runtime
	hostPath := l.HostPath
	if hostPath == "" {
		hostPath = HostRuntimePath()
	}
	if hostPath != "" {
		if rt, ok := l.probe(ctx, hostPath); ok {
			host = &rt
		}
	}

	rts := NewRuntimes(host)
	for _, root := range l.Roots {
		if ctx.Err() != nil {
			break
		}
		if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
			continue
		}
		l.scan(ctx, rts, root, 0)
	}

	logger.Info("runtime discovery finished", utils.CountKey, rts.Len(), utils.DurationKey, time.Since(start))
	return rts
}

func (l *RuntimeLocator) scan(ctx context.Context, rts *Runtimes, dir string, depth int) {
	if depth > l.MaxDepth || ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if !isDir(e, child) {
			continue
		}
		for _, sub := range l.Subpaths {
			exe := filepath.Join(child, sub)
			if !isExecutable(exe) {
				continue
			}
			if rt, ok := l.probe(ctx, exe); ok && rts.Add(rt) {
				logger.Debug("runtime found", utils.RuntimeKey, rt.Major, utils.PathKey, rt.Path)
			}
			break
		}
		l.scan(ctx, rts, child, depth+1)
	}
}

func (l *RuntimeLocator) probe(ctx context.Context, exe string) (Runtime, bool) {
	query := l.Query
	if query == nil {
		query = QueryVersion
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := query(qctx, exe)
	if err != nil {
		logger.Debug("runtime not usable", utils.PathKey, exe, utils.ErrorKey, err)
		return Runtime{}, false
	}
	major := MajorOf(v)
	if major <= 0 {
		return Runtime{}, false
	}
	abs, err := filepath.Abs(exe)
	if err != nil {
		abs = exe
	}
	return Runtime{Major: major, Path: abs, Version: v}, true
}

func isDir(e os.DirEntry, path string) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode().Perm()&0o111 != 0
}

/////////////////////////////////////////////////////////////////////
// Version parsing
/////////////////////////////////////////////////////////////////////

var versionRe = regexp.MustCompile(`"(.*?)"`) // extracts "17.0.10" or "1.8.0_392"

// QueryVersion runs `exe -version` and returns the quoted version string of
// the first line of its combined output.
func QueryVersion(ctx context.Context, exe string) (string, error) {
	cmd := exec.CommandContext(ctx, exe, "-version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return ParseVersionOutput(string(out))
}

// ParseVersionOutput extracts the quoted version of the first output line.
func ParseVersionOutput(out string) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader([]byte(out)))
	if !sc.Scan() {
		return "", fmt.Errorf("empty version output")
	}
	m := versionRe.FindStringSubmatch(sc.Text())
	if len(m) < 2 {
		return "", fmt.Errorf("failed to parse version from: %s", sc.Text())
	}
	return m[1], nil
}

// MajorOf classifies a runtime version string: "1.8.0_392" is 8, "17.0.10"
// is 17. It returns 0 when v is not a version.
func MajorOf(v string) int {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "1.") {
		v = v[2:]
	}
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0
	}
	return n
}
