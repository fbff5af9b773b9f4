package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/launcher"
	"limeal.fr/mcboot/pkg/game/profile"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

const assetHash = "bdf48ef6b5d0d23bbb02e17d04865216179f510a"

// gameServer serves a one-version catalog and counts requests per path.
type gameServer struct {
	*httptest.Server
	mu     sync.Mutex
	hits   map[string]int
	status map[string]int
}

func newGameServer(t *testing.T) *gameServer {
	t.Helper()
	gs := &gameServer{hits: map[string]int{}, status: map[string]int{}}
	gs.Server = httptest.NewServer(http.HandlerFunc(gs.serve))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *gameServer) serve(w http.ResponseWriter, r *http.Request) {
	gs.mu.Lock()
	gs.hits[r.URL.Path]++
	code := gs.status[r.URL.Path]
	gs.mu.Unlock()
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	base := gs.URL
	switch r.URL.Path {
	case "/manifest.json":
		fmt.Fprintf(w, `{"latest":{"release":"1.20.4"},"versions":[{"id":"1.20.4","type":"release","url":"%s/v/1.20.4.json"}]}`, base)
	case "/v/1.20.4.json":
		fmt.Fprintf(w, `{
			"id": "1.20.4",
			"type": "release",
			"mainClass": "net.minecraft.client.main.Main",
			"assets": "8",
			"assetIndex": {"id": "8", "url": "%[1]s/idx/8.json"},
			"downloads": {"client": {"url": "%[1]s/client.jar"}},
			"javaVersion": {"component": "java-runtime-gamma", "majorVersion": 17},
			"libraries": [
				{"name": "com.example:lib:1.0", "downloads": {"artifact": {"path": "com/example/lib/1.0/lib-1.0.jar", "url": "%[1]s/libs/lib-1.0.jar"}}}
			]
		}`, base)
	case "/client.jar":
		w.Write([]byte("client"))
	case "/libs/lib-1.0.jar":
		w.Write([]byte("lib"))
	case "/idx/8.json":
		fmt.Fprintf(w, `{"objects":{"icons/icon.png":{"hash":%q,"size":1}}}`, assetHash)
	case "/res/bd/" + assetHash:
		w.Write([]byte("x"))
	default:
		http.NotFound(w, r)
	}
}

func (gs *gameServer) hitCount(path string) int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.hits[path]
}

func (gs *gameServer) fail(path string, code int) {
	gs.mu.Lock()
	gs.status[path] = code
	gs.mu.Unlock()
}

// writeFakeJava writes a runtime that reports version on -version, echoes its
// arguments otherwise and exits with code.
func writeFakeJava(t *testing.T, version string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as runtime")
	}
	java := filepath.Join(t.TempDir(), "jdk", "bin", "java")
	require.NoError(t, os.MkdirAll(filepath.Dir(java), 0o755))
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "-version" ]; then
  echo 'openjdk version "%s" 2024-01-16' 1>&2
  exit 0
fi
for a in "$@"; do echo "ARG $a"; done
echo "game stderr" 1>&2
exit %d
`, version, code)
	require.NoError(t, os.WriteFile(java, []byte(script), 0o755))
	return java
}

func newService(t *testing.T, gs *gameServer, java string, major int) (*Service, *folder.Installation) {
	t.Helper()
	return newServiceWithRuntimes(t, gs, launcher.NewRuntimes(&launcher.Runtime{Major: major, Path: java}))
}

func newServiceWithRuntimes(t *testing.T, gs *gameServer, rts *launcher.Runtimes) (*Service, *folder.Installation) {
	t.Helper()
	g, err := folder.Open(t.TempDir())
	require.NoError(t, err)

	f, err := utils.NewFetcher(utils.FetcherOptions{Attempts: 3})
	require.NoError(t, err)

	env := rules.EnvFor("linux", "amd64")
	svc, err := New(Config{
		Installation:     g,
		Fetcher:          f,
		ManifestURL:      gs.URL + "/manifest.json",
		VersionOptions:   version.Options{Env: env, Policy: rules.PolicyStrict, LibrariesBaseURL: gs.URL + "/libs"},
		Composer:         launcher.NewComposer(env),
		Workers:          2,
		ResourcesBaseURL: gs.URL + "/res/",
		Tuning:           folder.Tuning{RenderDistance: 16},
	}, WithRuntimes(rts))
	require.NoError(t, err)
	return svc, g
}

type collected struct {
	statuses []string
	progress []int
	lines    []string
	result   *Result
}

func collect(t *testing.T, ch <-chan Event) collected {
	t.Helper()
	var c collected
	for ev := range ch {
		switch ev.Kind {
		case EventStatus:
			c.statuses = append(c.statuses, ev.Status)
		case EventProgress:
			c.progress = append(c.progress, ev.Progress)
		case EventLog:
			c.lines = append(c.lines, ev.Line)
		case EventDone:
			require.Nil(t, c.result, "only one done event")
			c.result = ev.Result
		}
	}
	require.NotNil(t, c.result)
	return c
}

func containsSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		match := true
		for j := range seq {
			if args[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestLaunchEndToEnd(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, g := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Al", MemoryMB: 2048}))
	require.Equal(t, OutcomeSuccess, c.result.Outcome, c.result.Message())

	plan := c.result.Plan
	require.NotNil(t, plan)
	assert.Equal(t, []string{
		g.LibraryPath("com/example/lib/1.0/lib-1.0.jar"),
		g.ClientJar("1.20.4"),
	}, plan.Classpath)
	assert.True(t, containsSeq(plan.Args, "--username", "Al", "--version", "1.20.4"))
	assert.True(t, containsSeq(plan.Args, "--assetIndex", "8", "--uuid", launcher.OfflineUUID("Al")))
	assert.Contains(t, plan.Args, "-Xmx2048M")
	assert.Equal(t, "26dcee5c-0987-3dd0-836f-8add3c500050", plan.UUID)

	// progress only moves forward and ends at 100
	require.NotEmpty(t, c.progress)
	for i := 1; i < len(c.progress); i++ {
		assert.Greater(t, c.progress[i], c.progress[i-1])
	}
	assert.Equal(t, 0, c.progress[0])
	assert.Equal(t, 100, c.progress[len(c.progress)-1])

	assert.Contains(t, c.lines, "ARG --username")
	assert.Contains(t, c.lines, "game stderr")
	assert.Contains(t, c.lines, "Exit code: 0")

	assert.FileExists(t, g.VersionDocument("1.20.4"))
	assert.FileExists(t, g.LegacyClientJar())
	assert.FileExists(t, g.AssetObject(assetHash))
	assert.FileExists(t, g.AssetIndex("8"))

	opts, err := folder.ReadOptions(g.OptionsPath())
	require.NoError(t, err)
	rd, _ := opts.Get("renderDistance")
	assert.Equal(t, "16", rd)
	sd, _ := opts.Get("simulationDistance")
	assert.Equal(t, "12", sd)
}

func TestLaunchIsIdempotent(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, _ := newService(t, gs, java, 17)

	req := LaunchRequest{VersionID: "1.20.4", Username: "Alex", MemoryMB: 1024}
	for i := 0; i < 2; i++ {
		c := collect(t, svc.Launch(context.Background(), req))
		require.Equal(t, OutcomeSuccess, c.result.Outcome, c.result.Message())
	}

	assert.Equal(t, 1, gs.hitCount("/manifest.json"), "the catalog is loaded once")
	assert.Equal(t, 1, gs.hitCount("/libs/lib-1.0.jar"))
	assert.Equal(t, 1, gs.hitCount("/idx/8.json"))
	assert.Equal(t, 1, gs.hitCount("/res/bd/"+assetHash))
	// the test client jar is under the size floor
	assert.Equal(t, 2, gs.hitCount("/client.jar"))
}

func TestLaunchReportsCrash(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 2)
	svc, _ := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	assert.Equal(t, OutcomeError, c.result.Outcome)
	assert.Equal(t, KindCrashed, c.result.Kind)
	assert.Equal(t, 2, c.result.ExitCode)
	assert.Contains(t, c.statuses, "Crashed (code 2)")
}

func TestLaunchRejectsOldRuntime(t *testing.T) {
	gs := newGameServer(t)
	// discovered as 17 but the binary reports 1.8 when queried again
	java := writeFakeJava(t, "1.8.0_392", 0)
	svc, _ := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	assert.Equal(t, KindRuntimeUnavailable, c.result.Kind)
	var rue *launcher.RuntimeUnavailableError
	require.ErrorAs(t, c.result.Err, &rue)
	assert.Equal(t, 17, rue.Required)
	assert.Equal(t, 8, rue.Found)
}

func TestLaunchWithoutRuntime(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "11.0.2", 0)
	rts := launcher.NewRuntimes(nil)
	rts.Add(launcher.Runtime{Major: 11, Path: java})
	svc, _ := newServiceWithRuntimes(t, gs, rts)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	assert.Equal(t, KindRuntimeUnavailable, c.result.Kind)
	assert.EqualError(t, c.result.Err, "java 17 is required but only java 11 is available")
	assert.Contains(t, c.statuses, "java 17 is required but only java 11 is available")
}

func TestLaunchClientDownloadFailure(t *testing.T) {
	gs := newGameServer(t)
	gs.fail("/client.jar", http.StatusNotFound)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, g := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	assert.Equal(t, KindHTTPStatus, c.result.Kind)
	assert.Contains(t, c.statuses, "Download failed (HTTP 404)")
	assert.Equal(t, 3, gs.hitCount("/client.jar"))
	assert.NoFileExists(t, g.ClientJar("1.20.4"))
	assert.Zero(t, gs.hitCount("/libs/lib-1.0.jar"), "later stages do not run")
}

func TestLaunchToleratesMissingLibrary(t *testing.T) {
	gs := newGameServer(t)
	gs.fail("/libs/lib-1.0.jar", http.StatusInternalServerError)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, g := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	require.Equal(t, OutcomeSuccess, c.result.Outcome, c.result.Message())
	assert.Equal(t, []string{g.ClientJar("1.20.4")}, c.result.Plan.Classpath)
	assert.Contains(t, c.lines, "1 of 1 library downloads failed")
}

func TestLaunchUnknownVersion(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, _ := newService(t, gs, java, 17)

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "9.9", Username: "Alex"}))
	assert.Equal(t, KindInvalidInput, c.result.Kind)
	assert.ErrorIs(t, c.result.Err, ErrUnknownVersion)
}

func TestLaunchInvalidUsername(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, _ := newService(t, gs, java, 17)
	svc.cfg.MinUsernameLength = profile.MinUsernameLength

	c := collect(t, svc.Launch(context.Background(), LaunchRequest{VersionID: "1.20.4", Username: "Al"}))
	assert.Equal(t, KindInvalidInput, c.result.Kind)
	assert.Zero(t, gs.hitCount("/manifest.json"))
}

func TestLaunchCancelled(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, _ := newService(t, gs, java, 17)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := collect(t, svc.Launch(ctx, LaunchRequest{VersionID: "1.20.4", Username: "Alex"}))
	assert.Equal(t, OutcomeCancelled, c.result.Outcome)
	assert.ErrorIs(t, c.result.Err, ErrCancelled)
	assert.Contains(t, c.statuses, "Cancelled")
	assert.Zero(t, gs.hitCount("/client.jar"))
}

func TestListVersions(t *testing.T) {
	gs := newGameServer(t)
	java := writeFakeJava(t, "17.0.2", 0)
	svc, _ := newService(t, gs, java, 17)

	versions, err := svc.ListVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "1.20.4", versions[0].ID)
	assert.Equal(t, "release", string(versions[0].Channel))

	gs.fail("/manifest.json", http.StatusServiceUnavailable)
	_, err = svc.ListVersions(context.Background())
	var statusErr *utils.HttpStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{nil, KindNone},
		{ErrCancelled, KindCancelled},
		{fmt.Errorf("x: %w", context.Canceled), KindCancelled},
		{&utils.HttpStatusError{URL: "u", Code: 500}, KindHTTPStatus},
		{fmt.Errorf("x: %w", &utils.NetworkError{URL: "u", Err: errors.New("reset")}), KindNetwork},
		{fmt.Errorf("x: %w", version.ErrMissingArtifact), KindMissingArtifact},
		{version.ErrMalformedDocument, KindMalformedDocument},
		{&launcher.RuntimeUnavailableError{Required: 17}, KindRuntimeUnavailable},
		{&launcher.ProcessLaunchError{Path: "java", Err: os.ErrNotExist}, KindProcessLaunch},
		{profile.ErrInvalidUsername, KindInvalidInput},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Classify(tc.err), fmt.Sprint(tc.err))
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "progress", EventProgress.String())
	assert.Equal(t, "done", EventDone.String())
}
