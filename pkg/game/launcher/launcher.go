package launcher

import (
	"bufio"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/profile"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

const (
	DefaultLauncherName    = "mcboot"
	DefaultLauncherVersion = "1.0"

	// NativeAccessRuntime is the first runtime major that needs the native
	// access opt-in flag.
	NativeAccessRuntime = 21
)

/////////////////////////////////////////////////////////////////////
// Errors
/////////////////////////////////////////////////////////////////////

// RuntimeUnavailableError reports that no installed runtime satisfies the
// version. Found is 0 when no runtime was found at all.
type RuntimeUnavailableError struct {
	Required int
	Found    int
}

func (e *RuntimeUnavailableError) Error() string {
	if e.Found == 0 {
		return fmt.Sprintf("no java runtime found, java %d is required", e.Required)
	}
	return fmt.Sprintf("java %d is required but only java %d is available", e.Required, e.Found)
}

// ProcessLaunchError reports a game process that could not be started.
type ProcessLaunchError struct {
	Path string
	Err  error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *ProcessLaunchError) Unwrap() error { return e.Err }

/////////////////////////////////////////////////////////////////////
// Player identifier
/////////////////////////////////////////////////////////////////////

// OfflineUUID derives the stable identifier of an unauthenticated player from
// its name, in the version 3 layout.
func OfflineUUID(name string) string {
	h := md5.Sum([]byte("OfflinePlayer:" + name))
	h[6] = (h[6] & 0x0f) | 0x30
	h[8] = (h[8] & 0x3f) | 0x80
	return uuid.UUID(h).String()
}

/////////////////////////////////////////////////////////////////////
// Composer
/////////////////////////////////////////////////////////////////////

// GameArgsMode selects how game arguments are produced.
type GameArgsMode string

const (
	// GameArgsFixed always passes the same argument set.
	GameArgsFixed GameArgsMode = "fixed"
	// GameArgsDocument templates the arguments declared by the version document.
	GameArgsDocument GameArgsMode = "document"
)

func ParseGameArgsMode(s string) (GameArgsMode, error) {
	switch GameArgsMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", GameArgsFixed:
		return GameArgsFixed, nil
	case GameArgsDocument:
		return GameArgsDocument, nil
	}
	return GameArgsFixed, fmt.Errorf("unknown game argument mode %q (expected fixed or document)", s)
}

type Composer struct {
	Env             rules.Env
	Policy          rules.Policy
	LauncherName    string
	LauncherVersion string
	GameArgs        GameArgsMode
}

func NewComposer(env rules.Env) *Composer {
	return &Composer{
		Env:             env,
		LauncherName:    DefaultLauncherName,
		LauncherVersion: DefaultLauncherVersion,
		GameArgs:        GameArgsFixed,
	}
}

type LaunchInput struct {
	Descriptor   *version.Descriptor
	Installation *folder.Installation
	Profile      *profile.GameProfile
	Runtime      Runtime
}

// Plan is a fully composed game invocation.
type Plan struct {
	Java       string
	Args       []string
	Classpath  []string
	Dir        string
	NativesDir string
	UUID       string
}

func (p *Plan) CommandLine() string {
	return p.Java + " " + strings.Join(p.Args, " ")
}

// Classpath lists, in document order, the artifacts of every dependency that
// is on disk and has no separate native archive, followed by the client jar.
func Classpath(desc *version.Descriptor, g *folder.Installation) []string {
	seen := map[string]struct{}{}
	var cp []string
	for _, d := range desc.Dependencies {
		if d.HasNative || d.ArtifactPath == "" {
			continue
		}
		p := g.LibraryPath(d.ArtifactPath)
		if _, dup := seen[p]; dup || !utils.FileExists(p) {
			continue
		}
		seen[p] = struct{}{}
		cp = append(cp, p)
	}
	return append(cp, g.ClientJar(desc.ID))
}

func (c *Composer) classpathSeparator() string {
	if c.Env.OS == rules.OSWindows {
		return ";"
	}
	return ":"
}

// BuildPlan composes the runtime flags, entry point and game arguments of in.
func (c *Composer) BuildPlan(in LaunchInput) (*Plan, error) {
	if in.Descriptor == nil || in.Installation == nil || in.Profile == nil {
		return nil, errors.New("launch input is incomplete")
	}
	if in.Runtime.Path == "" {
		return nil, &RuntimeUnavailableError{Required: in.Descriptor.RequiredRuntime}
	}

	desc, g := in.Descriptor, in.Installation
	plan := &Plan{
		Java:       in.Runtime.Path,
		Classpath:  Classpath(desc, g),
		Dir:        g.GetPath(),
		NativesDir: g.NativesDir(desc.ID),
		UUID:       OfflineUUID(in.Profile.Username),
	}

	args := c.jvmArgs(in, plan)
	args = append(args, "-cp", strings.Join(plan.Classpath, c.classpathSeparator()), desc.EntryPoint)

	vars := c.placeholders(in, plan)
	if c.GameArgs == GameArgsDocument {
		if game, ok := c.documentGameArgs(desc, vars); ok {
			plan.Args = append(args, game...)
			return plan, nil
		}
		logger.Warn("version document declares no game arguments, using the fixed set", utils.VersionKey, desc.ID)
	}
	plan.Args = append(args, c.fixedGameArgs(vars)...)
	return plan, nil
}

func (c *Composer) jvmArgs(in LaunchInput, plan *Plan) []string {
	var args []string
	if c.Env.OS == rules.OSMac {
		args = append(args, "-XstartOnFirstThread")
	}
	args = append(args, in.Profile.Memory.ToArgs()...)
	args = append(args,
		"-XX:+UnlockExperimentalVMOptions",
		"-XX:+UseG1GC",
		"-XX:G1NewSizePercent=20",
		"-XX:G1ReservePercent=20",
		"-XX:MaxGCPauseMillis=50",
		"-XX:G1HeapRegionSize=32M",
		"-Djava.library.path="+plan.NativesDir,
		"-Dminecraft.launcher.brand="+c.LauncherName,
		"-Dminecraft.launcher.version="+c.LauncherVersion,
	)
	if c.Env.IsAppleSilicon() {
		args = append(args, "-Dorg.lwjgl.system.allocator=system")
	}
	if in.Runtime.Major >= NativeAccessRuntime {
		args = append(args, "--enable-native-access=ALL-UNNAMED")
	}
	return args
}

func (c *Composer) fixedGameArgs(vars map[string]string) []string {
	return []string{
		"--username", vars["auth_player_name"],
		"--version", vars["version_name"],
		"--gameDir", vars["game_directory"],
		"--assetsDir", vars["assets_root"],
		"--assetIndex", vars["assets_index_name"],
		"--uuid", vars["auth_uuid"],
		"--accessToken", vars["auth_access_token"],
		"--userType", vars["user_type"],
		"--versionType", vars["version_type"],
	}
}

/////////////////////////////////////////////////////////////////////
// Process
/////////////////////////////////////////////////////////////////////

// Process is a started game. Its merged output is relayed line by line to
// the sink given to Start.
type Process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	err      error
}

// Start runs plan with its output and error streams merged. Every line is
// passed to sink, which may be nil.
func Start(plan *Plan, sink func(line string)) (*Process, error) {
	cmd := exec.Command(plan.Java, plan.Args...)
	cmd.Dir = plan.Dir
	setupProcessAttributes(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, &ProcessLaunchError{Path: plan.Java, Err: err}
	}
	logger.Info("game process started", utils.PathKey, plan.Java, "pid", cmd.Process.Pid)

	p := &Process{cmd: cmd, done: make(chan struct{})}

	var relay sync.WaitGroup
	relay.Add(1)
	go func() {
		defer relay.Done()
		relayLines(pr, sink)
	}()

	go func() {
		err := cmd.Wait()
		pw.Close()
		relay.Wait()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.exitCode = 0
		case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
			p.exitCode = exitErr.ExitCode()
		default:
			p.exitCode = -1
			p.err = err
		}
		logger.Info("game process exited", "pid", cmd.Process.Pid, "code", p.exitCode)
		close(p.done)
	}()

	return p, nil
}

// maxLineLength caps a relayed line; the rest of a longer line is dropped.
const maxLineLength = 1024 * 1024

// relayLines passes every line of r to sink until r is exhausted.
func relayLines(r io.Reader, sink func(line string)) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" && sink != nil {
			line = strings.TrimRight(line, "\r\n")
			if len(line) > maxLineLength {
				line = line[:maxLineLength]
			}
			sink(line)
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("game output relay stopped", utils.ErrorKey, err)
				// keep the writer from blocking
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
	}
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code. The error is
// only set when the exit status could not be read.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.err
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}
