package profile

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MinUsernameLength is the shortest name the launch command accepts.
	MinUsernameLength = 3
	MaxUsernameLength = 16

	DefaultMemoryMB    = 2048
	DefaultMinMemoryMB = 512

	// UserTypeLegacy and OfflineAccessToken identify an unauthenticated player.
	UserTypeLegacy     = "legacy"
	OfflineAccessToken = "0"
)

var ErrInvalidUsername = errors.New("invalid username")

// Memory is the heap budget of the game, in megabytes.
type Memory struct {
	Xms int `json:"xms" yaml:"xms"`
	Xmx int `json:"xmx" yaml:"xmx"`
}

func (m Memory) ToArgs() []string {
	return []string{
		fmt.Sprintf("-Xms%dM", m.Xms),
		fmt.Sprintf("-Xmx%dM", m.Xmx),
	}
}

type GameProfile struct {
	Username string `json:"username"`
	UserType string `json:"userType"`
	Token    string `json:"token"`
	Memory   Memory `json:"memory"`
}

type Options struct {
	// MinUsernameLength below 1 only rejects names that sanitize to nothing.
	MinUsernameLength int
	MemoryMB          int
	MinMemoryMB       int
}

// NewOfflineProfile builds the profile of an unauthenticated player. The name
// is sanitized and the maximum heap is raised to the minimum when needed.
func NewOfflineProfile(username string, opts Options) (*GameProfile, error) {
	name, err := SanitizeUsername(username, opts.MinUsernameLength)
	if err != nil {
		return nil, err
	}
	minMB, maxMB := opts.MinMemoryMB, opts.MemoryMB
	if minMB <= 0 {
		minMB = DefaultMinMemoryMB
	}
	if maxMB <= 0 {
		maxMB = DefaultMemoryMB
	}
	return &GameProfile{
		Username: name,
		UserType: UserTypeLegacy,
		Token:    OfflineAccessToken,
		Memory:   Memory{Xms: minMB, Xmx: max(maxMB, minMB)},
	}, nil
}

// SanitizeUsername keeps ASCII letters, digits and underscores, and truncates
// the result to MaxUsernameLength.
func SanitizeUsername(raw string, minLength int) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	minLength = max(minLength, 1)
	if len(name) < minLength {
		return "", fmt.Errorf("%w: %q needs at least %d letters, digits or underscores", ErrInvalidUsername, raw, minLength)
	}
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	return name, nil
}
