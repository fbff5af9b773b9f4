package session

import (
	"context"
	"errors"
	"strconv"

	"limeal.fr/mcboot/pkg/game/launcher"
	"limeal.fr/mcboot/pkg/game/profile"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

var (
	ErrCancelled      = errors.New("launch cancelled")
	ErrUnknownVersion = errors.New("unknown version")
)

// ErrorKind classifies the error that ended a launch.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindCancelled          ErrorKind = "cancelled"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNetwork            ErrorKind = "network"
	KindHTTPStatus         ErrorKind = "http_status"
	KindMissingArtifact    ErrorKind = "missing_artifact"
	KindMalformedDocument  ErrorKind = "malformed_document"
	KindRuntimeUnavailable ErrorKind = "runtime_unavailable"
	KindProcessLaunch      ErrorKind = "process_launch"
	KindCrashed            ErrorKind = "crashed"
	KindInternal           ErrorKind = "internal"
)

func Classify(err error) ErrorKind {
	var (
		statusErr  *utils.HttpStatusError
		netErr     *utils.NetworkError
		runtimeErr *launcher.RuntimeUnavailableError
		launchErr  *launcher.ProcessLaunchError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrUnknownVersion), errors.Is(err, profile.ErrInvalidUsername):
		return KindInvalidInput
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, version.ErrMissingArtifact):
		return KindMissingArtifact
	case errors.Is(err, version.ErrMalformedDocument):
		return KindMalformedDocument
	case errors.As(err, &runtimeErr):
		return KindRuntimeUnavailable
	case errors.As(err, &launchErr):
		return KindProcessLaunch
	}
	return KindInternal
}

// shortCause is the status line text of a failed launch.
func shortCause(kind ErrorKind, err error) string {
	switch kind {
	case KindCancelled:
		return "Cancelled"
	case KindNetwork:
		return "Network error"
	case KindHTTPStatus:
		var statusErr *utils.HttpStatusError
		if errors.As(err, &statusErr) {
			return "Download failed (HTTP " + strconv.Itoa(statusErr.Code) + ")"
		}
		return "Download failed"
	case KindMissingArtifact:
		return "Version has no client download"
	case KindMalformedDocument:
		return "Version document is malformed"
	case KindRuntimeUnavailable, KindInvalidInput:
		return err.Error()
	case KindProcessLaunch:
		return "Could not start the game"
	}
	return "Error: " + err.Error()
}
