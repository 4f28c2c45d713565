// Package apps catalogs the controllable media players and generates the
// AppleScript snippets that drive them. Scripts are single expressions so
// both execution modes can carry them unchanged.
package apps

import (
	"fmt"
	"strings"

	"github.com/avolokh/mediactl/internal/protocol"
)

// App identifies a supported media player.
type App int

const (
	Music App = iota
	Spotify
	TV
	QuickTime
)

// All returns every supported application.
func All() []App {
	return []App{Music, Spotify, TV, QuickTime}
}

// Key returns the logical channel key for the application. Commands for the
// same application always route to the same channel.
func (a App) Key() string {
	return strings.ToLower(a.String())
}

// String returns the AppleScript application name.
func (a App) String() string {
	switch a {
	case Music:
		return "Music"
	case Spotify:
		return "Spotify"
	case TV:
		return "TV"
	case QuickTime:
		return "QuickTime Player"
	default:
		return "unknown"
	}
}

// FromName resolves a user-supplied application name. Matching is
// case-insensitive and accepts a few common aliases.
func FromName(name string) (App, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "music", "itunes", "apple music":
		return Music, nil
	case "spotify":
		return Spotify, nil
	case "tv", "appletv", "apple tv":
		return TV, nil
	case "quicktime", "quicktime player", "qt":
		return QuickTime, nil
	default:
		return 0, fmt.Errorf("unknown application %q (supported: music, spotify, tv, quicktime)", name)
	}
}

// Action is a playback command.
type Action int

const (
	Play Action = iota
	Pause
	PlayPause
	NextTrack
	PreviousTrack
	Stop
)

// String returns the action verb.
func (a Action) String() string {
	switch a {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case PlayPause:
		return "playpause"
	case NextTrack:
		return "next"
	case PreviousTrack:
		return "previous"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ActionFromName resolves a user-supplied action verb.
func ActionFromName(name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "play":
		return Play, nil
	case "pause":
		return Pause, nil
	case "playpause", "toggle":
		return PlayPause, nil
	case "next", "nexttrack", "skip":
		return NextTrack, nil
	case "previous", "prev", "back":
		return PreviousTrack, nil
	case "stop":
		return Stop, nil
	default:
		return 0, fmt.Errorf("unknown action %q (supported: play, pause, playpause, next, previous, stop)", name)
	}
}

// StatusScript returns the expression that reports the current track as a
// single delimited record: title, artist and playing flag joined by the
// field delimiter.
func (a App) StatusScript() string {
	d := protocol.FieldDelimiter
	switch a {
	case QuickTime:
		// QuickTime documents have no artist; report the document name and
		// whether the front document is playing.
		return fmt.Sprintf(`tell application "QuickTime Player" to if (count of documents) > 0 then (get name of front document) & "%s" & "" & "%s" & (playing of front document) else "" & "%s" & "" & "%s" & "false"`, d, d, d, d)
	default:
		return fmt.Sprintf(`tell application "%s" to if player state is stopped then "" & "%s" & "" & "%s" & "false" else (get name of current track) & "%s" & (get artist of current track) & "%s" & (player state is playing)`, a, d, d, d, d)
	}
}

// ParseStatus decodes a status record produced by StatusScript.
func ParseStatus(record string) protocol.Status {
	return protocol.ParseStatus(record)
}

// ActionScript returns the expression for a playback action, or an error when
// the application does not support it.
func (a App) ActionScript(action Action) (string, error) {
	verb, err := a.actionVerb(action)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`tell application "%s" to %s`, a, verb), nil
}

func (a App) actionVerb(action Action) (string, error) {
	if a == QuickTime {
		// QuickTime has no track navigation and no playpause command.
		switch action {
		case Play:
			return "play front document", nil
		case Pause, Stop:
			return "pause front document", nil
		default:
			return "", fmt.Errorf("%s does not support %s", a, action)
		}
	}
	switch action {
	case Play:
		return "play", nil
	case Pause:
		return "pause", nil
	case PlayPause:
		return "playpause", nil
	case NextTrack:
		return "next track", nil
	case PreviousTrack:
		return "previous track", nil
	case Stop:
		if a == Spotify {
			// Spotify's dictionary has no stop command.
			return "pause", nil
		}
		return "stop", nil
	default:
		return "", fmt.Errorf("unknown action %d", action)
	}
}

// VolumeStatusScript reports the system output volume as an integer 0..100.
func VolumeStatusScript() string {
	return `output volume of (get volume settings)`
}

// SetVolumeScript sets the system output volume. level is clamped to 0..100.
func SetVolumeScript(level int) string {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return fmt.Sprintf(`set volume output volume %d`, level)
}
