package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownMediaKind = errors.New("unknown media kind")

// MediaKind is one of the four broadcast slots a room carries.
// It is a closed enumeration: every registry operation is keyed by it,
// so an unknown kind is rejected at the wire boundary, not deeper in.
type MediaKind uint8

const (
	WebcamVideo MediaKind = iota
	WebcamAudio
	ScreenVideo
	ScreenAudio
)

// Kinds lists all media kinds in a stable order.
var Kinds = [4]MediaKind{WebcamVideo, WebcamAudio, ScreenVideo, ScreenAudio}

var kindNames = map[MediaKind]string{
	WebcamVideo: "webcamVideo",
	WebcamAudio: "webcamAudio",
	ScreenVideo: "screenShareVideo",
	ScreenAudio: "screenShareAudio",
}

func ParseMediaKind(s string) (MediaKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
}

func (k MediaKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MediaKind(%d)", uint8(k))
}

// EngineKind projects the four-way slot onto the engine's two-way
// audio/video split.
func (k MediaKind) EngineKind() string {
	switch k {
	case WebcamAudio, ScreenAudio:
		return "audio"
	default:
		return "video"
	}
}

func (k MediaKind) IsVideo() bool { return k.EngineKind() == "video" }

func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MediaKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMediaKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
