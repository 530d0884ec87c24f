package core

import "github.com/go-gl/mathgl/mgl64"

// SentRecord is one state update as it left the owner.
type SentRecord struct {
	ObjectID  string    `json:"objectId"`
	LocalTime float64   `json:"localTime"`
	State     SyncState `json:"state"`
	Flags     []string  `json:"flags"`
	Bytes     int       `json:"bytes"`
}

// ReceivedRecord is one state accepted into a receiver's history.
type ReceivedRecord struct {
	ObjectID  string    `json:"objectId"`
	LocalTime float64   `json:"localTime"`
	State     SyncState `json:"state"`
	Flags     []string  `json:"flags"`
}

// AppliedRecord is what a receiver showed on one tick.
type AppliedRecord struct {
	ObjectID        string     `json:"objectId"`
	LocalTime       float64    `json:"localTime"`
	SenderTime      float64    `json:"senderTime"`
	PlaybackTime    float64    `json:"playbackTime"`
	Mode            string     `json:"mode"`
	Snapped         bool       `json:"snapped"`
	Position        mgl64.Vec3 `json:"position"`
	Rotation        mgl64.Quat `json:"rotation"`
	HistoryDepth    int        `json:"historyDepth"`
	ExtrapolatedFor float64    `json:"extrapolatedFor"`
}
