// Package model defines the GORM rows a trace store writes.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/OCAP2/smoothsync/internal/geo"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// DatabaseModels lists every table of the trace schema.
var DatabaseModels = []any{
	&SentState{},
	&ReceivedState{},
	&AppliedSample{},
}

// Location is an XYZ point stored as WKB.
type Location struct {
	geom.Point
}

// NewLocation converts a position. Non-finite positions become an empty
// point.
func NewLocation(v mgl64.Vec3) Location {
	p, _ := geo.PointFromVec3(v)
	return Location{Point: p}
}

// Vec3 returns the stored position.
func (l Location) Vec3() mgl64.Vec3 {
	return geo.Vec3FromPoint(l.Point)
}

// GormDBDataType picks the binary column type of the dialect.
func (Location) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "bytea"
	}
	return "blob"
}

// Value implements driver.Valuer.
func (l Location) Value() (driver.Value, error) {
	return l.Point.Value()
}

// Scan implements sql.Scanner.
func (l *Location) Scan(src any) error {
	return l.Point.Scan(src)
}

// SentState is one update the owner put on the wire.
type SentState struct {
	ID        uint                               `json:"id" gorm:"primarykey"`
	ObjectID  string                             `json:"objectId" gorm:"size:64;index:idx_sent_object"`
	LocalTime float64                            `json:"localTime" gorm:"index:idx_sent_time"`
	Timestamp float64                            `json:"timestamp"`
	Position  Location                           `json:"position"`
	Flags     datatypes.JSON                     `json:"flags"`
	Bytes     int                                `json:"bytes"`
	State     datatypes.JSONType[core.SyncState] `json:"state"`
}

func (*SentState) TableName() string { return "sent_states" }

// ReceivedState is one update a receiver accepted into its history.
type ReceivedState struct {
	ID        uint                               `json:"id" gorm:"primarykey"`
	ObjectID  string                             `json:"objectId" gorm:"size:64;index:idx_received_object"`
	LocalTime float64                            `json:"localTime" gorm:"index:idx_received_time"`
	Timestamp float64                            `json:"timestamp"`
	Position  Location                           `json:"position"`
	Teleport  bool                               `json:"teleport"`
	Flags     datatypes.JSON                     `json:"flags"`
	State     datatypes.JSONType[core.SyncState] `json:"state"`
}

func (*ReceivedState) TableName() string { return "received_states" }

// AppliedSample is the transform a receiver showed on one tick.
type AppliedSample struct {
	ID              uint                           `json:"id" gorm:"primarykey"`
	ObjectID        string                         `json:"objectId" gorm:"size:64;index:idx_applied_object"`
	LocalTime       float64                        `json:"localTime" gorm:"index:idx_applied_time"`
	SenderTime      float64                        `json:"senderTime"`
	PlaybackTime    float64                        `json:"playbackTime"`
	Mode            string                         `json:"mode" gorm:"size:16"`
	Snapped         bool                           `json:"snapped"`
	Position        Location                       `json:"position"`
	Rotation        datatypes.JSONType[mgl64.Quat] `json:"rotation"`
	HistoryDepth    int                            `json:"historyDepth"`
	ExtrapolatedFor float64                        `json:"extrapolatedFor"`
}

func (*AppliedSample) TableName() string { return "applied_samples" }

func flagsJSON(flags []string) (datatypes.JSON, error) {
	if flags == nil {
		flags = []string{}
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("encoding flags: %w", err)
	}
	return datatypes.JSON(b), nil
}

// FlagNames decodes a flags column.
func FlagNames(j datatypes.JSON) ([]string, error) {
	var out []string
	if len(j) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(j, &out); err != nil {
		return nil, fmt.Errorf("decoding flags: %w", err)
	}
	return out, nil
}

// FromSent converts a sent record into a row.
func FromSent(r *core.SentRecord) (SentState, error) {
	flags, err := flagsJSON(r.Flags)
	if err != nil {
		return SentState{}, err
	}
	return SentState{
		ObjectID:  r.ObjectID,
		LocalTime: r.LocalTime,
		Timestamp: r.State.Timestamp,
		Position:  NewLocation(r.State.Position),
		Flags:     flags,
		Bytes:     r.Bytes,
		State:     datatypes.NewJSONType(r.State),
	}, nil
}

// FromReceived converts a received record into a row.
func FromReceived(r *core.ReceivedRecord) (ReceivedState, error) {
	flags, err := flagsJSON(r.Flags)
	if err != nil {
		return ReceivedState{}, err
	}
	return ReceivedState{
		ObjectID:  r.ObjectID,
		LocalTime: r.LocalTime,
		Timestamp: r.State.Timestamp,
		Position:  NewLocation(r.State.Position),
		Teleport:  r.State.Teleport,
		Flags:     flags,
		State:     datatypes.NewJSONType(r.State),
	}, nil
}

// FromApplied converts an applied record into a row.
func FromApplied(r *core.AppliedRecord) AppliedSample {
	return AppliedSample{
		ObjectID:        r.ObjectID,
		LocalTime:       r.LocalTime,
		SenderTime:      r.SenderTime,
		PlaybackTime:    r.PlaybackTime,
		Mode:            r.Mode,
		Snapped:         r.Snapped,
		Position:        NewLocation(r.Position),
		Rotation:        datatypes.NewJSONType(r.Rotation),
		HistoryDepth:    r.HistoryDepth,
		ExtrapolatedFor: r.ExtrapolatedFor,
	}
}

// Core converts the row back into an applied record.
func (a AppliedSample) Core() core.AppliedRecord {
	return core.AppliedRecord{
		ObjectID:        a.ObjectID,
		LocalTime:       a.LocalTime,
		SenderTime:      a.SenderTime,
		PlaybackTime:    a.PlaybackTime,
		Mode:            a.Mode,
		Snapped:         a.Snapped,
		Position:        a.Position.Vec3(),
		Rotation:        a.Rotation.Data(),
		HistoryDepth:    a.HistoryDepth,
		ExtrapolatedFor: a.ExtrapolatedFor,
	}
}
