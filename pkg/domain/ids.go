// Package domain holds typed identifiers shared across modules.
//
// Every aggregate and entity gets its own UUID-backed type so IDs cannot be
// swapped across aggregate boundaries by accident. Construct from external
// input via the Parse* functions, which enforce the invariant that IDs are
// valid, non-nil UUIDs at trust boundaries; direct casting bypasses
// validation and is reserved for code that already holds a trusted UUID.
package domain

import (
	"github.com/google/uuid"

	dErrors "genba/pkg/domain-errors"
)

// Typed identifiers. The underlying representation is uuid.UUID, but the
// compiler keeps them distinct.
type (
	SessionID uuid.UUID
	SOPID     uuid.UUID
	TaskID    uuid.UUID
	StepID    uuid.UUID
	HazardID  uuid.UUID
	CheckID   uuid.UUID
	UserID    uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseSessionID validates and returns a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

// ParseSOPID validates and returns a SOPID from external input.
func ParseSOPID(s string) (SOPID, error) {
	u, err := parseUUID(s, "sop_id")
	return SOPID(u), err
}

// ParseTaskID validates and returns a TaskID from external input.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s, "task_id")
	return TaskID(u), err
}

// ParseStepID validates and returns a StepID from external input.
func ParseStepID(s string) (StepID, error) {
	u, err := parseUUID(s, "step_id")
	return StepID(u), err
}

// ParseCheckID validates and returns a CheckID from external input.
func ParseCheckID(s string) (CheckID, error) {
	u, err := parseUUID(s, "check_id")
	return CheckID(u), err
}

// ParseUserID validates and returns a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// New* constructors mint fresh random identifiers.

func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewSOPID() SOPID         { return SOPID(uuid.New()) }
func NewTaskID() TaskID       { return TaskID(uuid.New()) }
func NewStepID() StepID       { return StepID(uuid.New()) }
func NewHazardID() HazardID   { return HazardID(uuid.New()) }
func NewCheckID() CheckID     { return CheckID(uuid.New()) }
func NewUserID() UserID       { return UserID(uuid.New()) }

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SOPID) String() string     { return uuid.UUID(id).String() }
func (id TaskID) String() string    { return uuid.UUID(id).String() }
func (id StepID) String() string    { return uuid.UUID(id).String() }
func (id HazardID) String() string  { return uuid.UUID(id).String() }
func (id CheckID) String() string   { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }

func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SOPID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id StepID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id HazardID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CheckID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText let the typed IDs round-trip through JSON and
// database scans as canonical UUID strings.

func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id SOPID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id TaskID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id StepID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id HazardID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id CheckID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *SessionID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = SessionID(u)
	return nil
}

func (id *SOPID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = SOPID(u)
	return nil
}

func (id *TaskID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = TaskID(u)
	return nil
}

func (id *StepID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = StepID(u)
	return nil
}

func (id *HazardID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = HazardID(u)
	return nil
}

func (id *CheckID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = CheckID(u)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}
