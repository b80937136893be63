package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

// Scan/Value delegate to uuid.UUID so typed IDs pass through database/sql
// as canonical UUID strings.

func (id SessionID) Value() (driver.Value, error) { return id.String(), nil }
func (id SOPID) Value() (driver.Value, error)     { return id.String(), nil }
func (id TaskID) Value() (driver.Value, error)    { return id.String(), nil }
func (id StepID) Value() (driver.Value, error)    { return id.String(), nil }
func (id HazardID) Value() (driver.Value, error)  { return id.String(), nil }
func (id CheckID) Value() (driver.Value, error)   { return id.String(), nil }
func (id UserID) Value() (driver.Value, error)    { return id.String(), nil }

func (id *SessionID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
func (id *SOPID) Scan(src any) error     { return (*uuid.UUID)(id).Scan(src) }
func (id *TaskID) Scan(src any) error    { return (*uuid.UUID)(id).Scan(src) }
func (id *StepID) Scan(src any) error    { return (*uuid.UUID)(id).Scan(src) }
func (id *HazardID) Scan(src any) error  { return (*uuid.UUID)(id).Scan(src) }
func (id *CheckID) Scan(src any) error   { return (*uuid.UUID)(id).Scan(src) }
func (id *UserID) Scan(src any) error    { return (*uuid.UUID)(id).Scan(src) }
