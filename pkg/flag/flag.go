// Package flag implements the Flag Store orchestration of spec §4.10: a
// generic human-review flag (bounding box correction, free-form label,
// etc.) identified by a type name, with per-type payload validation and a
// pluggable result.
package flag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/google/uuid"
)

// Validator checks a flag type's payload shape before it is persisted.
// Registered per type name, mirroring the source's one-Flag-subclass-
// per-kind pattern (BoundingBoxFlag, etc.) without requiring a Go type
// per kind — the registry maps a type name straight to a JSON-schema-ish
// check function instead.
type Validator func(payload json.RawMessage) error

// BoundingBox is the payload shape for the "bounding_box" flag type,
// mirroring the source's V1BoundingBoxFlag (img/target/bbox).
type BoundingBox struct {
	Img    string     `json:"img"`
	Target string     `json:"target"`
	Box    [4]float64 `json:"bbox"`
}

// BoundingBoxResult is the payload shape for a reviewer's correction,
// mirroring V1BoundingBox.
type BoundingBoxResult struct {
	Box [4]float64 `json:"bbox"`
}

// ValidateBoundingBox is the Validator registered for "bounding_box".
func ValidateBoundingBox(payload json.RawMessage) error {
	var b BoundingBox
	if err := json.Unmarshal(payload, &b); err != nil {
		return apierr.NewValidationError("flag", "invalid bounding_box payload: "+err.Error(), "malformed")
	}
	var fields []apierr.FieldError
	if b.Img == "" {
		fields = append(fields, apierr.NewFieldError("img", "required", "missing"))
	}
	if b.Target == "" {
		fields = append(fields, apierr.NewFieldError("target", "required", "missing"))
	}
	if len(fields) > 0 {
		return &apierr.ValidationError{Fields: fields}
	}
	return nil
}

// Service orchestrates flag creation, result recording, and type-scoped
// lookup atop the core Store.
type Service struct {
	store      *store.Store
	validators map[string]Validator
	now        func() float64
	newID      func() string
}

// New constructs a flag Service. now/newID default to the wall clock and
// a random UUID respectively when nil. The "bounding_box" type is
// pre-registered; callers add further types via Register.
func New(st *store.Store, now func() float64, newID func() string) *Service {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	s := &Service{store: st, validators: map[string]Validator{}, now: now, newID: newID}
	s.Register("bounding_box", ValidateBoundingBox)
	return s
}

// Register adds or replaces the Validator for a flag type.
func (s *Service) Register(flagType string, v Validator) {
	s.validators[flagType] = v
}

// Create implements flag creation (spec §4.10): validates payload against
// its type's registered Validator (an unregistered type is accepted
// unvalidated, mirroring the source's lack of a central type registry —
// every concrete Flag subclass there validates itself via its own
// pydantic model) and persists the row.
func (s *Service) Create(ctx context.Context, flagType string, payload json.RawMessage) (*store.Flag, error) {
	if v, ok := s.validators[flagType]; ok {
		if err := v(payload); err != nil {
			return nil, err
		}
	}

	f := &store.Flag{ID: s.newID(), Type: flagType, Payload: payload, Created: s.now()}
	if err := s.store.CreateFlag(ctx, f); err != nil {
		return nil, fmt.Errorf("create flag: %w", err)
	}
	return f, nil
}

// Get loads a single flag by id.
func (s *Service) Get(ctx context.Context, id string) (*store.Flag, error) {
	return s.store.GetFlag(ctx, id)
}

// SetResult implements set_result(result) (spec §4.10): records a
// reviewer's correction/result for a flag.
func (s *Service) SetResult(ctx context.Context, id string, result json.RawMessage) error {
	return s.store.SetFlagResult(ctx, id, result)
}

// FindByType returns every flag of the given type, newest first.
func (s *Service) FindByType(ctx context.Context, flagType string) ([]*store.Flag, error) {
	return s.store.FindFlagsByType(ctx, flagType)
}
