// Package annotation implements the Annotation Hook of spec §4.10:
// typed {key, value, annotator, annotator_type} judgements attached to a
// single ActionEvent, reviewable under the same upsert policy as the
// Review Engine (spec §4.6).
package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/google/uuid"
)

// Service orchestrates annotation creation and review atop episodestore's
// Annotation rows and the shared Review upsert policy.
type Service struct {
	episodes *episodestore.Store
	reviews  *reviewstore.Store
	now      func() float64
	newID    func() string
}

// New constructs an annotation Service. now/newID default to the wall
// clock and a random UUID respectively when nil.
func New(episodes *episodestore.Store, reviews *reviewstore.Store, now func() float64, newID func() string) *Service {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{episodes: episodes, reviews: reviews, now: now, newID: newID}
}

// Create attaches a typed annotation to an action (spec §4.10).
func (s *Service) Create(ctx context.Context, actionID, key string, value json.RawMessage, annotator, annotatorType string) (*episodestore.Annotation, error) {
	a := &episodestore.Annotation{
		ID: s.newID(), ActionID: actionID, Key: key, Value: value,
		Annotator: annotator, AnnotatorType: annotatorType, Created: s.now(),
	}
	if err := s.episodes.CreateAnnotation(ctx, a); err != nil {
		return nil, fmt.Errorf("create annotation: %w", err)
	}
	return a, nil
}

// ListForAction returns every annotation attached to an action, each with
// its accumulated reviews (spec §4.10's `reviews: seq<Review>` field).
func (s *Service) ListForAction(ctx context.Context, actionID string) ([]*AnnotationWithReviews, error) {
	annotations, err := s.episodes.ListAnnotationsForAction(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	out := make([]*AnnotationWithReviews, len(annotations))
	for i, a := range annotations {
		reviews, err := s.reviews.ListForResource(ctx, "annotation", a.ID)
		if err != nil {
			return nil, fmt.Errorf("list reviews for annotation %s: %w", a.ID, err)
		}
		out[i] = &AnnotationWithReviews{Annotation: a, Reviews: reviews}
	}
	return out, nil
}

// AnnotationWithReviews pairs an Annotation with its accumulated Reviews.
type AnnotationWithReviews struct {
	*episodestore.Annotation
	Reviews []*reviewstore.Review
}

// Review implements reviewing an annotation (spec §4.10: "obeys the same
// upsert policy as §4.6"): a review with matching (reviewer, reviewer_type)
// updates in place, else creates new. The deterministic id prevents a
// retry from racing an unrelated row's primary key rather than the
// intended upsert target.
func (s *Service) Review(ctx context.Context, annotationID string, approved bool, reviewer, reviewerType, reason, correction string) error {
	_, err := s.reviews.Upsert(ctx, &reviewstore.Review{
		ID:           annotationID + ":" + reviewer + ":" + reviewerType,
		Reviewer:     reviewer,
		ReviewerType: reviewerType,
		Approved:     approved,
		Reason:       reason,
		Correction:   correction,
		ResourceType: "annotation",
		ResourceID:   annotationID,
	}, s.now())
	if err != nil {
		return fmt.Errorf("review annotation: %w", err)
	}
	return nil
}
