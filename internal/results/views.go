package results

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scylladb/argus-sub001/internal/model"
)

// SaveView creates or updates a saved graph selection for a subject. A zero
// ViewID allocates a new one; the (possibly assigned) id is returned.
func (s *Service) SaveView(ctx context.Context, view *model.GraphView) (uuid.UUID, error) {
	if view.ViewID == uuid.Nil {
		view.ViewID = uuid.New()
	}
	view.UpdatedAt = time.Now().UTC()
	if err := s.store.PutGraphView(ctx, view); err != nil {
		return uuid.Nil, err
	}
	return view.ViewID, nil
}

// View loads one saved graph view.
func (s *Service) View(ctx context.Context, subjectID, viewID uuid.UUID) (*model.GraphView, error) {
	return s.store.GetGraphView(ctx, subjectID, viewID)
}

// Views lists a subject's saved graph views.
func (s *Service) Views(ctx context.Context, subjectID uuid.UUID) ([]model.GraphView, error) {
	return s.store.ListGraphViews(ctx, subjectID)
}

// DeleteView removes a saved graph view.
func (s *Service) DeleteView(ctx context.Context, subjectID, viewID uuid.UUID) error {
	return s.store.DeleteGraphView(ctx, subjectID, viewID)
}
