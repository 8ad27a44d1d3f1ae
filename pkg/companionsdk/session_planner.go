package companionsdk

import (
	"context"
	"net/http"
)

func (s *Session) ListPlanners(ctx context.Context, userID int64) ([]Planner, error) {
	var planners []Planner
	if err := s.getJSON(ctx, pathID("/api/planners/user/%s", userID), &planners); err != nil {
		return nil, err
	}
	return planners, nil
}

func (s *Session) GetPlanner(ctx context.Context, plannerID int64) (*Planner, error) {
	var p Planner
	if err := s.getJSON(ctx, pathID("/api/planners/%s", plannerID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Session) CreatePlanner(ctx context.Context, req PlannerRequest) (*Planner, error) {
	var p Planner
	if err := s.sendJSON(ctx, http.MethodPost, "/api/planners", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Session) UpdatePlanner(ctx context.Context, plannerID int64, req PlannerRequest) (*Planner, error) {
	var p Planner
	if err := s.sendJSON(ctx, http.MethodPut, pathID("/api/planners/%s", plannerID), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Session) DeletePlanner(ctx context.Context, plannerID int64) error {
	return s.sendJSON(ctx, http.MethodDelete, pathID("/api/planners/%s", plannerID), nil, nil)
}
