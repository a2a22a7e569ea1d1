package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/repository"
	"github.com/aman-churiwal/leetquery/internal/validation"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("not found")

type CatalogStore interface {
	ListStages(ctx context.Context) ([]models.Stage, error)
	ListProblems(ctx context.Context) ([]models.Problem, error)
	ListProblemsByStage(ctx context.Context, stageID int) ([]models.Problem, error)
	ListChallenges(ctx context.Context, levelID int) ([]models.Challenge, error)
	FindSchema(ctx context.Context, levelID int) (*models.TutorialSchema, error)
	CreateProblem(ctx context.Context, stageOrder int, problem *models.Problem) error
	DeleteProblem(ctx context.Context, id int) (bool, error)
}

type CatalogService struct {
	store CatalogStore
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store}
}

type ProblemSummary struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type StageWithProblems struct {
	StageNumber int              `json:"stageNumber"`
	StageTitle  string           `json:"stageTitle"`
	Problems    []ProblemSummary `json:"problems"`
}

func (s *CatalogService) Stages(ctx context.Context) ([]models.Stage, error) {
	return s.store.ListStages(ctx)
}

// StagesWithProblems groups every problem under its stage, in stage order
func (s *CatalogService) StagesWithProblems(ctx context.Context) ([]StageWithProblems, error) {
	stages, err := s.store.ListStages(ctx)
	if err != nil {
		return nil, err
	}

	problems, err := s.store.ListProblems(ctx)
	if err != nil {
		return nil, err
	}

	byStage := make(map[int][]ProblemSummary, len(stages))
	for _, p := range problems {
		byStage[p.StageID] = append(byStage[p.StageID], ProblemSummary{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
		})
	}

	result := make([]StageWithProblems, 0, len(stages))
	for _, st := range stages {
		list := byStage[st.ID]
		if list == nil {
			list = []ProblemSummary{}
		}
		result = append(result, StageWithProblems{
			StageNumber: st.OrderNo,
			StageTitle:  st.Title,
			Problems:    list,
		})
	}

	return result, nil
}

func (s *CatalogService) ProblemsByStage(ctx context.Context, stageID int) ([]models.Problem, error) {
	return s.store.ListProblemsByStage(ctx, stageID)
}

func (s *CatalogService) Challenges(ctx context.Context, levelID int) ([]models.Challenge, error) {
	return s.store.ListChallenges(ctx, levelID)
}

// SchemaInfo always yields displayable text. Lookup failures are logged and
// reported as unavailable instead of failing the page.
func (s *CatalogService) SchemaInfo(ctx context.Context, levelID int) string {
	schema, err := s.store.FindSchema(ctx, levelID)
	if err != nil {
		log.Error().Err(err).Int("level_id", levelID).Msg("failed to fetch level schema")
		return fmt.Sprintf("Schema information currently unavailable for level %d.", levelID)
	}
	if schema == nil || schema.SchemaInfo == "" {
		return "No schema available"
	}
	return schema.SchemaInfo
}

type ProblemInput struct {
	StageOrder    int    `json:"stageOrder"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ExpectedQuery string `json:"expectedQuery"`
	Difficulty    string `json:"difficulty"`
}

var difficulties = map[string]bool{"EASY": true, "MEDIUM": true, "HARD": true}

// AddProblem runs every free-text field through the filter gate, escapes
// the prose fields and stores the problem with bound parameters. The
// expected query is SQL by nature so it only gets the markup check.
func (s *CatalogService) AddProblem(ctx context.Context, in ProblemInput) (*models.Problem, error) {
	if in.StageOrder <= 0 {
		return nil, &validation.Error{Field: "stageOrder", Message: "stageOrder must be a positive number"}
	}

	rules := []struct {
		rule  validation.Rule
		value string
	}{
		{validation.Rule{Field: "title", Max: 255, Injection: true, Markup: true}, in.Title},
		{validation.Rule{Field: "description", Max: 5000, Markup: true}, in.Description},
		{validation.Rule{Field: "expectedQuery", Max: 10000, Markup: true}, in.ExpectedQuery},
	}
	for _, r := range rules {
		if err := r.rule.Check(r.value); err != nil {
			return nil, err
		}
	}

	difficulty := strings.ToUpper(strings.TrimSpace(in.Difficulty))
	if difficulty == "" {
		difficulty = "EASY"
	}
	if !difficulties[difficulty] {
		return nil, &validation.Error{Field: "difficulty", Message: "difficulty must be EASY, MEDIUM or HARD"}
	}

	problem := &models.Problem{
		Title:         validation.Sanitize(strings.TrimSpace(in.Title)),
		Description:   validation.Sanitize(in.Description),
		ExpectedQuery: in.ExpectedQuery,
		Difficulty:    difficulty,
	}

	if err := s.store.CreateProblem(ctx, in.StageOrder, problem); err != nil {
		if errors.Is(err, repository.ErrStageNotFound) {
			return nil, &validation.Error{Field: "stageOrder", Message: fmt.Sprintf("no stage with order %d", in.StageOrder)}
		}
		return nil, err
	}

	return problem, nil
}

func (s *CatalogService) DeleteProblem(ctx context.Context, id int) error {
	deleted, err := s.store.DeleteProblem(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("problem %d: %w", id, ErrNotFound)
	}
	return nil
}
