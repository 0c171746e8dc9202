package controller

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/service"
)

type QuestionController interface {
	List(c echo.Context) error
	Create(c echo.Context) error
	Delete(c echo.Context) error
	Upvote(c echo.Context) error
	Revoke(c echo.Context) error
}

type questionController struct {
	questionService service.QuestionService
	upvoteService   service.UpvoteService
}

func newQuestionController(questionService service.QuestionService, upvoteService service.UpvoteService) QuestionController {
	return &questionController{
		questionService: questionService,
		upvoteService:   upvoteService,
	}
}

type createQuestionRequest struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

type questionsResponse struct {
	Success   bool               `json:"success"`
	Questions []dto.QuestionView `json:"questions"`
}

type questionResponse struct {
	Success  bool             `json:"success"`
	Question dto.QuestionView `json:"question"`
}

type upvoteResponse struct {
	Success    bool      `json:"success"`
	QuestionID uuid.UUID `json:"question_id"`
	Upvotes    int64     `json:"upvotes"`
	Upvoted    bool      `json:"upvoted"`
}

type deleteResponse struct {
	Success    bool      `json:"success"`
	QuestionID uuid.UUID `json:"question_id"`
}

func (q *questionController) List(c echo.Context) error {
	identity, err := identityFrom(c)
	if err != nil {
		return err
	}

	questions, err := q.questionService.List(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, questionsResponse{Success: true, Questions: questions})
}

func (q *questionController) Create(c echo.Context) error {
	identity, err := identityFrom(c)
	if err != nil {
		return err
	}

	var request createQuestionRequest
	if err := c.Bind(&request); err != nil {
		return fmt.Errorf("%w: %v", dto.ErrInvalidInput, err)
	}

	question, err := q.questionService.Create(c.Request().Context(), identity, request.Content, request.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, questionResponse{Success: true, Question: question})
}

func (q *questionController) Delete(c echo.Context) error {
	identity, questionID, err := questionTarget(c)
	if err != nil {
		return err
	}

	if err := q.questionService.Delete(c.Request().Context(), identity, questionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleteResponse{Success: true, QuestionID: questionID})
}

func (q *questionController) Upvote(c echo.Context) error {
	identity, questionID, err := questionTarget(c)
	if err != nil {
		return err
	}

	count, err := q.upvoteService.Cast(c.Request().Context(), identity, questionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, upvoteResponse{Success: true, QuestionID: questionID, Upvotes: count, Upvoted: true})
}

func (q *questionController) Revoke(c echo.Context) error {
	identity, questionID, err := questionTarget(c)
	if err != nil {
		return err
	}

	count, err := q.upvoteService.Revoke(c.Request().Context(), identity, questionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, upvoteResponse{Success: true, QuestionID: questionID, Upvotes: count, Upvoted: false})
}

func questionTarget(c echo.Context) (dto.Identity, uuid.UUID, error) {
	identity, err := identityFrom(c)
	if err != nil {
		return dto.Identity{}, uuid.Nil, err
	}

	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return dto.Identity{}, uuid.Nil, fmt.Errorf("%w: malformed question id %q", dto.ErrInvalidInput, c.Param("id"))
	}
	return identity, questionID, nil
}
