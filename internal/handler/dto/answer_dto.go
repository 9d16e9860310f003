package dto

import (
	"time"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
)

// SubmitAnswerRequest - отправка ответа студента
type SubmitAnswerRequest struct {
	PlanID     int64  `json:"plan_id" binding:"required,gt=0"`
	QuestionID int64  `json:"question_id" binding:"required,gt=0"`
	StudentID  int64  `json:"student_id" binding:"required,gt=0"`
	Answer     string `json:"answer" binding:"required,max=255"`
}

// SubmitAnswerResponse - результат приёма ответа через кеш
type SubmitAnswerResponse struct {
	Outcome string `json:"outcome"`
}

// AnswerResponse представляет сохранённую строку ответа
type AnswerResponse struct {
	ID          uint      `json:"id"`
	PlanID      int64     `json:"plan_id"`
	QuestionID  int64     `json:"question_id"`
	StudentID   int64     `json:"student_id"`
	FirstAnswer string    `json:"first_answer"`
	LastAnswer  string    `json:"last_answer"`
	IsFirst     bool      `json:"is_first"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAnswerResponse раскрывает конверт ответа для клиента
func NewAnswerResponse(a *entity.Answer) AnswerResponse {
	payload := entity.DecodeAnswerPayload(a.Answer)
	return AnswerResponse{
		ID:          a.ID,
		PlanID:      a.PlanID,
		QuestionID:  a.QuestionID,
		StudentID:   a.StudentID,
		FirstAnswer: payload.FirstAnswer(),
		LastAnswer:  payload.Effective(),
		IsFirst:     a.IsFirst,
		UpdatedAt:   a.UpdatedAt,
	}
}
