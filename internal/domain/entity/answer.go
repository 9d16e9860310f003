package entity

import (
	"strings"
	"time"
)

// Answer представляет ответ студента на вопрос в рамках занятия.
// Поле Answer хранит либо сам ответ, либо JSON-конверт (см. AnswerPayload).
type Answer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID int64     `gorm:"not null;index:idx_answer_key,priority:2" json:"question_id"`
	StudentID  int64     `gorm:"not null;index:idx_answer_key,priority:3" json:"student_id"`
	PlanID     int64     `gorm:"not null;index:idx_answer_key,priority:1" json:"plan_id"`
	Answer     string    `gorm:"size:512;not null" json:"answer"`
	IsFirst    bool      `gorm:"not null;default:true" json:"is_first"`
	CreatedAt  time.Time `gorm:"column:create_time;autoCreateTime:false" json:"create_time"`
	UpdatedAt  time.Time `gorm:"column:update_time;autoUpdateTime:false" json:"update_time"`
}

// TableName определяет имя таблицы для GORM
func (Answer) TableName() string {
	return "answer"
}

// AnswerKey идентифицирует ответ студента: занятие, вопрос, студент
type AnswerKey struct {
	PlanID     int64
	QuestionID int64
	StudentID  int64
}

// Key возвращает ключ записи
func (a *Answer) Key() AnswerKey {
	return AnswerKey{PlanID: a.PlanID, QuestionID: a.QuestionID, StudentID: a.StudentID}
}

// NormalizeAnswer приводит ответ к каноническому виду: без пробелов по краям, в верхнем регистре
func NormalizeAnswer(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
