package entity

import "time"

// AnswerOptions - варианты ответа, которые учитывает статистика
var AnswerOptions = []string{"A", "B", "C", "D"}

// AnswerStatistic - распределение ответов на вопрос в рамках занятия
type AnswerStatistic struct {
	QuestionID       int64              `json:"question_id"`
	PlanID           int64              `json:"plan_id"`
	TotalStudents    int                `json:"total_students"`
	AnsweredCount    int                `json:"answered_count"`
	NotAnsweredCount int                `json:"not_answered_count"`
	Counts           map[string]int     `json:"counts"`
	Ratios           map[string]float64 `json:"ratios"`
	AnsweredRatio    float64            `json:"answered_ratio"`
	NotAnsweredRatio float64            `json:"not_answered_ratio"`
	Source           string             `json:"source"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// NewAnswerStatistic считает доли по вариантам от размера списка студентов.
// Ответы вне A-D учитываются как ответившие, но не попадают в Counts.
func NewAnswerStatistic(questionID, planID int64, totalStudents int, answers []string, source string) *AnswerStatistic {
	stat := &AnswerStatistic{
		QuestionID:    questionID,
		PlanID:        planID,
		TotalStudents: totalStudents,
		Counts:        make(map[string]int, len(AnswerOptions)),
		Ratios:        make(map[string]float64, len(AnswerOptions)),
		Source:        source,
		GeneratedAt:   time.Now(),
	}
	for _, opt := range AnswerOptions {
		stat.Counts[opt] = 0
	}
	for _, a := range answers {
		if _, ok := stat.Counts[a]; ok {
			stat.Counts[a]++
		}
		stat.AnsweredCount++
	}

	stat.NotAnsweredCount = totalStudents - stat.AnsweredCount
	if stat.NotAnsweredCount < 0 {
		stat.NotAnsweredCount = 0
	}
	for _, opt := range AnswerOptions {
		stat.Ratios[opt] = ratio(stat.Counts[opt], totalStudents)
	}
	stat.AnsweredRatio = ratio(stat.AnsweredCount, totalStudents)
	stat.NotAnsweredRatio = ratio(stat.NotAnsweredCount, totalStudents)
	return stat
}

func ratio(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}
