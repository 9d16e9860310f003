package entity

import (
	"encoding/json"
	"strings"
)

// PayloadKind различает формы сохранённого ответа
type PayloadKind int

const (
	// PayloadRaw - ответ хранится как обычный текст
	PayloadRaw PayloadKind = iota
	// PayloadFirstOnly - конверт {"first_ans": ...}
	PayloadFirstOnly
	// PayloadFirstAndLast - конверт {"first_ans": ..., "last_ans": ...}
	PayloadFirstAndLast
)

// AnswerPayload - содержимое колонки answer.
// Значение нулевого вида (PayloadRaw) с пустым Raw означает пустой ответ.
type AnswerPayload struct {
	Kind  PayloadKind
	Raw   string
	First string
	Last  string
}

type payloadEnvelope struct {
	First *string `json:"first_ans,omitempty"`
	Last  *string `json:"last_ans,omitempty"`
}

// RawPayload создаёт ответ без конверта
func RawPayload(value string) AnswerPayload {
	return AnswerPayload{Kind: PayloadRaw, Raw: value}
}

// FirstOnlyPayload создаёт конверт только с первым ответом
func FirstOnlyPayload(first string) AnswerPayload {
	return AnswerPayload{Kind: PayloadFirstOnly, First: first}
}

// FirstAndLastPayload создаёт конверт с первым и последним ответом
func FirstAndLastPayload(first, last string) AnswerPayload {
	return AnswerPayload{Kind: PayloadFirstAndLast, First: first, Last: last}
}

// DecodeAnswerPayload разбирает сохранённое значение. Функция тотальная:
// всё, что не является корректным конвертом, считается обычным текстом.
func DecodeAnswerPayload(stored string) AnswerPayload {
	trimmed := strings.TrimSpace(stored)
	if !strings.HasPrefix(trimmed, "{") {
		return RawPayload(stored)
	}

	var env payloadEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return RawPayload(stored)
	}

	switch {
	case env.Last != nil:
		first := ""
		if env.First != nil {
			first = *env.First
		}
		return FirstAndLastPayload(first, *env.Last)
	case env.First != nil:
		return FirstOnlyPayload(*env.First)
	default:
		return RawPayload(stored)
	}
}

// Effective возвращает действующий ответ: последний, затем первый, затем сырой текст
func (p AnswerPayload) Effective() string {
	switch p.Kind {
	case PayloadFirstAndLast:
		return p.Last
	case PayloadFirstOnly:
		return p.First
	default:
		return p.Raw
	}
}

// FirstAnswer возвращает первый ответ студента
func (p AnswerPayload) FirstAnswer() string {
	if p.Kind == PayloadRaw {
		return p.Raw
	}
	return p.First
}

// WithNext возвращает конверт после очередного ответа:
// первый ответ сохраняется, новый становится последним.
func (p AnswerPayload) WithNext(answer string) AnswerPayload {
	return FirstAndLastPayload(p.FirstAnswer(), answer)
}

// Encode сериализует значение для колонки answer
func (p AnswerPayload) Encode() string {
	var env payloadEnvelope
	switch p.Kind {
	case PayloadFirstOnly:
		env.First = &p.First
	case PayloadFirstAndLast:
		env.First = &p.First
		env.Last = &p.Last
	default:
		return p.Raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		// строки всегда сериализуются
		return p.Effective()
	}
	return string(data)
}
