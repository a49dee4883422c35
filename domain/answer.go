package domain

import (
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// AnswerKind tags the value carried by an Answer.
type AnswerKind uint8

const (
	KindAbsent AnswerKind = iota
	KindNumber
	KindText
	KindBool
)

func (k AnswerKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Answer is the value recorded for a single intake step. Only the field
// matching Kind is meaningful.
type Answer struct {
	Kind AnswerKind
	num  float64
	text string
	flag bool
}

// Absent is an unanswered step.
func Absent() Answer { return Answer{} }

// Number is a numeric answer; only numbers move the estimate.
func Number(v float64) Answer { return Answer{Kind: KindNumber, num: v} }

// Text is a free-form or choice answer.
func Text(v string) Answer { return Answer{Kind: KindText, text: v} }

// Bool is a yes/no answer.
func Bool(v bool) Answer { return Answer{Kind: KindBool, flag: v} }

func (a Answer) IsAbsent() bool { return a.Kind == KindAbsent }

// Number returns the numeric value and whether the answer is numeric.
func (a Answer) Number() (float64, bool) {
	if a.Kind != KindNumber {
		return 0, false
	}
	return a.num, true
}

// Text returns the textual value and whether the answer is textual.
func (a Answer) Text() (string, bool) {
	if a.Kind != KindText {
		return "", false
	}
	return a.text, true
}

// Bool returns the boolean value and whether the answer is boolean.
func (a Answer) Bool() (bool, bool) {
	if a.Kind != KindBool {
		return false, false
	}
	return a.flag, true
}

// Value returns the answer as a plain Go value (nil when absent).
func (a Answer) Value() any {
	switch a.Kind {
	case KindNumber:
		return a.num
	case KindText:
		return a.text
	case KindBool:
		return a.flag
	default:
		return nil
	}
}

func (a Answer) String() string {
	if a.Kind == KindAbsent {
		return "<absent>"
	}
	return fmt.Sprintf("%v", a.Value())
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(a.Value())
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := AnswerFromValue(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AnswerFromValue converts a decoded JSON scalar into an Answer. Arrays and
// objects are not valid answers.
func AnswerFromValue(raw any) (Answer, error) {
	switch v := raw.(type) {
	case nil:
		return Absent(), nil
	case float64:
		return Number(v), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case string:
		return Text(v), nil
	case bool:
		return Bool(v), nil
	default:
		return Answer{}, fmt.Errorf("unsupported answer value of type %T", raw)
	}
}
