package domain

import "github.com/bytedance/sonic"

// Answers is the ordered set of intake answers keyed by question id. A key
// appears at most once; re-answering keeps the original position.
type Answers struct {
	keys   []string
	values map[string]Answer
}

// AnswerEntry is one key/value pair of Answers.
type AnswerEntry struct {
	Key   string `json:"key"`
	Value Answer `json:"value"`
}

// NewAnswers builds Answers from entries, later duplicates overwriting
// earlier ones.
func NewAnswers(entries ...AnswerEntry) Answers {
	var a Answers
	for _, e := range entries {
		a.Set(e.Key, e.Value)
	}
	return a
}

func (a *Answers) Set(key string, value Answer) {
	if a.values == nil {
		a.values = make(map[string]Answer)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a Answers) Get(key string) (Answer, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a Answers) Len() int { return len(a.keys) }

// Keys returns the keys in insertion order.
func (a Answers) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Entries returns the pairs in insertion order.
func (a Answers) Entries() []AnswerEntry {
	out := make([]AnswerEntry, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, AnswerEntry{Key: k, Value: a.values[k]})
	}
	return out
}

// Clone returns a copy that shares no state with a.
func (a Answers) Clone() Answers {
	return NewAnswers(a.Entries()...)
}

// Merge applies every entry of other on top of a.
func (a *Answers) Merge(other Answers) {
	for _, e := range other.Entries() {
		a.Set(e.Key, e.Value)
	}
}

func (a Answers) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(a.Entries())
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	var entries []AnswerEntry
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return err
	}
	*a = NewAnswers(entries...)
	return nil
}
