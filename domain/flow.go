package domain

import (
	"strconv"
	"strings"
)

const (
	// HomeRoute is the entry point of the main application.
	HomeRoute = "/(tabs)"
	// ResultStep is the terminal step of the onboarding flow.
	ResultStep = "result"

	questionRoutePrefix = "q/"
	questionKeyPrefix   = "q"
)

// Step is a single screen of the onboarding flow.
type Step struct {
	Route    string `json:"route"`
	Key      string `json:"key,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// Flow describes the ordered onboarding steps: one route per question
// followed by the result step.
type Flow struct {
	Steps     []Step `json:"steps"`
	HomeRoute string `json:"homeRoute"`
}

// NewFlow builds a flow with the given number of questions. A non-positive
// count yields a flow with only the result step.
func NewFlow(questions int, home string) Flow {
	if home == "" {
		home = HomeRoute
	}
	if questions < 0 {
		questions = 0
	}
	steps := make([]Step, 0, questions+1)
	for i := 1; i <= questions; i++ {
		n := strconv.Itoa(i)
		steps = append(steps, Step{Route: questionRoutePrefix + n, Key: questionKeyPrefix + n})
	}
	steps = append(steps, Step{Route: ResultStep, Terminal: true})
	return Flow{Steps: steps, HomeRoute: home}
}

// Questions returns the number of question steps.
func (f Flow) Questions() int {
	n := 0
	for _, s := range f.Steps {
		if !s.Terminal {
			n++
		}
	}
	return n
}

// HasQuestion reports whether key identifies a question step of the flow.
func (f Flow) HasQuestion(key string) bool {
	if !strings.HasPrefix(key, questionKeyPrefix) {
		return false
	}
	for _, s := range f.Steps {
		if !s.Terminal && s.Key == key {
			return true
		}
	}
	return false
}

// Next returns the step that follows route, or false when route is terminal
// or unknown.
func (f Flow) Next(route string) (Step, bool) {
	for i, s := range f.Steps {
		if s.Route == route && i+1 < len(f.Steps) {
			return f.Steps[i+1], true
		}
	}
	return Step{}, false
}

// Complete reports whether every question of the flow has an answer.
func (f Flow) Complete(answers Answers) bool {
	for _, s := range f.Steps {
		if s.Terminal {
			continue
		}
		if _, ok := answers.Get(s.Key); !ok {
			return false
		}
	}
	return true
}

// Resume returns the first question without an answer, or the terminal step
// once every question is answered.
func (f Flow) Resume(answers Answers) Step {
	for _, s := range f.Steps {
		if s.Terminal {
			return s
		}
		if _, ok := answers.Get(s.Key); !ok {
			return s
		}
	}
	return Step{Route: ResultStep, Terminal: true}
}
