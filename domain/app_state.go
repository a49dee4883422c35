package domain

// AppState holds process-wide flags for a session, independent of intake
// content.
type AppState struct {
	OnboardingCompleted bool  `json:"onboardingCompleted"`
	LastEstimate        *int  `json:"lastEstimate,omitempty"`
	UpdatedAt           int64 `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s AppState) Clone() AppState {
	if s.LastEstimate != nil {
		v := *s.LastEstimate
		s.LastEstimate = &v
	}
	return s
}
