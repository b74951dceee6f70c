package models

// Framework is an immutable template of phases and tracked metrics.
type Framework struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Phases      []string `json:"phases"`
	Metrics     []string `json:"metrics,omitempty"`
}

// Copy returns a deep copy so collaborations never share catalog slices.
func (f Framework) Copy() Framework {
	out := f
	out.Phases = append([]string(nil), f.Phases...)
	out.Metrics = append([]string(nil), f.Metrics...)
	return out
}

// HasPhase reports whether phase is one of the framework's phases.
func (f Framework) HasPhase(phase string) bool {
	for _, p := range f.Phases {
		if p == phase {
			return true
		}
	}
	return false
}
