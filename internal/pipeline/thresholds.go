package pipeline

import (
	"slices"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

// Thresholds decide which detections raise events and which are drawn
type Thresholds struct {
	Person        float64
	Animal        float64
	Overlay       float64
	AnimalClasses []string
}

// qualifies reports whether d may trigger an event
func (t Thresholds) qualifies(d frame.Detection) bool {
	if d.Class == ClassPerson {
		return d.Confidence >= t.Person
	}
	return slices.Contains(t.AnimalClasses, d.Class) && d.Confidence >= t.Animal
}

// Evaluate scans detections in order. trigger is the first qualifying detection;
// person is true when any qualifying detection is a person.
func (t Thresholds) Evaluate(dets []frame.Detection) (trigger *frame.Detection, person bool) {
	for i := range dets {
		if !t.qualifies(dets[i]) {
			continue
		}
		if trigger == nil {
			trigger = &dets[i]
		}
		if dets[i].Class == ClassPerson {
			person = true
			break
		}
	}
	return trigger, person
}

// Overlays returns the detections confident enough to draw
func (t Thresholds) Overlays(dets []frame.Detection) []frame.Detection {
	out := make([]frame.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= t.Overlay {
			out = append(out, d)
		}
	}
	return out
}
