package model

// Event is one sampled observation: a category index into Categories and the
// observable value.
type Event struct {
	Category int
	X        float64
}

// Dataset is a pseudo-dataset drawn from a workspace. It lives for one fit
// cycle.
type Dataset struct {
	Name   string
	Events []Event
}

// Len returns the number of events.
func (d *Dataset) Len() int { return len(d.Events) }

// CountByCategory returns the number of events in each category.
func (d *Dataset) CountByCategory() []int {
	counts := make([]int, len(Categories))
	for _, e := range d.Events {
		if e.Category >= 0 && e.Category < len(counts) {
			counts[e.Category]++
		}
	}
	return counts
}
