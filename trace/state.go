package trace

// EventState accumulates the elements of the current round. With a nil Recorder every method
// is a no-op.
type EventState struct {
	Recorder Recorder
	Reducer  string
	Input    string
	elements []Element
}

func (acc *EventState) HasRecorder() bool {
	return acc.Recorder != nil
}

func (acc *EventState) clearElements() {
	// clear slice to GC old elements
	for idx := range acc.elements {
		acc.elements[idx] = nil
	}
	acc.elements = acc.elements[:0]
}

func (acc *EventState) BeginEvent() {
	if acc.Recorder == nil {
		return
	}
	if len(acc.elements) != 0 {
		panic("trace accumulator corrupted")
	}
}

func (acc *EventState) CommitEvent(round, blocks int) {
	if acc.Recorder == nil {
		return
	}
	acc.Recorder.RecordEvent(Event{
		Reducer:  acc.Reducer,
		Input:    acc.Input,
		Round:    round,
		Blocks:   blocks,
		Elements: append([]Element(nil), acc.elements...),
	})
	acc.clearElements()
}

func (acc *EventState) RecordSplit(block int, into, sizes []int) {
	if acc.Recorder == nil {
		return
	}
	if len(into) < 2 || len(into) != len(sizes) {
		panic("split must produce at least two parts")
	}
	acc.elements = append(acc.elements, SplitElement{
		Block: block,
		Into:  into,
		Sizes: sizes,
	})
}

func (acc *EventState) RecordStable(converged bool) {
	if acc.Recorder == nil {
		return
	}
	acc.elements = append(acc.elements, StableElement{Converged: converged})
}
