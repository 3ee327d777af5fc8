package trace

import (
	"encoding/json"
)

// Event describes one refinement round of a reducer.
type Event struct {
	Reducer  string
	Input    string
	Round    int
	Blocks   int
	Elements []Element
}

func (event Event) MarshalJSON() ([]byte, error) {
	serializedElements := []json.RawMessage{}
	for _, element := range event.Elements {
		var fields map[string]interface{}
		switch element := element.(type) {
		case SplitElement:
			fields = map[string]interface{}{
				"tag":   "split",
				"block": element.Block,
				"into":  element.Into,
				"sizes": element.Sizes,
			}
		case StableElement:
			fields = map[string]interface{}{
				"tag":       "stable",
				"converged": element.Converged,
			}
		default:
			panic("should be unreachable")
		}
		buf, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		serializedElements = append(serializedElements, buf)
	}

	return json.Marshal(map[string]interface{}{
		"reducer":  event.Reducer,
		"input":    event.Input,
		"round":    event.Round,
		"blocks":   event.Blocks,
		"elements": serializedElements,
	})
}

type Element interface {
	isElement()
}

// SplitElement records that a block of the previous round was divided. Into lists the new
// block numbers and Sizes their member counts.
type SplitElement struct {
	Block int
	Into  []int
	Sizes []int
}

var _ Element = SplitElement{}

func (_ SplitElement) isElement() {}

// StableElement closes a run. Converged is false when the round limit stopped refinement.
type StableElement struct {
	Converged bool
}

var _ Element = StableElement{}

func (_ StableElement) isElement() {}
