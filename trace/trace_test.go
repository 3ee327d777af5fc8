package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type sliceRecorder struct {
	events []Event
}

func (r *sliceRecorder) RecordEvent(event Event) {
	r.events = append(r.events, event)
}

func TestEventState(t *testing.T) {
	var disabled EventState
	disabled.BeginEvent()
	disabled.RecordSplit(0, []int{0, 1}, []int{2, 3})
	disabled.CommitEvent(1, 2)
	if disabled.HasRecorder() {
		t.Errorf("zero EventState claims a recorder")
	}

	recorder := &sliceRecorder{}
	acc := EventState{Recorder: recorder, Reducer: "probabilistic"}
	acc.BeginEvent()
	acc.RecordSplit(0, []int{0, 1}, []int{2, 3})
	acc.CommitEvent(1, 2)
	acc.BeginEvent()
	acc.RecordStable(true)
	acc.CommitEvent(2, 2)

	if len(recorder.events) != 2 {
		t.Fatalf("recorded %d events, expected 2", len(recorder.events))
	}
	if split, ok := recorder.events[0].Elements[0].(SplitElement); !ok || split.Sizes[1] != 3 {
		t.Errorf("first event lost its split: %v", recorder.events[0])
	}
	if _, ok := recorder.events[1].Elements[0].(StableElement); !ok || len(recorder.events[1].Elements) != 1 {
		t.Errorf("second event holds %v", recorder.events[1].Elements)
	}
}

func TestLocalFileRecorder(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "trace.jsonl")
	recorder, err := MakeLocalFileRecorder(filename)
	if err != nil {
		t.Fatal(err)
	}
	acc := EventState{Recorder: recorder, Reducer: "strong", Input: "a.aut"}
	acc.RecordSplit(0, []int{0, 1}, []int{1, 1})
	acc.CommitEvent(1, 2)
	acc.RecordStable(false)
	acc.CommitEvent(2, 2)
	if err := recorder.Close(); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	var lines []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("read %d lines, expected 2", len(lines))
	}
	element := lines[0]["elements"].([]interface{})[0].(map[string]interface{})
	if element["tag"] != "split" || lines[0]["input"] != "a.aut" || lines[1]["round"] != float64(2) {
		t.Errorf("unexpected trace %v", lines)
	}
}
