package trace

import (
	"encoding/json"
	"os"
	"sync"
)

type Recorder interface {
	RecordEvent(event Event)
}

type localFileRecorder struct {
	lock    sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileRecorder writes events to a file as JSON lines.
type FileRecorder interface {
	Recorder
	Close() error
}

func MakeLocalFileRecorder(filename string) (FileRecorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &localFileRecorder{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func (recorder *localFileRecorder) RecordEvent(event Event) {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()

	err := recorder.encoder.Encode(event)
	if err != nil {
		panic(err)
	}
}

func (recorder *localFileRecorder) Close() error {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return recorder.file.Close()
}
