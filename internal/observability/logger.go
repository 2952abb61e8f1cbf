package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRunStarted       EventType = "run_started"
	EventTypePlan             EventType = "plan"
	EventTypePlannerSelection EventType = "planner_selection"
	EventTypePolicyCheck      EventType = "policy_check"
	EventTypeStepDispatched   EventType = "step_dispatched"
	EventTypeStepResult       EventType = "step_result"
	EventTypeRunFinished      EventType = "run_finished"
	EventTypeHeartbeat        EventType = "heartbeat"
	EventTypeLLM              EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Step      int       `json:"step,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerTo writes events to out and LLM exchanges to llmLogPath. An empty
// llmLogPath disables the LLM file.
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogRunStarted(runID, source string, steps int) {
	l.Log(Event{
		Type:  EventTypeRunStarted,
		RunID: runID,
		Data:  map[string]any{"source": source, "steps": steps},
	})
}

func (l *Logger) LogSelection(runID string, step int, capability, via string) {
	l.Log(Event{
		Type:  EventTypePlannerSelection,
		RunID: runID,
		Step:  step,
		Data:  map[string]string{"capability": capability, "via": via},
	})
}

func (l *Logger) LogPolicy(runID string, step int, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Step:  step,
		Data:  map[string]string{"effect": effect, "reason": reason},
	})
}

func (l *Logger) LogStepDispatched(runID string, step int, capability, text string) {
	l.Log(Event{
		Type:  EventTypeStepDispatched,
		RunID: runID,
		Step:  step,
		Data:  map[string]string{"capability": capability, "text": text},
	})
}

func (l *Logger) LogStepResult(runID string, step int, status, errKind string, duration time.Duration) {
	l.Log(Event{
		Type:  EventTypeStepResult,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"status":      status,
			"error_kind":  errKind,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

func (l *Logger) LogRunFinished(runID, status string, executed, errors int) {
	l.Log(Event{
		Type:  EventTypeRunFinished,
		RunID: runID,
		Data: map[string]any{
			"status":         status,
			"steps_executed": executed,
			"errors":         errors,
		},
	})
}

// LogHeartbeat refreshes the process heartbeat and logs it with the number of
// active runs.
func (l *Logger) LogHeartbeat() {
	Heartbeat()
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]any{"status": "alive", "active_runs": GetStatus().ActiveRuns},
	})
}

func (l *Logger) LogLLM(runID, purpose string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"purpose":    purpose,
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
