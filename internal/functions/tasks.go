package functions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m2tx/gemini_chat/internal/chat"
)

const dueLayout = "2006-01-02"

type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Due       string    `json:"due,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskList is the to-do list the create_task tool appends to.
type TaskList struct {
	mu    sync.Mutex
	tasks []Task
}

func NewTaskList() *TaskList {
	return &TaskList{}
}

// Add appends a task. Titles are unique, ignoring case and surrounding space.
func (l *TaskList) Add(title, due string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("task title is required")
	}

	due = strings.TrimSpace(due)
	if due != "" {
		if _, err := time.Parse(dueLayout, due); err != nil {
			return Task{}, fmt.Errorf("invalid due date %q, expected YYYY-MM-DD", due)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.tasks {
		if strings.EqualFold(t.Title, title) {
			return Task{}, fmt.Errorf("task %q already exists", t.Title)
		}
	}

	task := Task{
		ID:        uuid.NewString(),
		Title:     title,
		Due:       due,
		CreatedAt: time.Now().UTC(),
	}
	l.tasks = append(l.tasks, task)
	return task, nil
}

func (l *TaskList) List() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Task(nil), l.tasks...)
}

func CreateTaskFunctionDeclaration(tasks *TaskList) *chat.FunctionDeclaration {
	return &chat.FunctionDeclaration{
		Name:        "create_task",
		Description: "Adds a task to the user's to-do list.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Short title of the task",
				},
				"due": map[string]any{
					"type":        "string",
					"description": "Optional due date in YYYY-MM-DD format",
				},
			},
			"required": []string{"title"},
		},
		ResponseSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":      map[string]any{"type": "string"},
				"taskTitle": map[string]any{"type": "string"},
				"id":        map[string]any{"type": "string"},
				"message":   map[string]any{"type": "string"},
			},
		},
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			title, _ := args["title"].(string)
			due, _ := args["due"].(string)

			task, err := tasks.Add(title, due)
			if err != nil {
				return map[string]any{
					"type":      "task_create_failed",
					"taskTitle": strings.TrimSpace(title),
					"message":   err.Error(),
				}, nil
			}

			out := map[string]any{
				"type":      "task_create_success",
				"taskTitle": task.Title,
				"id":        task.ID,
			}
			if task.Due != "" {
				out["due"] = task.Due
			}
			return out, nil
		},
	}
}
