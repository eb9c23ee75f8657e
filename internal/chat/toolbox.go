package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// FunctionCallFn executes a tool with the arguments chosen by the model.
type FunctionCallFn func(ctx context.Context, args map[string]any) (map[string]any, error)

// FunctionDeclaration describes a tool the model may call.
type FunctionDeclaration struct {
	Name             string
	Description      string
	ParametersSchema any
	ResponseSchema   any
	FunctionCall     FunctionCallFn
}

func (fd *FunctionDeclaration) validate() error {
	switch {
	case fd == nil:
		return errors.New("chat: tool declaration is nil")
	case fd.Name == "":
		return errors.New("chat: tool name is empty")
	case fd.FunctionCall == nil:
		return fmt.Errorf("chat: tool %s has no implementation", fd.Name)
	}
	return nil
}

// Toolbox is the set of functions offered to the model. The zero value is empty and usable.
type Toolbox struct {
	mu        sync.RWMutex
	functions map[string]*FunctionDeclaration
	sorted    []*FunctionDeclaration
	version   uint64
}

func NewToolbox() *Toolbox {
	return &Toolbox{functions: make(map[string]*FunctionDeclaration)}
}

// Add registers fd. Names are unique within a toolbox.
func (t *Toolbox) Add(fd *FunctionDeclaration) error {
	if err := fd.validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.functions[fd.Name]; exists {
		return fmt.Errorf("chat: tool %s already registered", fd.Name)
	}
	if t.functions == nil {
		t.functions = make(map[string]*FunctionDeclaration)
	}
	t.functions[fd.Name] = fd
	t.sorted = nil
	t.version++

	return nil
}

// Len returns the number of registered functions; nil toolboxes are empty.
func (t *Toolbox) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.functions)
}

// Declarations returns the registered functions sorted by name.
func (t *Toolbox) Declarations() []*FunctionDeclaration {
	decls, _ := t.snapshot()
	return decls
}

// snapshot returns the sorted declarations together with a version that
// changes whenever the set does. The slice is shared and must not be modified.
func (t *Toolbox) snapshot() ([]*FunctionDeclaration, uint64) {
	if t == nil {
		return nil, 0
	}

	t.mu.RLock()
	if t.sorted != nil || len(t.functions) == 0 {
		defer t.mu.RUnlock()
		return t.sorted, t.version
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sorted == nil {
		t.sorted = make([]*FunctionDeclaration, 0, len(t.functions))
		for _, fd := range t.functions {
			t.sorted = append(t.sorted, fd)
		}
		sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].Name < t.sorted[j].Name })
	}
	return t.sorted, t.version
}

// Call runs the named function.
func (t *Toolbox) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if t != nil {
		t.mu.RLock()
		fd, exists := t.functions[name]
		t.mu.RUnlock()
		if exists {
			return fd.FunctionCall(ctx, args)
		}
	}

	return nil, fmt.Errorf("function %s not found", name)
}

// invoke runs a tool and always yields a response map; failures are reported
// to the model as {"error": ...} so it can recover in its next turn.
func (t *Toolbox) invoke(ctx context.Context, name string, args map[string]any) map[string]any {
	resp, err := t.Call(ctx, name, args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if resp == nil {
		resp = map[string]any{}
	}
	return resp
}
