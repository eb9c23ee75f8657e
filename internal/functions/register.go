package functions

import (
	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/knowledge"
)

// Toolbox returns the assistant's standard tools, backed by a fresh alarm
// book and task list. search_docs is only offered when ix is non-nil.
func Toolbox(ix *knowledge.Index) (*chat.Toolbox, error) {
	tb := chat.NewToolbox()

	decls := []*chat.FunctionDeclaration{
		CreateAlarmFunctionDeclaration(NewAlarmBook()),
		CreateRememberFunctionDeclaration(),
		CreateTaskFunctionDeclaration(NewTaskList()),
	}
	if ix != nil {
		decls = append(decls, CreateDocsSearchFunctionDeclaration(ix))
	}

	for _, d := range decls {
		if err := tb.Add(d); err != nil {
			return nil, err
		}
	}

	return tb, nil
}
