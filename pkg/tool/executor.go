package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Handler implements one tool. A returned *Failure becomes a failed result
// carrying its hint; any other error becomes a failed result with its message.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Failure is a recoverable tool failure with an optional hint payload.
type Failure struct {
	Message string
	Hint    any
}

func (f *Failure) Error() string { return f.Message }

// Fail builds a *Failure.
func Fail(hint any, format string, args ...any) error {
	return &Failure{Message: fmt.Sprintf(format, args...), Hint: hint}
}

// Observer is notified after every execution.
type Observer func(call types.ToolCall, result types.ToolResult)

type Executor struct {
	registry *Registry
	policy   *Policy
	handlers map[string]Handler
	log      *slog.Logger
	observer Observer

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

func NewExecutor(registry *Registry, policy *Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		policy:   policy,
		handlers: make(map[string]Handler),
		log:      logger,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

func (e *Executor) RegisterHandler(name string, handler Handler) {
	e.handlers[name] = handler
}

// SetObserver registers a callback run after every Execute.
func (e *Executor) SetObserver(o Observer) {
	e.observer = o
}

// Execute dispatches call to its handler. It never panics and never returns
// an error: every outcome is a types.ToolResult.
func (e *Executor) Execute(ctx context.Context, call types.ToolCall) (result types.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tool handler panicked", "tool", call.Name, "panic", r)
			result = types.Failed(fmt.Sprintf("tool %s failed: %v", call.Name, r), nil)
		}
		result.ToolCallID = call.ID
		result.ToolName = call.Name
		if e.observer != nil {
			e.observer(call, result)
		}
	}()

	return e.execute(ctx, call)
}

func (e *Executor) execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	// 1. Lookup Tool Definition
	toolDef, ok := e.registry.Get(call.Name)
	if !ok {
		return types.Failed(fmt.Sprintf("unknown tool: %s", call.Name), map[string]any{
			"available_tools": e.registry.Names(),
		})
	}

	// 2. Check Policy
	if e.policy != nil {
		action, err := e.policy.Check(ctx, call.Name)
		if action == PolicyDeny {
			msg := fmt.Sprintf("policy denied execution of tool: %s", call.Name)
			if err != nil {
				msg = err.Error()
			}
			return types.Failed(msg, nil)
		}
	}

	// 3. Validate Arguments
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := e.validate(toolDef, args); err != nil {
		return types.Failed(fmt.Sprintf("invalid arguments for %s: %v", call.Name, err), nil)
	}

	// 4. Lookup Handler
	handler, ok := e.handlers[call.Name]
	if !ok {
		return types.Failed(fmt.Sprintf("no handler implementation for tool: %s", call.Name), nil)
	}

	// 5. Execute
	output, err := handler(ctx, args)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			return types.Failed(failure.Message, failure.Hint)
		}
		return types.Failed(err.Error(), nil)
	}
	return types.Succeeded(output)
}

func (e *Executor) validate(t types.Tool, args map[string]any) error {
	if len(t.Parameters) == 0 {
		return nil
	}
	sch, err := e.schema(t)
	if err != nil {
		return err
	}

	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return sch.Validate(inst)
}

func (e *Executor) schema(t types.Tool) (*jsonschema.Schema, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if sch, ok := e.schemas[t.Name]; ok {
		return sch, nil
	}

	schemaBytes, err := json.Marshal(t.Parameters)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}

	url := t.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaObj); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	e.schemas[t.Name] = sch
	return sch, nil
}

func (e *Executor) List() []types.Tool {
	return e.registry.List()
}
