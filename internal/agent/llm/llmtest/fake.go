// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Respond produces the reply for one call.
type Respond func(msgs []*schema.Message) (*schema.Message, error)

// ChatModel is a fake eino ToolCallingChatModel. Safe for concurrent use.
type ChatModel struct {
	mu      sync.Mutex
	respond Respond
	calls   [][]*schema.Message
	tools   []*schema.ToolInfo
}

func New(respond Respond) *ChatModel {
	return &ChatModel{respond: respond}
}

// Reply returns a model that always answers with content.
func Reply(content string) *ChatModel {
	return New(func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	})
}

// Replies answers with the given contents in order and repeats the last one.
func Replies(contents ...string) *ChatModel {
	var mu sync.Mutex
	i := 0
	return New(func([]*schema.Message) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(contents) == 0 {
			return nil, errors.New("no scripted reply")
		}
		c := contents[min(i, len(contents)-1)]
		i++
		return schema.AssistantMessage(c, nil), nil
	})
}

// Fail returns a model whose every call fails with err.
func Fail(err error) *ChatModel {
	return New(func([]*schema.Message) (*schema.Message, error) { return nil, err })
}

func (f *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.mu.Unlock()
	return f.respond(input)
}

func (f *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools records the tools and returns the same fake so calls stay observable.
func (f *ChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	return f, nil
}

// Calls returns the number of Generate calls so far.
func (f *ChatModel) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastInput returns the messages of the most recent call.
func (f *ChatModel) LastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// Tools returns the tools bound with WithTools.
func (f *ChatModel) Tools() []*schema.ToolInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools
}

// ToolCall builds an assistant message carrying one tool call.
func ToolCall(name, arguments string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})
}
