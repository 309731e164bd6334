package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
)

const TextCodeInvalidInput = "INVALID_INPUT"

// Message is a command payload routed to a handler.
type Message interface {
	Type() string
}

type commandMessage[R any] interface {
	Message
	respond(R)
}

// CommandHandler adapts a Service operation to the Execute(ctx, msg)
// shape used by command buses. The result is delivered through the
// message's OnResponse callback.
type CommandHandler[R any, M commandMessage[R]] struct {
	run func(ctx context.Context, msg M) (R, error)
}

func (h *CommandHandler[R, M]) Execute(ctx context.Context, msg M) error {
	res, err := h.run(ctx, msg)
	if err != nil {
		return err
	}
	msg.respond(res)
	return nil
}

func newHandler[R any, M commandMessage[R]](run func(ctx context.Context, msg M) (R, error)) *CommandHandler[R, M] {
	return &CommandHandler[R, M]{run: run}
}

// invalidInput converts ozzo-validation field errors into a Validation error.
func invalidInput(message string, err error) error {
	if err == nil {
		return nil
	}
	metadata := map[string]any{"reason": err.Error()}
	if fields, ok := err.(validation.Errors); ok {
		details := make(map[string]string, len(fields))
		for field, ferr := range fields {
			if ferr != nil {
				details[field] = ferr.Error()
			}
		}
		metadata["fields"] = details
	}
	return validationError(message, TextCodeInvalidInput, metadata)
}
