package lambdafn

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/systmms/mailbroker/internal/rotation"
)

// Rotator is satisfied by *rotation.Coordinator.
type Rotator interface {
	Handle(ctx context.Context, event rotation.Event) error
}

// RotationFunction handles Secrets Manager rotation invocations. A returned
// error fails the invocation so the scheduler retries the step.
type RotationFunction struct {
	rotator Rotator
}

// NewRotationFunction creates a RotationFunction.
func NewRotationFunction(rotator Rotator) *RotationFunction {
	return &RotationFunction{rotator: rotator}
}

// Handle runs the event's step.
func (f *RotationFunction) Handle(ctx context.Context, event events.SecretsManagerSecretRotationEvent) error {
	return f.rotator.Handle(ctx, rotation.Event{
		SecretID:           event.SecretID,
		ClientRequestToken: event.ClientRequestToken,
		Step:               rotation.Step(event.Step),
	})
}
