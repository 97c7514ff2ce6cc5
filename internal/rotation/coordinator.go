// Package rotation rotates a keypair secret through the four-step staged
// protocol: createSecret, setSecret, testSecret, finishSecret.
//
// A new version is written under the pending stage and only promoted to
// current in finishSecret. Every step may be replayed.
package rotation

import (
	"context"
	"encoding/json"
	"time"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/logging"
	"github.com/systmms/mailbroker/internal/metrics"
	"github.com/systmms/mailbroker/internal/validation"
)

// Coordinator drives one secret store through rotation events.
type Coordinator struct {
	store     SecretStore
	keys      KeyGenerator
	validator *validation.Validator
	logger    *logging.Logger
	metrics   *metrics.Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithKeyGenerator replaces the default 2048-bit RSA generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(c *Coordinator) {
		c.keys = g
	}
}

// WithValidator sets the schema validator.
func WithValidator(v *validation.Validator) Option {
	return func(c *Coordinator) {
		c.validator = v
	}
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator(store SecretStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		keys:   RSAGenerator{Bits: KeyBits},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = validation.MustNewValidator()
	}
	return c
}

// Handle runs one rotation event. Failures are logged with the event and
// returned unchanged so the caller's retry policy applies.
func (c *Coordinator) Handle(ctx context.Context, event Event) error {
	start := time.Now()
	log := c.logger.With(
		"secret_id", event.SecretID,
		"token", event.ClientRequestToken,
		"step", string(event.Step),
	)

	err := c.handle(ctx, log, event)
	if err != nil {
		c.metrics.RecordRotationStep(string(event.Step), mberrors.KindOf(err).String(), time.Since(start))
		log.Failure(ctx, "rotation step failed", err, "event", event)
		return err
	}
	c.metrics.RecordRotationStep(string(event.Step), "ok", time.Since(start))
	return nil
}

func (c *Coordinator) handle(ctx context.Context, log *logging.Logger, event Event) error {
	if err := c.validator.ValidateEvent(event); err != nil {
		return mberrors.Wrap(mberrors.PreconditionFailed, "rotation.validate_event", err, "malformed rotation event")
	}

	meta, err := c.describe(ctx, event.SecretID)
	if err != nil {
		return err
	}
	if !meta.RotationEnabled {
		return mberrors.New(mberrors.PreconditionFailed, "rotation.check_preconditions",
			"secret %s is not enabled for rotation", event.SecretID)
	}
	if _, ok := meta.VersionStages[event.ClientRequestToken]; !ok {
		return mberrors.New(mberrors.NotFound, "rotation.check_preconditions",
			"secret version %s has no stage for rotation of secret %s", event.ClientRequestToken, event.SecretID)
	}
	if meta.HasStage(event.ClientRequestToken, StageCurrent) {
		log.Info(ctx, "secret version already set as "+StageCurrent)
		return nil
	}
	if !meta.HasStage(event.ClientRequestToken, StagePending) {
		return mberrors.New(mberrors.PreconditionFailed, "rotation.check_preconditions",
			"secret version %s not set as %s for rotation of secret %s", event.ClientRequestToken, StagePending, event.SecretID)
	}

	switch event.Step {
	case StepCreateSecret:
		return c.createSecret(ctx, log, event)
	case StepSetSecret:
		log.Debug(ctx, "nothing to set")
		return nil
	case StepTestSecret:
		log.Debug(ctx, "nothing to test")
		return nil
	case StepFinishSecret:
		return c.finishSecret(ctx, log, event)
	default:
		return mberrors.New(mberrors.PreconditionFailed, "rotation.dispatch", "invalid step %q", event.Step)
	}
}

func (c *Coordinator) describe(ctx context.Context, secretID string) (*SecretMetadata, error) {
	meta, err := c.store.DescribeSecret(ctx, secretID)
	if err != nil {
		return nil, mberrors.Propagate("rotation.describe_secret", err, mberrors.UpstreamFailure)
	}
	return meta, nil
}

// createSecret stores a new keypair under the pending stage unless the
// pending version already has a value.
func (c *Coordinator) createSecret(ctx context.Context, log *logging.Logger, event Event) error {
	_, err := c.store.GetSecretValue(ctx, event.SecretID, event.ClientRequestToken, StagePending)
	if err == nil {
		log.Info(ctx, "successfully retrieved pending secret")
		return nil
	}
	if !mberrors.Is(err, mberrors.NotFound) {
		return mberrors.Propagate("rotation.get_pending", err, mberrors.UpstreamFailure)
	}

	start := time.Now()
	kp, err := c.keys.Generate(ctx)
	if err != nil {
		return mberrors.Wrap(mberrors.Internal, "rotation.generate_keypair", err, "generate keypair")
	}
	defer kp.PrivateKey.Destroy()
	c.metrics.RecordKeypairGeneration(time.Since(start))
	log.Info(ctx, "generated keypair", "public_key", kp.PublicKeyPEM)

	err = kp.PrivateKey.Use(func(private []byte) error {
		doc, err := json.Marshal(keypairDocument{PrivateKey: string(private), PublicKey: kp.PublicKeyPEM})
		if err != nil {
			return mberrors.Wrap(mberrors.Internal, "rotation.encode_keypair", err, "encode keypair document")
		}
		defer clear(doc)

		if err := c.validator.ValidateKeypairDocument(doc); err != nil {
			return mberrors.Wrap(mberrors.Internal, "rotation.validate_keypair", err, "keypair document rejected")
		}
		// The SDK takes a string, so this copy outlives the enclave until collected
		if err := c.store.PutSecretValue(ctx, event.SecretID, event.ClientRequestToken, string(doc), []string{StagePending}); err != nil {
			return mberrors.Propagate("rotation.put_pending", err, mberrors.UpstreamFailure)
		}
		return nil
	})
	if err != nil {
		return mberrors.Propagate("rotation.create_secret", err, mberrors.Internal)
	}

	log.Info(ctx, "successfully put secret")
	return nil
}

// finishSecret moves the current stage onto the event's version.
func (c *Coordinator) finishSecret(ctx context.Context, log *logging.Logger, event Event) error {
	meta, err := c.describe(ctx, event.SecretID)
	if err != nil {
		return err
	}

	current, _ := meta.VersionWithStage(StageCurrent)
	if current == event.ClientRequestToken {
		log.Info(ctx, "version already marked as "+StageCurrent, "version", current)
		return nil
	}

	if err := c.store.UpdateVersionStage(ctx, event.SecretID, StageCurrent, event.ClientRequestToken, current); err != nil {
		return mberrors.Propagate("rotation.update_stage", err, mberrors.UpstreamFailure)
	}
	log.Info(ctx, "successfully set "+StageCurrent+" stage", "version", event.ClientRequestToken, "previous_version", current)
	return nil
}
