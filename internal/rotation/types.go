package rotation

import (
	"context"
	"slices"
)

// Step names one phase of the rotation protocol.
type Step string

const (
	StepCreateSecret Step = "createSecret"
	StepSetSecret    Step = "setSecret"
	StepTestSecret   Step = "testSecret"
	StepFinishSecret Step = "finishSecret"
)

// Staging labels.
const (
	StageCurrent = "AWSCURRENT"
	StagePending = "AWSPENDING"
)

// Event is one externally triggered rotation phase.
type Event struct {
	SecretID           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
	Step               Step   `json:"Step"`
}

// SecretMetadata is the part of a secret's description the coordinator reads.
type SecretMetadata struct {
	RotationEnabled bool
	// VersionStages maps version id to the staging labels attached to it.
	VersionStages map[string][]string
}

// HasStage reports whether version carries stage.
func (m *SecretMetadata) HasStage(version, stage string) bool {
	return slices.Contains(m.VersionStages[version], stage)
}

// VersionWithStage returns the version carrying stage, if any.
func (m *SecretMetadata) VersionWithStage(stage string) (string, bool) {
	for version, stages := range m.VersionStages {
		if slices.Contains(stages, stage) {
			return version, true
		}
	}
	return "", false
}

// SecretStore is the versioned secret store the coordinator drives.
//
// GetSecretValue reports a missing version/stage pair as a NotFound error.
// UpdateVersionStage moves stage to moveToVersion and removes it from
// removeFromVersion in one call; an empty removeFromVersion only attaches.
type SecretStore interface {
	DescribeSecret(ctx context.Context, secretID string) (*SecretMetadata, error)
	GetSecretValue(ctx context.Context, secretID, versionID, stage string) (string, error)
	PutSecretValue(ctx context.Context, secretID, token, value string, stages []string) error
	UpdateVersionStage(ctx context.Context, secretID, stage, moveToVersion, removeFromVersion string) error
}
