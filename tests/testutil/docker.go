package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/systmms/mailbroker/internal/providers"
)

const (
	LocalStackRegion    = "us-east-1"
	LocalStackAccessKey = "test"
	LocalStackSecretKey = "test"
)

// DockerTestEnv manages Docker Compose lifecycle for integration tests
type DockerTestEnv struct {
	t           *testing.T
	composePath string
	services    []string
	started     bool
	clients     *providers.Clients
	projectName string
	ports       map[string]map[int]int // service -> containerPort -> hostPort
}

// StartDockerEnv starts Docker Compose services for integration testing
func StartDockerEnv(t *testing.T, services []string) *DockerTestEnv {
	t.Helper()

	SkipIfDockerUnavailable(t)

	// Endpoint variables would send the SDK somewhere other than the container
	clearAWSEnvVars(t)

	composePath := findDockerComposePath(t)
	if composePath == "" {
		t.Fatal("docker-compose.yml not found in tests/integration/")
	}

	// UnixNano keeps parallel test runs from sharing a project
	projectName := fmt.Sprintf("mailbroker-test-%d", time.Now().UnixNano())

	env := &DockerTestEnv{
		t:           t,
		composePath: composePath,
		services:    services,
		projectName: projectName,
	}

	env.start()
	t.Cleanup(env.Stop)

	if err := env.WaitForHealthy(90 * time.Second); err != nil {
		t.Fatalf("Docker services failed to become healthy: %v", err)
	}
	if err := env.discoverPorts(); err != nil {
		t.Fatalf("Failed to discover ports: %v", err)
	}

	return env
}

func clearAWSEnvVars(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"AWS_ENDPOINT_URL",
		"AWS_ENDPOINT_URL_DYNAMODB",
		"AWS_ENDPOINT_URL_S3",
		"AWS_ENDPOINT_URL_STS",
		"AWS_ENDPOINT_URL_SECRETS_MANAGER",
		"AWS_PROFILE",
		"SECRETS_MANAGER_ENDPOINT",
	} {
		if val, ok := os.LookupEnv(key); ok {
			t.Logf("Clearing %s (was: %s)", key, val)
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}

// SkipIfDockerUnavailable skips the test if Docker is not available
func SkipIfDockerUnavailable(t *testing.T) {
	t.Helper()

	if !IsDockerAvailable() {
		t.Skip("Docker not available, skipping integration test")
	}
}

// IsDockerAvailable checks if Docker and Compose v2 are available and running
func IsDockerAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if err := exec.Command("docker", "ps").Run(); err != nil {
		return false
	}
	return exec.Command("docker", "compose", "version").Run() == nil
}

func (e *DockerTestEnv) start() {
	e.t.Helper()

	args := []string{
		"compose",
		"-f", e.composePath,
		"-p", e.projectName,
		"up", "-d",
	}
	args = append(args, e.services...)

	cmd := exec.Command("docker", args...)
	cmd.Dir = filepath.Dir(e.composePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	e.t.Logf("Starting Docker services: %v", e.services)
	if err := cmd.Run(); err != nil {
		e.t.Fatalf("Failed to start Docker services: %v", err)
	}
	e.started = true
}

// Stop stops and removes Docker Compose services
func (e *DockerTestEnv) Stop() {
	if !e.started {
		return
	}

	cmd := exec.Command("docker", "compose",
		"-f", e.composePath,
		"-p", e.projectName,
		"down", "-v")
	cmd.Dir = filepath.Dir(e.composePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		e.t.Logf("Warning: Failed to stop Docker services: %v", err)
	}
	e.started = false
}

// WaitForHealthy waits for all services to be healthy
func (e *DockerTestEnv) WaitForHealthy(timeout time.Duration) error {
	e.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for services to be healthy")
		case <-ticker.C:
			if e.checkHealth() {
				e.t.Logf("All services are healthy")
				return nil
			}
		}
	}
}

func (e *DockerTestEnv) checkHealth() bool {
	for _, service := range e.services {
		// Compose names containers {project}-{service}-{replica}
		containerName := fmt.Sprintf("%s-%s-1", e.projectName, service)

		output, err := exec.Command("docker", "inspect",
			"--format", "{{.State.Health.Status}}",
			containerName).Output()
		if err != nil {
			// No health check; running is good enough
			output, err = exec.Command("docker", "inspect",
				"--format", "{{.State.Status}}",
				containerName).Output()
			if err != nil || strings.TrimSpace(string(output)) != "running" {
				return false
			}
			continue
		}

		status := strings.TrimSpace(string(output))
		if status != "healthy" && status != "" {
			return false
		}
	}
	return true
}

func (e *DockerTestEnv) discoverPorts() error {
	e.ports = make(map[string]map[int]int)

	servicePorts := map[string][]int{
		"localstack": {4566},
	}

	for _, service := range e.services {
		ports, ok := servicePorts[service]
		if !ok {
			continue
		}
		e.ports[service] = make(map[int]int)

		for _, containerPort := range ports {
			cmd := exec.Command("docker", "compose",
				"-f", e.composePath,
				"-p", e.projectName,
				"port", service, fmt.Sprintf("%d", containerPort))
			cmd.Dir = filepath.Dir(e.composePath)

			output, err := cmd.Output()
			if err != nil {
				return fmt.Errorf("failed to get port for %s:%d: %w", service, containerPort, err)
			}

			// "0.0.0.0:32768" -> 32768
			portStr := strings.TrimSpace(string(output))
			idx := strings.LastIndex(portStr, ":")
			if idx < 0 {
				return fmt.Errorf("unexpected port output format: %s", portStr)
			}
			hostPort := 0
			if _, err := fmt.Sscanf(portStr[idx+1:], "%d", &hostPort); err != nil {
				return fmt.Errorf("failed to parse host port from %s: %w", portStr, err)
			}

			e.ports[service][containerPort] = hostPort
			e.t.Logf("Discovered port mapping: %s:%d -> localhost:%d", service, containerPort, hostPort)
		}
	}
	return nil
}

// GetPort returns the host port for a service's container port, or the
// container port when no mapping was discovered.
func (e *DockerTestEnv) GetPort(service string, containerPort int) int {
	if servicePorts, ok := e.ports[service]; ok {
		if hostPort, ok := servicePorts[containerPort]; ok {
			return hostPort
		}
	}
	return containerPort
}

// LocalStackEndpoint returns the LocalStack endpoint with dynamic port
func (e *DockerTestEnv) LocalStackEndpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", e.GetPort("localstack", 4566))
}

// LocalStackOptions returns AWS options pointing at the container, the same
// shape the commands build from configuration.
func (e *DockerTestEnv) LocalStackOptions() providers.AWSOptions {
	return providers.AWSOptions{
		Region:                 LocalStackRegion,
		SecretsManagerEndpoint: e.LocalStackEndpoint(),
		AccessKeyID:            LocalStackAccessKey,
		SecretAccessKey:        LocalStackSecretKey,
	}
}

// LocalStackClients returns SDK clients that all talk to LocalStack.
func (e *DockerTestEnv) LocalStackClients() *providers.Clients {
	e.t.Helper()

	if e.clients != nil {
		return e.clients
	}

	opts := e.LocalStackOptions()
	cfg, err := providers.LoadAWSConfig(context.Background(), opts)
	if err != nil {
		e.t.Fatalf("Failed to load AWS config: %v", err)
	}

	endpoint := aws.String(e.LocalStackEndpoint())
	e.clients = &providers.Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = endpoint
		}),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}),
		STS: sts.NewFromConfig(cfg, func(o *sts.Options) {
			o.BaseEndpoint = endpoint
		}),
		SecretsManager: providers.NewSecretsManagerClient(cfg, opts.SecretsManagerEndpoint),
	}
	return e.clients
}

// CreateUserTable creates a user directory table keyed by username.
func (e *DockerTestEnv) CreateUserTable(ctx context.Context, table string) error {
	_, err := e.LocalStackClients().DynamoDB.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []dynamodbtypes.AttributeDefinition{
			{AttributeName: aws.String("username"), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dynamodbtypes.KeySchemaElement{
			{AttributeName: aws.String("username"), KeyType: dynamodbtypes.KeyTypeHash},
		},
		BillingMode: dynamodbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// PutUser writes a directory record.
func (e *DockerTestEnv) PutUser(ctx context.Context, table, username, hash, bucket, prefix, role string) error {
	_, err := e.LocalStackClients().DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: map[string]dynamodbtypes.AttributeValue{
			"username":   &dynamodbtypes.AttributeValueMemberS{Value: username},
			"password":   &dynamodbtypes.AttributeValueMemberS{Value: hash},
			"bucket":     &dynamodbtypes.AttributeValueMemberS{Value: bucket},
			"bucket_dir": &dynamodbtypes.AttributeValueMemberS{Value: prefix},
			"role":       &dynamodbtypes.AttributeValueMemberS{Value: role},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

// CreateBucket creates a bucket in region. us-east-1 takes no location
// constraint.
func (e *DockerTestEnv) CreateBucket(ctx context.Context, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	if _, err := e.LocalStackClients().S3.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// CreateSecret creates a Secrets Manager secret with an initial AWSCURRENT
// value and returns its ARN.
func (e *DockerTestEnv) CreateSecret(ctx context.Context, name, value string) (string, error) {
	out, err := e.LocalStackClients().SecretsManager.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create secret: %w", err)
	}
	return aws.ToString(out.ARN), nil
}

func findDockerComposePath(t *testing.T) string {
	t.Helper()

	candidates := []string{
		"../../tests/integration/docker-compose.yml",
		"../integration/docker-compose.yml",
		"./docker-compose.yml",
		"tests/integration/docker-compose.yml",
	}

	// Walk up to the module root
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				candidates = append(candidates, filepath.Join(dir, "tests/integration/docker-compose.yml"))
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	for _, path := range candidates {
		if absPath, err := filepath.Abs(path); err == nil {
			if _, err := os.Stat(absPath); err == nil {
				return absPath
			}
		}
	}
	return ""
}
