// Package objectstore is the orchestrator-side half of §4.3: at startup it
// verifies the configured bucket is reachable and owned, and for every new
// sandbox it computes the per-user hot/cold prefix layout passed into the
// container's environment. The orchestrator never moves object bytes
// itself; the transfer helpers in sync.go (SyncDown/SyncUp) are run by
// cmd/sandbox-init inside the sandbox during the in-container lifecycle
// protocol (§4.6).
//
// Grounded on e2b-dev-infra's pkg/storage/storage_aws.go for aws-sdk-go-v2
// wiring; the teacher has no object-store tier to adapt from.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrBucketUnreachable = errors.New("objectstore: bucket unreachable or not owned")

const headBucketTimeout = 10 * time.Second

// Prefixes is the per-user layout passed to a sandbox's environment.
type Prefixes struct {
	HotPrefix  string
	ColdPrefix string
}

// Gateway verifies bucket reachability and computes per-user prefixes.
type Gateway struct {
	client *s3.Client
	bucket string
	region string
}

// New loads the default AWS SDK config (credentials, region chain) and
// constructs a Gateway for bucket.
func New(ctx context.Context, bucket, region string) (*Gateway, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Gateway{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
	}, nil
}

// VerifyBucket confirms the bucket exists and is reachable with the
// orchestrator's credentials, per §4.3's "fail fast otherwise" startup
// requirement.
func (g *Gateway) VerifyBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, headBucketTimeout)
	defer cancel()

	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBucketUnreachable, err)
	}
	return nil
}

// PrefixesForUser computes the `users/{user_id}/hot/` and
// `users/{user_id}/cold/` layout from §4.3.
func PrefixesForUser(userID string) Prefixes {
	return Prefixes{
		HotPrefix:  fmt.Sprintf("users/%s/hot/", userID),
		ColdPrefix: fmt.Sprintf("users/%s/cold/", userID),
	}
}

// Bucket returns the configured bucket name, for building sandbox env vars.
func (g *Gateway) Bucket() string { return g.bucket }

// Region returns the configured region, for building sandbox env vars.
func (g *Gateway) Region() string { return g.region }
