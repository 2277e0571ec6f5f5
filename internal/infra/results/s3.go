package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
)

// S3Store keeps one object per step.
// Key layout: <prefix>/results/<chainID>/step-NNN.json
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

var _ output.StepResultStore = (*S3Store)(nil)

// S3Config holds the bucket settings
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// NewS3Store creates a store using the default AWS credential chain
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient creates a store over any S3API implementation
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

func (s *S3Store) buildKey(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if s.prefix != "" {
		all = append(all, s.prefix)
	}
	all = append(all, parts...)
	return strings.Join(all, "/")
}

func (s *S3Store) chainPrefix(chainID string) string {
	return s.buildKey("results", escapeChainID(chainID)) + "/"
}

// StoreResult uploads the step as a JSON object
func (s *S3Store) StoreResult(ctx context.Context, chainID string, step int, content string, metadata map[string]interface{}) error {
	body, err := json.Marshal(output.StepResult{
		ChainID:  chainID,
		Step:     step,
		Content:  content,
		Metadata: metadata,
		StoredAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal step result: %w", err)
	}
	key := s.chainPrefix(chainID) + fmt.Sprintf("step-%03d.json", step)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload to S3: %w", err)
	}
	return nil
}

func (s *S3Store) listKeys(ctx context.Context, chainID string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.chainPrefix(chainID)),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// GetResults downloads every step object of the chain, ordered by step
func (s *S3Store) GetResults(ctx context.Context, chainID string) ([]output.StepResult, error) {
	keys, err := s.listKeys(ctx, chainID)
	if err != nil {
		return nil, err
	}
	results := make([]output.StepResult, 0, len(keys))
	for _, key := range keys {
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", key, err)
		}
		data, err := io.ReadAll(obj.Body)
		obj.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		var r output.StepResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		results = append(results, r)
	}
	sortByStep(results)
	return results, nil
}

// ClearResults deletes every step object of the chain
func (s *S3Store) ClearResults(ctx context.Context, chainID string) error {
	keys, err := s.listKeys(ctx, chainID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// BuildVariables derives template variables from the chain's results
func (s *S3Store) BuildVariables(ctx context.Context, chainID string) (map[string]interface{}, error) {
	results, err := s.GetResults(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return BuildVariables(results), nil
}
