package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DynamoDBVersionedStore implements VersionedStore on a DynamoDB table whose
// partition key is the binary attribute "k". Versions are enforced with a
// conditional put, so it guards writers across processes.
type DynamoDBVersionedStore struct {
	profile string
	region  string
	table   string

	// Do throttling on our side based on configured RCUs/WCUs so the
	// client doesn't have to retry.
	getLimiter *rate.Limiter
	putLimiter *rate.Limiter

	ddb *dynamodb.DynamoDB
}

func NewDynamoDBVersionedStore(profile, region, table string) (*DynamoDBVersionedStore, error) {
	s := &DynamoDBVersionedStore{
		profile: profile,
		region:  region,
		table:   table,
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(s.region),
		Credentials: credentials.NewSharedCredentials("", s.profile),
	})
	if err != nil {
		return nil, err
	}
	s.ddb = dynamodb.New(sess)
	if err := s.configureLimiters(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DynamoDBVersionedStore) configureLimiters() error {
	result, err := s.ddb.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: &s.table,
	})
	if err != nil {
		return err
	}
	var rcus, wcus int64
	if pt := result.Table.ProvisionedThroughput; pt != nil {
		rcus = aws.Int64Value(pt.ReadCapacityUnits)
		wcus = aws.Int64Value(pt.WriteCapacityUnits)
	}
	s.getLimiter = limiterFor(rcus)
	s.putLimiter = limiterFor(wcus)
	return nil
}

// Assume items are <= 1 kB, so that capacity units translate to requests per
// second. On-demand tables report zero units and are not throttled here.
func limiterFor(units int64) *rate.Limiter {
	if units <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(1_000_000/units)*time.Microsecond), 1)
}

func (s *DynamoDBVersionedStore) Put(ctx context.Context, version uint64, key string, value []byte) (err error) {
	ve := ddbNumber(version)
	var input dynamodb.PutItemInput
	input.TableName = &s.table
	input.ConditionExpression = aws.String("attribute_not_exists(ve) or (ve < :ourVersion)")
	input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
		":ourVersion": ve,
	}
	input.Item = map[string]*dynamodb.AttributeValue{
		"k":  ddbBinary([]byte(key)),
		"ve": ve,
		"va": ddbBinary(value),
	}
	if err := s.putLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err = s.ddb.PutItemWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
				return ErrStalePut
			}
		}
		return err
	}
	log.WithFields(log.Fields{
		"key":     key,
		"version": version,
	}).Debug("Stored version")
	return nil
}

func (s *DynamoDBVersionedStore) Get(ctx context.Context, key string) (version uint64, value []byte, err error) {
	var input dynamodb.GetItemInput
	input.TableName = &s.table
	input.ConsistentRead = aws.Bool(true)
	input.Key = map[string]*dynamodb.AttributeValue{
		"k": ddbBinary([]byte(key)),
	}
	if err := s.getLimiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	output, err := s.ddb.GetItemWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return 0, nil, fmt.Errorf("%v: %w", e, ErrNotFound)
			}
		}
		return 0, nil, err
	}
	if output.Item == nil {
		return 0, nil, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	value = output.Item["va"].B
	version, err = strconv.ParseUint(aws.StringValue(output.Item["ve"].N), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%q: bad version attribute: %w", key, err)
	}
	return version, value, nil
}

func ddbBinary(b []byte) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{
		B: dup(b),
	}
}

func ddbNumber(n uint64) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{
		N: aws.String(strconv.FormatUint(n, 10)),
	}
}
