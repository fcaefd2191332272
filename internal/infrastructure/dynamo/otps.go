package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-otp-auth/internal/domain"
)

// OTPRepo stores OTP records.
// PK: otp_key (email#purpose), SK: otp_id. expires_at doubles as the table TTL,
// but DynamoDB TTL deletion is lazy so reads still filter on it.
type OTPRepo struct {
	client    otpAPI
	tableName string
}

// otpAPI is the subset of the DynamoDB client the OTP repo calls.
type otpAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return storageErr("put otp", err)
	}
	return nil
}

func (r *OTPRepo) DeleteByKey(ctx context.Context, key string) error {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#k = :k"),
		ProjectionExpression:      aws.String("#k, #i"),
		ExpressionAttributeNames:  map[string]string{"#k": fieldOTPKey, "#i": fieldOTPID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":k": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead:            aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return storageErr("query otps", err)
		}
		if err := r.deleteItems(ctx, page.Items); err != nil {
			return err
		}
	}
	return nil
}

// ListUsable pages through every record under key. The filter applies per
// page, so a page can come back empty while later pages still hold live codes.
func (r *OTPRepo) ListUsable(ctx context.Context, key string, now time.Time) ([]domain.OTPRecord, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#k = :k"),
		FilterExpression:       aws.String("#u = :f AND #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldOTPKey, "#u": fieldUsed, "#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k":   &types.AttributeValueMemberS{Value: key},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":now": unixValue(now),
		},
		ConsistentRead: aws.Bool(true),
	})
	var recs []domain.OTPRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storageErr("query otps", err)
		}
		var batch []domain.OTPRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal otps: %w", err)
		}
		recs = append(recs, batch...)
	}
	return recs, nil
}

// IncrementAttempts adds one to attempts while it is below max. A record that
// already reached max or disappeared is left alone.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, rec *domain.OTPRecord, max int) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(fieldOTPKey, rec.Key, fieldOTPID, rec.OTPID),
		UpdateExpression:         aws.String("SET #a = #a + :one"),
		ConditionExpression:      aws.String("attribute_exists(#i) AND #a < :max"),
		ExpressionAttributeNames: map[string]string{"#a": fieldAttempts, "#i": fieldOTPID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	if err != nil {
		return storageErr("increment otp attempts", err)
	}
	return nil
}

// MarkUsed consumes rec. The condition re-checks every usability rule so two
// concurrent verifications cannot both succeed.
func (r *OTPRepo) MarkUsed(ctx context.Context, rec *domain.OTPRecord, max int, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey(fieldOTPKey, rec.Key, fieldOTPID, rec.OTPID),
		UpdateExpression:    aws.String("SET #u = :t"),
		ConditionExpression: aws.String("attribute_exists(#i) AND #u = :f AND #a < :max AND #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUsed, "#i": fieldOTPID, "#a": fieldAttempts, "#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
			":now": unixValue(now),
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("otp no longer usable: %w", domain.ErrConflict)
	}
	if err != nil {
		return storageErr("mark otp used", err)
	}
	return nil
}

func (r *OTPRepo) Delete(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldOTPKey, rec.Key, fieldOTPID, rec.OTPID),
	})
	if err != nil {
		return storageErr("delete otp", err)
	}
	return nil
}

// DeleteReapable scans for used or expired records and deletes them.
func (r *OTPRepo) DeleteReapable(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#u = :t OR #e <= :now"),
		ProjectionExpression: aws.String("#k, #i"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUsed, "#e": fieldExpiresAt, "#k": fieldOTPKey, "#i": fieldOTPID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":now": unixValue(now),
		},
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, storageErr("scan otps", err)
		}
		if err := r.deleteItems(ctx, page.Items); err != nil {
			return n, err
		}
		n += len(page.Items)
	}
	return n, nil
}

func (r *OTPRepo) deleteItems(ctx context.Context, items []map[string]types.AttributeValue) error {
	for _, item := range items {
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				fieldOTPKey: item[fieldOTPKey],
				fieldOTPID:  item[fieldOTPID],
			},
		})
		if err != nil {
			return storageErr("delete otp", err)
		}
	}
	return nil
}

func unixValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}
