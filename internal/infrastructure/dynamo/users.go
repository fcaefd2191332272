package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-otp-auth/internal/domain"
)

// UserRepo provides typed DynamoDB operations for the users table.
// PK: email. google_sub is projected into a sparse GSI.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

// Create inserts u. It fails with domain.ErrConflict if the email is taken.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#e)"),
		ExpressionAttributeNames: map[string]string{"#e": fieldEmail},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if err != nil {
		return storageErr("put user", err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(googleSubIndex),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldGoogleSub},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: sub}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, storageErr("query user by google sub", err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// LinkGoogle attaches a Google subject to an existing account and marks the
// email verified. It fails with domain.ErrConflict when a different subject
// is already linked.
func (r *UserRepo) LinkGoogle(ctx context.Context, email, sub string) error {
	err := r.update(ctx, email, map[string]interface{}{
		fieldGoogleSub:     sub,
		fieldEmailVerified: true,
	}, "attribute_not_exists(#c1) OR #c1 = :c1", map[string]string{"#c1": fieldGoogleSub},
		map[string]types.AttributeValue{":c1": &types.AttributeValueMemberS{Value: sub}})
	if isConditionFailed(err) {
		return fmt.Errorf("google account already linked: %w", domain.ErrConflict)
	}
	return err
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, email string) error {
	return r.update(ctx, email, map[string]interface{}{fieldEmailVerified: true}, "", nil, nil)
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	return r.update(ctx, email, map[string]interface{}{fieldLastLoginAt: at.UTC()}, "", nil, nil)
}

// update applies a SET to an existing user. cond, when non-empty, is ANDed
// with the existence check.
func (r *UserRepo) update(ctx context.Context, email string, updates map[string]interface{},
	cond string, condNames map[string]string, condValues map[string]types.AttributeValue) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldEmail
	expr := "attribute_exists(#pk)"
	if cond != "" {
		expr += " AND (" + cond + ")"
		for k, v := range condNames {
			ue.Names[k] = v
		}
		for k, v := range condValues {
			ue.Values[k] = v
		}
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, email),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) && cond == "" {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil && !isConditionFailed(err) {
		return storageErr("update user", err)
	}
	return err
}
