// Package sns delivers push messages through AWS SNS mobile push platform applications.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
)

// API is the subset of the SNS client the transport calls.
type API interface {
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewClient creates an SNS client. When cfg.AWSEndpointURL is set (LocalStack) the endpoint is overridden.
func NewClient(ctx context.Context, cfg *config.Config) (*sns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SNS: %w", err)
	}
	var clientOpts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return sns.NewFromConfig(awsCfg, clientOpts...), nil
}

// Transport publishes to one platform endpoint per push token. Endpoint ARNs are
// remembered per token; CreatePlatformEndpoint is idempotent for an unchanged token.
type Transport struct {
	client       API
	platformARNs map[domain.Platform]string

	mu        sync.Mutex
	endpoints map[string]string
}

func NewTransport(client API, iosARN, androidARN string) *Transport {
	arns := make(map[domain.Platform]string, 2)
	if iosARN != "" {
		arns[domain.PlatformIOS] = iosARN
	}
	if androidARN != "" {
		arns[domain.PlatformAndroid] = androidARN
	}
	return &Transport{client: client, platformARNs: arns, endpoints: make(map[string]string)}
}

// Send publishes msg to tok. A disabled or deleted endpoint is reported as
// domain.ErrTokenUnregistered so the caller can deactivate the token.
func (t *Transport) Send(ctx context.Context, tok domain.PushToken, msg domain.PushMessage) error {
	endpoint, err := t.endpoint(ctx, tok)
	if err != nil {
		return err
	}
	body, err := payload(tok.Platform, msg)
	if err != nil {
		return err
	}
	_, err = t.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpoint),
		Message:          aws.String(body),
		MessageStructure: aws.String("json"),
	})
	if isGone(err) {
		t.forget(tok.TokenID)
		return fmt.Errorf("publish to %s: %w", tok.TokenID, domain.ErrTokenUnregistered)
	}
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func (t *Transport) endpoint(ctx context.Context, tok domain.PushToken) (string, error) {
	t.mu.Lock()
	arn, ok := t.endpoints[tok.TokenID]
	t.mu.Unlock()
	if ok {
		return arn, nil
	}

	app, ok := t.platformARNs[tok.Platform]
	if !ok {
		return "", fmt.Errorf("no SNS platform application for %q", tok.Platform)
	}
	out, err := t.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(app),
		Token:                  aws.String(tok.Token),
		CustomUserData:         aws.String(tok.UserID),
	})
	if err != nil {
		return "", fmt.Errorf("create platform endpoint: %w", err)
	}
	arn = aws.ToString(out.EndpointArn)

	t.mu.Lock()
	t.endpoints[tok.TokenID] = arn
	t.mu.Unlock()
	return arn, nil
}

func (t *Transport) forget(tokenID string) {
	t.mu.Lock()
	delete(t.endpoints, tokenID)
	t.mu.Unlock()
}

func isGone(err error) bool {
	var disabled *types.EndpointDisabledException
	var notFound *types.NotFoundException
	return errors.As(err, &disabled) || errors.As(err, &notFound)
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsPayload struct {
	APS struct {
		Alert apnsAlert `json:"alert"`
		Sound string    `json:"sound"`
	} `json:"aps"`
	NotificationID int64  `json:"notificationId"`
	GroupKey       string `json:"groupKey"`
	Type           string `json:"type"`
}

type fcmPayload struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data"`
}

// payload builds the per-protocol JSON message SNS expects with MessageStructure=json.
func payload(platform domain.Platform, msg domain.PushMessage) (string, error) {
	envelope := map[string]string{"default": msg.Title}

	switch platform {
	case domain.PlatformAndroid:
		var p fcmPayload
		p.Notification.Title = msg.Title
		p.Notification.Body = msg.Body
		p.Data = map[string]string{
			"notificationId": fmt.Sprint(msg.NotificationID),
			"groupKey":       msg.GroupKey,
			"type":           string(msg.Type),
		}
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		envelope["GCM"] = string(b)
	default:
		var p apnsPayload
		p.APS.Alert = apnsAlert{Title: msg.Title, Body: msg.Body}
		p.APS.Sound = "default"
		p.NotificationID = msg.NotificationID
		p.GroupKey = msg.GroupKey
		p.Type = string(msg.Type)
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		envelope["APNS"] = string(b)
		envelope["APNS_SANDBOX"] = string(b)
	}

	out, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
