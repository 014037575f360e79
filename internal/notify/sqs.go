// Package notify publishes the scheduler's abstract notification events to
// an SQS queue. Rendering and delivery belong to the queue's consumer.
package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/klauspost/compress/zstd"

	"fleetcare/internal/types"
)

// Message attribute names set on every event.
const (
	AttrKind     = "kind"
	AttrEncoding = "content-encoding"
	AttrRunID    = "run-id"

	EncodingJSON     = "json"
	EncodingZstdJSON = "zstd+base64"
)

// DefaultCompressThreshold is the body size above which events are
// compressed. Large overdue lists can approach the 256 KiB SQS limit.
const DefaultCompressThreshold = 32 << 10

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier sends one SQS message per event.
type SQSNotifier struct {
	client            SQSSender
	queueURL          string
	compressThreshold int
	logger            *slog.Logger

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error
}

// NewSQSNotifier creates a notifier targeting queueURL. A threshold <= 0
// uses DefaultCompressThreshold.
func NewSQSNotifier(client SQSSender, queueURL string, compressThreshold int, logger *slog.Logger) *SQSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if compressThreshold <= 0 {
		compressThreshold = DefaultCompressThreshold
	}
	return &SQSNotifier{
		client:            client,
		queueURL:          queueURL,
		compressThreshold: compressThreshold,
		logger:            logger,
	}
}

// Notify serializes event and sends it. kind overrides event.Kind.
func (n *SQSNotifier) Notify(ctx context.Context, kind types.NotificationKind, event types.NotificationEvent) error {
	event.Kind = kind
	body, err := json.Marshal(event)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode notification event", err)
	}

	encoding := EncodingJSON
	payload := string(body)
	if len(body) > n.compressThreshold {
		compressed, err := n.compress(body)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to compress notification event", err)
		}
		encoding = EncodingZstdJSON
		payload = base64.StdEncoding.EncodeToString(compressed)
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		AttrKind:     stringAttr(string(kind)),
		AttrEncoding: stringAttr(encoding),
	}
	if event.RunID != "" {
		attrs[AttrRunID] = stringAttr(event.RunID)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(n.queueURL),
		MessageBody:       aws.String(payload),
		MessageAttributes: attrs,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamNotifier,
			fmt.Sprintf("failed to send %s notification", kind), err)
	}

	n.logger.InfoContext(ctx, "notification published",
		"kind", string(kind),
		"requests", len(event.RequestIDs),
		"encoding", encoding,
		"bytes", len(payload),
	)
	return nil
}

func (n *SQSNotifier) compress(body []byte) ([]byte, error) {
	n.encOnce.Do(func() {
		n.enc, n.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	if n.encErr != nil {
		return nil, n.encErr
	}
	return n.enc.EncodeAll(body, make([]byte, 0, len(body)/4)), nil
}

// DecodeBody reverses Notify's encoding. Consumers and tests use it.
func DecodeBody(body, encoding string) (types.NotificationEvent, error) {
	var event types.NotificationEvent
	raw := []byte(body)
	if encoding == EncodingZstdJSON {
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return event, fmt.Errorf("decoding base64 body: %w", err)
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return event, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(compressed, nil)
		if err != nil {
			return event, fmt.Errorf("decompressing body: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return event, fmt.Errorf("decoding event: %w", err)
	}
	return event, nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
