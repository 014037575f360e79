package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcare/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSNotifier_SmallEventPlainJSON(t *testing.T) {
	client := &fakeSQS{}
	n := NewSQSNotifier(client, "https://sqs.local/q", 0, nil)
	raised := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	err := n.Notify(context.Background(), types.NotifyOverdue, types.NotificationEvent{
		RequestIDs: []string{"req-1", "req-2"},
		RaisedAt:   raised,
		RunID:      "run-9",
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/q", *in.QueueUrl)
	assert.Equal(t, "overdue", *in.MessageAttributes[AttrKind].StringValue)
	assert.Equal(t, EncodingJSON, *in.MessageAttributes[AttrEncoding].StringValue)
	assert.Equal(t, "run-9", *in.MessageAttributes[AttrRunID].StringValue)

	event, err := DecodeBody(*in.MessageBody, EncodingJSON)
	require.NoError(t, err)
	assert.Equal(t, types.NotifyOverdue, event.Kind)
	assert.Equal(t, []string{"req-1", "req-2"}, event.RequestIDs)
}

func TestSQSNotifier_LargeEventCompressed(t *testing.T) {
	client := &fakeSQS{}
	n := NewSQSNotifier(client, "q", 256, nil)

	ids := make([]string, 200)
	for i := range ids {
		ids[i] = fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
	}
	err := n.Notify(context.Background(), types.NotifyUpcoming, types.NotificationEvent{RequestIDs: ids, WindowDays: 7})
	require.NoError(t, err)

	in := client.inputs[0]
	encoding := *in.MessageAttributes[AttrEncoding].StringValue
	assert.Equal(t, EncodingZstdJSON, encoding)
	_, hasRun := in.MessageAttributes[AttrRunID]
	assert.False(t, hasRun)

	event, err := DecodeBody(*in.MessageBody, encoding)
	require.NoError(t, err)
	assert.Equal(t, ids, event.RequestIDs)
	assert.Equal(t, 7, event.WindowDays)
	assert.Equal(t, types.NotifyUpcoming, event.Kind)
}

func TestSQSNotifier_SendError(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	n := NewSQSNotifier(client, "q", 0, nil)

	err := n.Notify(context.Background(), types.NotifyCompleted, types.NotificationEvent{RequestIDs: []string{"r"}})
	assert.Equal(t, types.ErrCodeUpstreamNotifier, types.CodeOf(err))
}
