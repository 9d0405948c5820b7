package transcriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flightstudio/podscribe/pkg/types"
)

type fakeSQS struct {
	mu       sync.Mutex
	messages []sqstypes.Message
	deleted  []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.messages
	f.messages = nil
	f.mu.Unlock()

	if len(msgs) == 0 {
		// Simulate long polling so the loop blocks until cancelled.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func message(handle, body string) sqstypes.Message {
	return sqstypes.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func TestCallbackWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakeSQS{messages: []sqstypes.Message{
		message("r1", `{"transcript_id":"job-1","status":"completed"}`),
		message("r2", `{"transcript_id":"job-2","status":"error"}`),
		message("r3", `not json`),
		message("r4", `{"transcript_id":"job-3","status":"queued"}`),
	}}
	w := NewCallbackWatcherWithClient(client, "https://sqs.test/q", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var got []CompletionEvent
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-w.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "job-1", got[0].JobID)
	assert.Equal(t, types.JobSucceeded, got[0].State)
	assert.Equal(t, "job-2", got[1].JobID)
	assert.Equal(t, types.JobFailed, got[1].State)

	// Every message is deleted, including the unparseable ones.
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.ElementsMatch(t, []string{"r1", "r2", "r3", "r4"}, client.deleted)
}

func TestCallbackWatcher_EventsClosedOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := NewCallbackWatcherWithClient(&fakeSQS{}, "https://sqs.test/q", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)

	_, open := <-w.Events()
	assert.False(t, open)
}

func TestParseCompletionEvent(t *testing.T) {
	w := NewCallbackWatcherWithClient(&fakeSQS{}, "q", nil)

	ev, ok := w.parse(`{"transcript_id":"j","status":"completed"}`)
	require.True(t, ok)
	assert.Equal(t, types.JobSucceeded, ev.State)

	_, ok = w.parse(`{"status":"completed"}`)
	assert.False(t, ok)

	_, ok = w.parse(`{"transcript_id":"j","status":"processing"}`)
	assert.False(t, ok)
}
