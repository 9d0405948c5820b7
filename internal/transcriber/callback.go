package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/flightstudio/podscribe/pkg/types"
)

// SQSAPI is the subset of the SQS client the watcher uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// CompletionEvent is a webhook-delivered job completion notice. It only says
// which job finished; the job manager still collects the result through the
// capability client, so a spoofed or duplicated event is harmless.
type CompletionEvent struct {
	JobID  string         `json:"transcript_id"`
	Status string         `json:"status"` // completed or error
	State  types.JobState `json:"-"`
}

// CallbackWatcher drains a queue of provider webhook completion events so the
// job manager learns about finished jobs ahead of its next poll tick.
type CallbackWatcher struct {
	client   SQSAPI
	queueURL string
	events   chan CompletionEvent
	logger   *slog.Logger
}

// NewCallbackWatcher builds a watcher from config, creating the SQS client
// from the ambient AWS credential chain.
func NewCallbackWatcher(ctx context.Context, cfg types.TranscriberConfig, logger *slog.Logger) (*CallbackWatcher, error) {
	if cfg.CallbackQueueURL == "" {
		return nil, fmt.Errorf("transcriber: callback queue URL is not set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transcriber: loading AWS config: %w", err)
	}

	return NewCallbackWatcherWithClient(sqs.NewFromConfig(awsCfg), cfg.CallbackQueueURL, logger), nil
}

// NewCallbackWatcherWithClient builds a watcher around an existing client.
func NewCallbackWatcherWithClient(client SQSAPI, queueURL string, logger *slog.Logger) *CallbackWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackWatcher{
		client:   client,
		queueURL: queueURL,
		events:   make(chan CompletionEvent, 64),
		logger:   logger,
	}
}

// Events is the stream of completion events. Closed when Run returns.
func (w *CallbackWatcher) Events() <-chan CompletionEvent {
	return w.events
}

// Run long-polls the queue until ctx is cancelled. Messages that do not parse
// as completion events are logged and dropped; the polling path still covers
// their jobs.
func (w *CallbackWatcher) Run(ctx context.Context) error {
	defer close(w.events)

	for {
		out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("callback receive failed, backing off",
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			if ev, ok := w.parse(aws.ToString(msg.Body)); ok {
				select {
				case w.events <- ev:
				case <-ctx.Done():
					return nil
				}
			}
			if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(w.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil && ctx.Err() == nil {
				w.logger.Warn("callback delete failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

func (w *CallbackWatcher) parse(body string) (CompletionEvent, bool) {
	var ev CompletionEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil || ev.JobID == "" {
		w.logger.Warn("dropping unparseable callback message",
			slog.String("body", body))
		return CompletionEvent{}, false
	}

	switch ev.Status {
	case "completed":
		ev.State = types.JobSucceeded
	case "error":
		ev.State = types.JobFailed
	default:
		w.logger.Warn("dropping callback with unknown status",
			slog.String("jobId", ev.JobID),
			slog.String("status", ev.Status))
		return CompletionEvent{}, false
	}
	return ev, true
}
