package awsadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/mashiike/taskengine"
	"github.com/mashiike/taskengine/a2a"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SQSAPI is the subset of *sqs.Client used by SQSTaskQueue.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQSTaskQueueConfig represents the configuration for SQSTaskQueue
type SQSTaskQueueConfig struct {
	Client    SQSAPI
	QueueURL  string
	QueueName string // Resolved to a URL with GetQueueUrl when QueueURL is empty

	// Processor executes received jobs. Nodes that only enqueue may leave it nil.
	Processor taskengine.JobProcessor

	MaxMessages     int32         // Messages per receive, defaults to 10
	WaitTimeSeconds int32         // Long polling wait, defaults to 20
	Concurrency     int           // Jobs a worker or a Lambda invocation runs at once, defaults to 10
	RetryInterval   time.Duration // Wait after a failed receive, defaults to 1 second
	Logger          *slog.Logger  // Optional logger, defaults to slog.Default()
}

// SQSTaskQueue implements taskengine.TaskQueue on AWS SQS.
//
// Enqueue sends the job description as the message body. Messages are
// consumed either by a long-running worker (Start) or by a Lambda function
// (HandleSQSEvent). A job's completion deletes its message, a failure makes it
// visible again, and the executor's heartbeat extends its visibility.
//
// Cancel only reaches executions running in this process; executions on
// other nodes stop when their executor observes the canceled task in the store.
type SQSTaskQueue struct {
	client          SQSAPI
	queueURL        string
	processor       taskengine.JobProcessor
	maxMessages     int32
	waitTimeSeconds int32
	concurrency     int
	retryInterval   time.Duration
	logger          *slog.Logger

	runner  *taskengine.TaskRunner
	slots   *semaphore.Weighted // free execution slots of the Start worker
	closing atomic.Bool
}

// NewSQSTaskQueue creates a new SQS-based task queue
func NewSQSTaskQueue(ctx context.Context, config SQSTaskQueueConfig) (*SQSTaskQueue, error) {
	if config.Client == nil {
		return nil, errors.New("SQS Client is required")
	}
	queueURL := config.QueueURL
	if queueURL == "" && config.QueueName == "" {
		return nil, errors.New("either QueueURL or QueueName must be specified")
	}
	if queueURL == "" {
		result, err := config.Client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
			QueueName: aws.String(config.QueueName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get queue URL for %s: %w", config.QueueName, err)
		}
		queueURL = aws.ToString(result.QueueUrl)
	}

	q := &SQSTaskQueue{
		client:          config.Client,
		queueURL:        queueURL,
		processor:       config.Processor,
		maxMessages:     config.MaxMessages,
		waitTimeSeconds: config.WaitTimeSeconds,
		concurrency:     config.Concurrency,
		retryInterval:   config.RetryInterval,
		logger:          config.Logger,
		runner:          taskengine.NewTaskRunner(),
	}
	if q.maxMessages <= 0 || q.maxMessages > 10 {
		q.maxMessages = 10
	}
	if q.waitTimeSeconds <= 0 {
		q.waitTimeSeconds = 20
	}
	if q.concurrency <= 0 {
		q.concurrency = 10
	}
	if q.retryInterval <= 0 {
		q.retryInterval = time.Second
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	q.slots = semaphore.NewWeighted(int64(q.concurrency))
	q.runner.OnDone = func(taskengine.TaskKey) { q.slots.Release(1) }
	return q, nil
}

// QueueURL returns the URL of the underlying queue.
func (q *SQSTaskQueue) QueueURL() string {
	return q.queueURL
}

// Enqueue sends the job of task to SQS.
func (q *SQSTaskQueue) Enqueue(ctx context.Context, task *a2a.Task, tenant string) error {
	if q.closing.Load() {
		return taskengine.ErrTaskQueueClosed
	}
	body, err := json.Marshal(taskengine.NewJobConfig(task, tenant))
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}

// Cancel cancels the execution of task if it runs in this process.
func (q *SQSTaskQueue) Cancel(ctx context.Context, task *a2a.Task, tenant string) error {
	q.runner.Cancel(taskengine.TaskKey{Tenant: tenant, TaskID: task.ID})
	return nil
}

// Close stops every local execution and waits for them to return. Their
// messages are left in flight so that another worker picks them up.
func (q *SQSTaskQueue) Close() error {
	q.closing.Store(true)
	return q.runner.Close()
}

// Start receives messages and runs their jobs until ctx is canceled.
// At most Concurrency jobs run at once; messages beyond that stay in the queue
// for other workers. Executions keep running after Start returns; Close stops them.
func (q *SQSTaskQueue) Start(ctx context.Context) error {
	if q.processor == nil {
		return errors.New("SQSTaskQueue has no Processor")
	}
	q.logger.Info("Starting SQS task queue worker", "queueURL", q.queueURL)
	for {
		if err := q.slots.Acquire(ctx, 1); err != nil {
			return nil
		}
		free := int32(1)
		for free < q.maxMessages && q.slots.TryAcquire(1) {
			free++
		}
		result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: free,
			WaitTimeSeconds:     q.waitTimeSeconds,
		})
		if err != nil {
			q.slots.Release(int64(free))
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("Failed to receive messages from SQS", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.retryInterval):
			}
			continue
		}
		if unused := int(free) - len(result.Messages); unused > 0 {
			q.slots.Release(int64(unused))
		}
		for _, message := range result.Messages {
			q.dispatch(ctx, aws.ToString(message.MessageId), aws.ToString(message.Body), aws.ToString(message.ReceiptHandle))
		}
	}
}

// dispatch runs the job of one received message. It owns one execution slot,
// released when the job's unit ends.
func (q *SQSTaskQueue) dispatch(ctx context.Context, messageID, body, receiptHandle string) {
	config, err := parseJobConfig(body)
	if err != nil {
		q.slots.Release(1)
		// an undecodable message would be redelivered forever
		q.logger.Error("Dropping invalid SQS message", "error", err, "messageID", messageID)
		if err := q.deleteMessage(context.Background(), receiptHandle); err != nil {
			q.logger.Error("Failed to delete invalid message", "error", err, "messageID", messageID)
		}
		return
	}

	job := taskengine.NewJob(config)
	job.ExtendTimeoutFunc = q.extendTimeoutFunc(receiptHandle)
	job.CompleteFunc = func() error {
		return q.deleteMessage(context.Background(), receiptHandle)
	}
	job.FailFunc = q.failFunc(receiptHandle)

	err = q.runner.Run(ctx, job.Key(), func(ctx context.Context) {
		err := q.processor.ProcessJob(ctx, job)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) && !q.closing.Load():
			// superseded by a newer message for the task or canceled locally
			if err := job.CompleteFunc(); err != nil {
				q.logger.Error("Failed to delete superseded message", "error", err, "taskID", job.TaskID, "tenant", job.Tenant)
			}
		case errors.Is(err, context.Canceled):
		default:
			q.logger.Error("Job processing failed", "error", err, "taskID", job.TaskID, "tenant", job.Tenant)
		}
	})
	if err != nil {
		q.slots.Release(1)
		q.logger.Warn("Failed to start job, leaving message for redelivery", "error", err, "taskID", job.TaskID, "tenant", job.Tenant)
	}
}

// HandleSQSEvent processes the records of a Lambda SQS event. Records whose
// job failed are reported in the response so that only they are retried;
// the function needs ReportBatchItemFailures enabled on its event source mapping.
func (q *SQSTaskQueue) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	if q.processor == nil {
		return response, errors.New("SQSTaskQueue has no Processor")
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(q.concurrency)
	for _, record := range event.Records {
		if record.EventSource != "aws:sqs" {
			q.logger.Warn("Skipping non-SQS event", "eventSource", record.EventSource)
			continue
		}
		eg.Go(func() error {
			if !q.handleRecord(egCtx, record) {
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
					ItemIdentifier: record.MessageId,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return response, err
	}
	return response, nil
}

// handleRecord reports whether the record is done with.
func (q *SQSTaskQueue) handleRecord(ctx context.Context, record events.SQSMessage) bool {
	config, err := parseJobConfig(record.Body)
	if err != nil {
		q.logger.Error("Dropping invalid SQS message", "error", err, "messageID", record.MessageId)
		return true
	}

	var failed atomic.Bool
	job := taskengine.NewJob(config)
	job.ExtendTimeoutFunc = q.extendTimeoutFunc(record.ReceiptHandle)
	// Lambda deletes the message when the record is not reported as failed
	job.FailFunc = func() error {
		failed.Store(true)
		return nil
	}

	if err := q.processor.ProcessJob(ctx, job); err != nil {
		q.logger.Error("Job processing failed", "error", err, "taskID", job.TaskID, "tenant", job.Tenant)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
	}
	return !failed.Load()
}

func parseJobConfig(body string) (taskengine.JobConfig, error) {
	var config taskengine.JobConfig
	if err := json.Unmarshal([]byte(body), &config); err != nil {
		return config, fmt.Errorf("failed to parse job config: %w", err)
	}
	if config.TaskID == "" {
		return config, errors.New("job config has no taskId")
	}
	return config, nil
}

func (q *SQSTaskQueue) extendTimeoutFunc(receiptHandle string) func(context.Context, time.Duration) error {
	return func(ctx context.Context, duration time.Duration) error {
		_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(q.queueURL),
			ReceiptHandle:     aws.String(receiptHandle),
			VisibilityTimeout: int32(duration.Seconds()),
		})
		if err != nil {
			return fmt.Errorf("failed to extend visibility timeout: %w", err)
		}
		return nil
	}
}

// failFunc makes the message visible again for an immediate retry.
func (q *SQSTaskQueue) failFunc(receiptHandle string) func() error {
	return func() error {
		_, err := q.client.ChangeMessageVisibility(context.Background(), &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(q.queueURL),
			ReceiptHandle:     aws.String(receiptHandle),
			VisibilityTimeout: 0,
		})
		if err != nil {
			return fmt.Errorf("failed to fail job: %w", err)
		}
		return nil
	}
}

func (q *SQSTaskQueue) deleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
