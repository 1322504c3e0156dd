// Package queue provides the SQS producer that dispatches trigger requests
// to the trigger worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"farewatch/internal/config"
	"farewatch/internal/types"
)

// maxBatchEntries is the SQS limit for SendMessageBatch.
const maxBatchEntries = 10

// SQSSender abstracts the SQS send operations for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// TriggerQueue enqueues TriggerMessages on the FIFO trigger queue.
//
// The message group is the watch id, so SQS never hands two runs for the
// same watch to the worker at once. The deduplication id is the watch id plus
// the scheduling minute, which collapses duplicate enqueues from a retried
// scheduler tick.
type TriggerQueue struct {
	client   SQSSender
	queueURL string
	now      func() time.Time
	logger   *slog.Logger
}

// NewTriggerQueue creates a TriggerQueue that sends to the configured
// trigger queue URL.
func NewTriggerQueue(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *TriggerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerQueue{
		client:   client,
		queueURL: awsCfg.TriggerQueueURL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// EnqueueTrigger requests a single trigger run, e.g. after a watch is resumed.
func (q *TriggerQueue) EnqueueTrigger(ctx context.Context, watchID string, reason string) error {
	msg := q.newMessage(watchID, reason)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal TriggerMessage: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(q.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(watchID),
		MessageDeduplicationId: aws.String(dedupID(msg)),
		MessageAttributes:      reasonAttribute(reason),
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send TriggerMessage to %s: %w", q.queueURL, err)
	}

	q.logger.InfoContext(ctx, "trigger message sent",
		"watch_id", watchID,
		"trace_id", msg.TraceID,
		"reason", reason,
	)
	return nil
}

// EnqueueBatch requests trigger runs for many watches, in chunks of ten.
// It returns the number of messages SQS accepted. Entries SQS rejects are
// logged and counted as not sent; only transport failures return an error.
func (q *TriggerQueue) EnqueueBatch(ctx context.Context, watchIDs []string, reason string) (int, error) {
	sent := 0
	for start := 0; start < len(watchIDs); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(watchIDs))

		entries := make([]sqsTypes.SendMessageBatchRequestEntry, 0, end-start)
		for i, id := range watchIDs[start:end] {
			msg := q.newMessage(id, reason)
			body, err := json.Marshal(msg)
			if err != nil {
				return sent, fmt.Errorf("queue: failed to marshal TriggerMessage: %w", err)
			}
			entries = append(entries, sqsTypes.SendMessageBatchRequestEntry{
				Id:                     aws.String(strconv.Itoa(i)),
				MessageBody:            aws.String(string(body)),
				MessageGroupId:         aws.String(id),
				MessageDeduplicationId: aws.String(dedupID(msg)),
				MessageAttributes:      reasonAttribute(reason),
			})
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return sent, fmt.Errorf("queue: failed to send trigger batch to %s: %w", q.queueURL, err)
		}

		sent += len(out.Successful)
		for _, f := range out.Failed {
			q.logger.WarnContext(ctx, "trigger batch entry rejected",
				"entry_id", aws.ToString(f.Id),
				"code", aws.ToString(f.Code),
				"message", aws.ToString(f.Message),
				"sender_fault", f.SenderFault,
			)
		}
	}

	q.logger.InfoContext(ctx, "trigger batch sent",
		"requested", len(watchIDs),
		"sent", sent,
		"reason", reason,
	)
	return sent, nil
}

func (q *TriggerQueue) newMessage(watchID, reason string) types.TriggerMessage {
	return types.TriggerMessage{
		WatchID:     watchID,
		Reason:      reason,
		TraceID:     uuid.New().String(),
		ScheduledAt: q.now(),
	}
}

func dedupID(msg types.TriggerMessage) string {
	return fmt.Sprintf("%s-%d", msg.WatchID, msg.ScheduledAt.Truncate(time.Minute).Unix())
}

func reasonAttribute(reason string) map[string]sqsTypes.MessageAttributeValue {
	return map[string]sqsTypes.MessageAttributeValue{
		"reason": {
			DataType:    aws.String("String"),
			StringValue: aws.String(reason),
		},
	}
}
