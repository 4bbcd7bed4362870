// Package notify delivers automation notifications to the external
// notification pipeline. The core only depends on the Notifier contract;
// delivery itself is out of scope and handled downstream.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

// Message is the envelope enqueued for the notification pipeline.
type Message struct {
	UserIDs  []string          `json:"userIds"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sentAt"`
}

// QueueNotifier enqueues notification messages onto an Azure storage
// queue consumed by the delivery service.
type QueueNotifier struct {
	queue *azqueue.QueueClient
}

// NewQueueNotifier creates a notifier from the given connection string
// and queue name.
func NewQueueNotifier(connStr, queueName string) (*QueueNotifier, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

// Notify enqueues one notification message.
func (n *QueueNotifier) Notify(ctx context.Context, userIDs []string, title, message string, metadata map[string]string) error {
	data, err := json.Marshal(Message{
		UserIDs:  userIDs,
		Title:    title,
		Message:  message,
		Metadata: metadata,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// LogNotifier writes notifications to the log. Used when no queue is
// configured, typically in local development.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify logs the notification instead of delivering it.
func (n *LogNotifier) Notify(_ context.Context, userIDs []string, title, message string, metadata map[string]string) error {
	n.Logger.WithFields(log.Fields{
		"users":    userIDs,
		"title":    title,
		"metadata": metadata,
	}).Infof("notification: %s", message)
	return nil
}
