package events

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sirupsen/logrus"

	"recscribe/internal/config"
	"recscribe/internal/objectstore"
)

type queueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Poller long-polls an SQS queue subscribed to bucket notifications.
type Poller struct {
	client   queueAPI
	queueURL string
	intake   *Intake
	wait     int32
	backoff  time.Duration
}

func NewSQSPoller(ctx context.Context, cfg config.StorageConfig, queueURL string, intake *Intake) (*Poller, error) {
	awsCfg, err := objectstore.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newPoller(sqs.NewFromConfig(awsCfg), queueURL, intake), nil
}

func newPoller(client queueAPI, queueURL string, intake *Intake) *Poller {
	return &Poller{client: client, queueURL: queueURL, intake: intake, wait: 20, backoff: 5 * time.Second}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	entry := logrus.WithField("queue", p.queueURL)
	entry.Info("sqs poller started")
	for {
		if err := ctx.Err(); err != nil {
			entry.Info("sqs poller stopped")
			return nil
		}
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			entry.WithError(err).Warn("sqs receive failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
		}
	}
}

// poll receives one batch. Messages that were enqueued or can never be
// parsed are deleted; the rest become visible again for another try.
func (p *Poller) poll(ctx context.Context) error {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     p.wait,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		entry := logrus.WithField("message_id", aws.ToString(msg.MessageId))
		queued, err := p.intake.Handle([]byte(aws.ToString(msg.Body)))
		switch {
		case errors.Is(err, ErrMalformedEvent):
			entry.WithError(err).Warn("dropping malformed event")
		case err != nil:
			entry.WithError(err).Warn("event left for redelivery")
			continue
		default:
			entry.WithField("jobs", len(queued)).Debug("event handled")
		}
		if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(p.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			entry.WithError(err).Warn("sqs delete failed")
		}
	}
	return nil
}
