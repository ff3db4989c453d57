package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/logger"
)

// Client owns the Pub/Sub connection and the single visit events publisher.
type Client struct {
	client *pubsub.Client
	topic  string
	events *EventPublisher
}

// NewClient connects to Pub/Sub and verifies the visit events topic exists.
// Topics are provisioned outside the service; a missing topic fails startup.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	topic, err := topicResourceName(gcp.ProjectID, cfg.VisitEventsTopic)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	c.events = newEventPublisher(&gcpPublisher{Publisher: psClient.Publisher(topic)})

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub client initialized")
	}
	return c, nil
}

// VisitEvents returns the publisher for visit lifecycle events.
func (c *Client) VisitEvents() *EventPublisher {
	if c == nil {
		return nil
	}
	return c.events
}

// Ping checks that the visit events topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", c.topic)
	default:
		return fmt.Errorf("checking topic %q: %w", c.topic, err)
	}
}

// Close flushes pending visit events and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.events != nil {
		c.events.Stop()
	}
	return c.client.Close()
}

// topicResourceName accepts a bare topic id or a full
// projects/{p}/topics/{t} name.
func topicResourceName(projectID, name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", errors.New("pubsub visit events topic is required")
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n, nil
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return "", errors.New("gcp project id is required")
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n), nil
}
