package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubSubClient interface {
	Ping(context.Context) error
	OrdersPublisher() *gcppubsub.Publisher
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publisherFor keeps one publisher per topic for the life of the process.
func (s *Service) publisherFor(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// stopPublishers flushes the GCP publishers and releases their goroutines.
func (s *Service) stopPublishers() {
	for topic, pub := range s.publishers {
		if gp, ok := pub.(gcpPublisher); ok {
			gp.p.Stop()
		}
		delete(s.publishers, topic)
	}
}

func gcpPublisherFactory(client pubSubClient, ordersTopic string) publisherFactory {
	return func(topic string) publisher {
		var p *gcppubsub.Publisher
		if topic == ordersTopic {
			p = client.OrdersPublisher()
		} else {
			p = client.Publisher(topic)
		}
		if p == nil {
			return nil
		}
		return gcpPublisher{p: p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
