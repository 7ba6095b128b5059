// Package fetch implements the fetch coordinator: a historical read phase
// followed by a live broadcast-subscription phase, merged under a deadline
// and byte quorum.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/stijnveenman/pigeon/internal/broadcast"
	"github.com/stijnveenman/pigeon/internal/broker"
	"github.com/stijnveenman/pigeon/internal/record"
)

// PartitionRequest asks for records from one partition starting at
// Selection.
type PartitionRequest struct {
	PartitionID uint64
	Selection   record.OffsetSelection
}

// TopicRequest asks for records from one topic's partitions.
type TopicRequest struct {
	Topic      broker.Identifier
	Partitions []PartitionRequest
}

// Request is one fetch call's full parameters.
type Request struct {
	Timeout  time.Duration
	MinBytes int
	MaxBytes int // 0 means unbounded
	Topics   []TopicRequest
}

// Fetched is one record returned by a fetch, tagged with its origin.
type Fetched struct {
	TopicID     uint64
	PartitionID uint64
	Record      record.Record
}

// Response is the accumulated result of one fetch call.
type Response struct {
	Records []Fetched
}

func (r *Response) bytes() int {
	total := 0
	for _, f := range r.Records {
		total += recordSize(f.Record)
	}
	return total
}

func recordSize(rec record.Record) int {
	size := len(rec.Key) + len(rec.Value)
	for _, h := range rec.Headers {
		size += len(h.Key) + len(h.Value)
	}
	return size
}

// Coordinator runs fetch requests against a Broker.
type Coordinator struct {
	broker *broker.Broker
}

// New builds a Coordinator bound to b.
func New(b *broker.Broker) *Coordinator {
	return &Coordinator{broker: b}
}

// pending tracks one (topic, partition) request's current selection across
// the historical and live phases.
type pending struct {
	topicID     uint64
	identifier  broker.Identifier
	partitionID uint64
	selection   record.OffsetSelection
}

// Fetch runs the full historical-then-live fetch algorithm.
func (c *Coordinator) Fetch(ctx context.Context, req Request) (Response, error) {
	var resp Response

	pendings, err := c.historicalPhase(&resp, req)
	if err != nil {
		return Response{}, err
	}

	if req.Timeout <= 0 {
		// A zero (or negative) timeout is an already-expired deadline: return
		// whatever the historical phase drained rather than entering the
		// live phase, which would otherwise block forever waiting on a
		// broadcast that may never arrive.
		return resp, nil
	}
	if req.MinBytes > 0 && resp.bytes() > req.MinBytes {
		return resp, nil
	}
	if req.MaxBytes > 0 && resp.bytes() >= req.MaxBytes {
		return resp, nil
	}
	if len(pendings) == 0 {
		return resp, nil
	}

	return c.livePhase(ctx, &resp, req, pendings)
}

// historicalPhase reads durable records under the broker's read lock,
// narrowing each partition's selection after every record, until the byte
// quorum is exceeded or every requested selection has terminated (an
// Exact selection that has already been served).
func (c *Coordinator) historicalPhase(resp *Response, req Request) ([]pending, error) {
	c.broker.RLock()
	defer c.broker.RUnlock()

	var pendings []pending

	for _, tr := range req.Topics {
		tp, err := c.broker.GetTopicLocked(tr.Topic)
		if err != nil {
			return nil, err
		}

		for _, pr := range tr.Partitions {
			sel := pr.Selection
			active := true

			for active {
				rec, ok, err := tp.Read(pr.PartitionID, sel)
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}

				resp.Records = append(resp.Records, Fetched{TopicID: tp.ID(), PartitionID: pr.PartitionID, Record: rec})

				narrowed, more := sel.Narrow(rec.Offset)
				if !more {
					active = false
					break
				}
				sel = narrowed

				if req.MinBytes > 0 && resp.bytes() > req.MinBytes {
					return nil, nil
				}
			}

			if active {
				pendings = append(pendings, pending{
					topicID:     tp.ID(),
					identifier:  tr.Topic,
					partitionID: pr.PartitionID,
					selection:   sel,
				})
			}
		}
	}

	return pendings, nil
}

// liveEvent is one record observed on a topic's broadcast bus, still
// unfiltered by partition/selection.
type liveEvent struct {
	topicID uint64
	msg     broadcast.Message
}

// livePhase subscribes to each distinct requested topic and waits for
// records matching the still-pending selections until the deadline or
// quorum is reached.
func (c *Coordinator) livePhase(ctx context.Context, resp *Response, req Request, pendings []pending) (Response, error) {
	// Fetch only enters livePhase when req.Timeout > 0, so this deadline is
	// always bounded.
	deadline, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	subs, err := c.subscribeDistinctTopics(pendings)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	events := c.mergeSubscriptions(deadline.Done(), subs)

	pendingByTopicPartition := make(map[[2]uint64]*pending, len(pendings))
	for i := range pendings {
		pendingByTopicPartition[[2]uint64{pendings[i].topicID, pendings[i].partitionID}] = &pendings[i]
	}

	for {
		select {
		case <-deadline.Done():
			return *resp, nil
		case ev, ok := <-events:
			if !ok {
				return *resp, nil
			}

			key := [2]uint64{ev.topicID, ev.msg.PartitionID}
			p, tracked := pendingByTopicPartition[key]
			if !tracked || !p.selection.Matches(ev.msg.Offset) {
				continue
			}

			tp, err := c.broker.GetTopic(p.identifier)
			if err != nil {
				continue
			}
			rec, ok, err := tp.ReadExact(ev.msg.PartitionID, ev.msg.Offset)
			if err != nil || !ok {
				continue
			}

			resp.Records = append(resp.Records, Fetched{TopicID: ev.topicID, PartitionID: ev.msg.PartitionID, Record: rec})

			if narrowed, more := p.selection.Narrow(rec.Offset); more {
				p.selection = narrowed
			}

			if req.MinBytes > 0 && resp.bytes() > req.MinBytes {
				return *resp, nil
			}
			if req.MaxBytes > 0 && resp.bytes() >= req.MaxBytes {
				return *resp, nil
			}
		}
	}
}

func (c *Coordinator) subscribeDistinctTopics(pendings []pending) (map[uint64]*broadcast.Subscriber, error) {
	subs := make(map[uint64]*broadcast.Subscriber)
	for _, p := range pendings {
		if _, ok := subs[p.topicID]; ok {
			continue
		}
		sub, err := c.broker.Subscribe(p.identifier)
		if err != nil {
			return nil, err
		}
		subs[p.topicID] = sub
	}
	return subs, nil
}

// mergeSubscriptions fans in every subscriber's Recv loop into one
// channel, the Go idiom substituting for a StreamMap: Go has no built-in
// multi-stream merge, so each subscription runs its own forwarding
// goroutine gated by the same stop channel. A lagged receive is logged and
// counted on the broker rather than dropped silently.
func (c *Coordinator) mergeSubscriptions(stop <-chan struct{}, subs map[uint64]*broadcast.Subscriber) <-chan liveEvent {
	out := make(chan liveEvent)

	var wg sync.WaitGroup
	for topicID, sub := range subs {
		wg.Add(1)
		go func(topicID uint64, sub *broadcast.Subscriber) {
			defer wg.Done()
			for {
				msg, lagged, ok := sub.Recv(stop)
				if !ok {
					return
				}
				if lagged {
					c.broker.RecordLaggedSubscriber(topicID)
				}
				select {
				case out <- liveEvent{topicID: topicID, msg: msg}:
				case <-stop:
					return
				}
			}
		}(topicID, sub)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
