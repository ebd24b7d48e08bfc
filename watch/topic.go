package watch

import "sync"

// Topic names follow a pattern:
//
//	run:<runID>  — events for one run
//	runs         — every event from every run

// TopicRuns receives every lifecycle event the feed publishes.
const TopicRuns = "runs"

// RunTopic returns the topic name carrying one run's events.
func RunTopic(runID string) string { return "run:" + runID }

// topicRegistry manages subscriber sets per topic. Safe for concurrent
// use.
type topicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{
		topics: make(map[string]map[string]*Subscriber),
	}
}

// subscribe adds a subscriber to a topic, creating the topic as needed.
func (tr *topicRegistry) subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// unsubscribe removes a subscriber from a topic and cleans up empty
// topics.
func (tr *topicRegistry) unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// unsubscribeAll removes a subscriber from every topic it is on.
func (tr *topicRegistry) unsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeTopic(topic)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// broadcast sends an event to the union of subscribers on the given
// topics, deduplicating subscribers that are on more than one of them.
// Returns how many subscribers received the event and how many dropped
// it.
func (tr *topicRegistry) broadcast(topics []string, evt *Event) (delivered, dropped int) {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// topicCount returns the number of active topics.
func (tr *topicRegistry) topicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}
