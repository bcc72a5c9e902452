package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes segmentation summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	lastCount     int // clusters published by the previous run
	lastRunID     string
	mu            sync.Mutex
}

// runMessage is the payload of <prefix>/clusters.
type runMessage struct {
	RunID     string           `json:"runId"`
	Timestamp int64            `json:"timestamp"`
	Rows      int              `json:"rows"`
	Cols      int              `json:"cols"`
	Clusters  []ClusterSummary `json:"clusters"`
}

// NewPublisher creates a summary publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then config, then "rgbdmesh". A nil client disables
// publishing.
func NewPublisher(client mqtt.Client, config *Config) *Publisher {
	return &Publisher{
		client:        client,
		publishPrefix: publishPrefix(config),
		qos:           0,
		retain:        true, // Retain so late subscribers see the latest run
	}
}

// PublishResult publishes the run summary to <prefix>/clusters and each
// cluster to <prefix>/clusters/<index>. Retained per-cluster topics left over
// from a previous run with more clusters are cleared.
func (p *Publisher) PublishResult(res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := runMessage{
		RunID:     res.RunID,
		Timestamp: time.Now().Unix(),
		Rows:      res.Rows,
		Cols:      res.Cols,
		Clusters:  res.Summaries,
	}
	if err := p.publishJSON(p.publishPrefix+"/clusters", msg); err != nil {
		log.Printf("Error publishing run %s: %v", res.RunID, err)
		return err
	}

	for _, s := range res.Summaries {
		if err := p.publishJSON(p.clusterTopic(s.Index), s); err != nil {
			log.Printf("Error publishing cluster %d of run %s: %v", s.Index, res.RunID, err)
			return err
		}
	}

	for i := len(res.Summaries); i < p.lastCount; i++ {
		if err := p.publish(p.clusterTopic(i), []byte{}); err != nil {
			log.Printf("Warning: clearing stale cluster topic %d: %v", i, err)
		}
	}

	log.Printf("Published run %s: %d clusters", res.RunID, len(res.Summaries))
	p.lastCount = len(res.Summaries)
	p.lastRunID = res.RunID
	return nil
}

func (p *Publisher) clusterTopic(index int) string {
	return fmt.Sprintf("%s/clusters/%d", p.publishPrefix, index)
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}
	return p.publish(topic, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastRunID returns the id of the last successfully published run.
func (p *Publisher) LastRunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRunID
}

// Prefix returns the topic prefix.
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
