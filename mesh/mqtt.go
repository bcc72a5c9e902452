package mesh

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TriggerHandler is called when a message arrives on the command topic.
// The payload is passed through trimmed; an empty payload means "re-run".
type TriggerHandler func(command string)

// MQTTClient manages the MQTT connection used to publish results and to
// receive re-run commands.
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	prefix         string
	triggerHandler TriggerHandler
	isConnected    bool
	mu             sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// mqttSetting returns the environment value when set, otherwise the config value.
func mqttSetting(env, configured string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return configured
}

// InitMQTT initializes the global MQTT client with the provided configuration
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler TriggerHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	if config == nil {
		return nil, fmt.Errorf("MQTT init: configuration is required")
	}

	broker := mqttSetting("MQTT_BROKER", config.MQTT.Broker)
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{
		config:         config,
		prefix:         publishPrefix(config),
		triggerHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := mqttSetting("MQTT_CLIENT_ID", config.MQTT.ClientID)
	if clientID == "" {
		clientID = "rgbdmesh"
	}
	opts.SetClientID(clientID)

	if username := mqttSetting("MQTT_USERNAME", config.MQTT.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(mqttSetting("MQTT_PASSWORD", config.MQTT.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// publishPrefix resolves the topic prefix: MQTT_PUBLISH_PREFIX, then
// mqtt.publishPrefix, then "rgbdmesh".
func publishPrefix(config *Config) string {
	configured := ""
	if config != nil {
		configured = config.MQTT.PublishPrefix
	}
	if p := mqttSetting("MQTT_PUBLISH_PREFIX", configured); p != "" {
		return p
	}
	return "rgbdmesh"
}

// CommandTopic is the topic the client listens on for re-run commands.
func (c *MQTTClient) CommandTopic() string {
	return c.prefix + "/command"
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.CommandTopic()
	log.Printf("MQTT connected, subscribing to %s", topic)
	token := client.Subscribe(topic, 0, c.createCommandHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("Successfully subscribed to %s", topic)
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createCommandHandler dispatches command messages to the trigger handler.
func (c *MQTTClient) createCommandHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		command := strings.TrimSpace(string(msg.Payload()))
		log.Printf("Received command on %s: %q", msg.Topic(), command)

		handler := c.getTriggerHandler()
		if handler == nil {
			log.Printf("Warning: no trigger handler registered, ignoring command")
			return
		}
		handler(command)
	}
}

// SetTriggerHandler replaces the command callback.
func (c *MQTTClient) SetTriggerHandler(handler TriggerHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggerHandler = handler
}

func (c *MQTTClient) getTriggerHandler() TriggerHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.triggerHandler
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// Prefix returns the resolved topic prefix.
func (c *MQTTClient) Prefix() string {
	return c.prefix
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler TriggerHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		prefix:         publishPrefix(config),
		triggerHandler: handler,
	}
}
