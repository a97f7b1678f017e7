package mqttc

import (
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultBroker = "tcp://localhost:1883"

type Client struct {
	Client mqtt.Client
}

// NewClientWithHandler connects to broker, or to MQTT_BROKER when broker is
// empty. onConnect also runs on every automatic reconnect, so subscriptions
// made there survive a broker restart. A failed first connect is logged and
// the client is returned anyway.
func NewClientWithHandler(clientID, broker string, onConnect mqtt.OnConnectHandler) *Client {
	if broker == "" {
		broker = os.Getenv("MQTT_BROKER")
		if broker == "" {
			broker = defaultBroker
		}
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})

	if onConnect != nil {
		opts.SetOnConnectHandler(onConnect)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("MQTT connect error: %v", token.Error())
	}
	return &Client{Client: c}
}

func (c *Client) Publish(topic string, payload []byte) {
	c.publish(topic, false, payload)
}

// PublishRetained publishes payload so late subscribers receive the last value.
func (c *Client) PublishRetained(topic string, payload []byte) {
	c.publish(topic, true, payload)
}

func (c *Client) publish(topic string, retained bool, payload []byte) {
	if c == nil || c.Client == nil {
		return
	}
	token := c.Client.Publish(topic, 0, retained, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("MQTT publish error on %s: %v", topic, token.Error())
	}
}

func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) {
	if c == nil || c.Client == nil {
		return
	}
	token := c.Client.Subscribe(topic, 0, handler)
	token.Wait()
	if token.Error() != nil {
		log.Printf("MQTT subscribe error: %v", token.Error())
	}
}

func (c *Client) IsConnected() bool {
	return c != nil && c.Client != nil && c.Client.IsConnected()
}

// Reconnect starts a connection attempt in the background.
func (c *Client) Reconnect() {
	if c == nil || c.Client == nil {
		return
	}
	go func() {
		token := c.Client.Connect()
		if token.Wait() && token.Error() != nil {
			log.Printf("reconnect failed: %v", token.Error())
		}
	}()
}

func (c *Client) Close() {
	if c == nil || c.Client == nil {
		return
	}
	c.Client.Disconnect(250)
}
