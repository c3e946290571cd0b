// Package mqtt bridges the simulation to an MQTT broker: bus events go out
// msgpack-encoded on an event topic, and traffic-injection commands come
// back in on a command topic.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
)

// Command is an inbound traffic-injection request.
type Command struct {
	Command string `json:"command"`
	From    string `json:"from"`
	Dest    string `json:"dest"`
	Payload string `json:"payload"`
}

// Injector receives decoded send commands.
type Injector func(from, dest mesh.Addr, payload string)

// Bridge manages the MQTT connection.
type Bridge struct {
	client mqtt.Client
	topic  string
}

// New connects to broker and returns a bridge publishing on topic.
func New(broker, clientID, topic string) (*Bridge, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &Bridge{client: client, topic: topic}, nil
}

// Run pumps bus events to the broker until the channel closes.
func (b *Bridge) Run(events chan eb.Event) {
	for ev := range events {
		payload, err := msgpack.Marshal(ev)
		if err != nil {
			log.Printf("[mqtt] encode event: %v", err)
			continue
		}
		token := b.client.Publish(b.topic+"/"+string(ev.Type), 0, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("[mqtt] publish: %v", err)
		}
	}
}

// SubscribeCommands listens on topic for JSON send commands and hands them
// to inject.
func (b *Bridge) SubscribeCommands(topic string, inject Injector) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Printf("[mqtt] bad command: %v", err)
			return
		}
		if cmd.Command != "send" {
			log.Printf("[mqtt] unknown command %q", cmd.Command)
			return
		}
		from, err := mesh.ParseAddr(cmd.From)
		if err != nil {
			log.Printf("[mqtt] bad command sender: %v", err)
			return
		}
		dest, err := mesh.ParseAddr(cmd.Dest)
		if err != nil {
			log.Printf("[mqtt] bad command dest: %v", err)
			return
		}
		inject(from, dest, cmd.Payload)
	}
	token := b.client.Subscribe(topic, 0, handler)
	token.Wait()
	return token.Error()
}

// Disconnect performs a clean disconnect from the broker.
func (b *Bridge) Disconnect() {
	b.client.Disconnect(250)
}
