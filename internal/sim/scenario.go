package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so scenario files can say "30s" or "500ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type NodeCfg struct {
	Count     int      `yaml:"count" json:"count"`
	SpacingM  float64  `yaml:"spacing_m" json:"spacing_m"`
	JoinDelay Duration `yaml:"join_delay" json:"join_delay"`
}

type RadioCfg struct {
	RangeM  float64  `yaml:"range_m" json:"range_m"`
	AirTime Duration `yaml:"air_time" json:"air_time"`
}

type TrafficCfg struct {
	MsgPerNodePerMin float64 `yaml:"msg_per_node_per_min" json:"msg_per_node_per_min"`
	Payload          string  `yaml:"payload" json:"payload"`
}

type ProtocolCfg struct {
	UpdateInterval Duration `yaml:"update_interval" json:"update_interval"`
}

type LogCfg struct {
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

type MQTTCfg struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Topic    string `yaml:"topic" json:"topic"`
}

type ServerCfg struct {
	Listen string `yaml:"listen" json:"listen"`
}

type Scenario struct {
	Duration Duration    `yaml:"duration" json:"duration"`
	Drain    Duration    `yaml:"drain" json:"drain"`
	Seed     int64       `yaml:"seed" json:"seed"`
	Nodes    NodeCfg     `yaml:"nodes" json:"nodes"`
	Radio    RadioCfg    `yaml:"radio" json:"radio"`
	Traffic  TrafficCfg  `yaml:"traffic" json:"traffic"`
	Protocol ProtocolCfg `yaml:"protocol" json:"protocol"`
	Logging  LogCfg      `yaml:"logging" json:"logging"`
	MQTT     MQTTCfg     `yaml:"mqtt" json:"mqtt"`
	Server   ServerCfg   `yaml:"server" json:"server"`
}

// LoadScenario reads a YAML scenario description, falling back to JSON.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if yaml.Unmarshal(f, sc) == nil {
		sc.applyDefaults()
		return sc, nil
	}
	if err := json.Unmarshal(f, sc); err != nil {
		return nil, err
	}
	sc.applyDefaults()
	return sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Duration <= 0 {
		sc.Duration = Duration(2 * time.Minute)
	}
	if sc.Nodes.Count <= 0 {
		sc.Nodes.Count = 9
	}
	if sc.Nodes.SpacingM <= 0 {
		sc.Nodes.SpacingM = 800
	}
	if sc.Radio.RangeM <= 0 {
		sc.Radio.RangeM = 1000
	}
	if sc.Radio.AirTime <= 0 {
		sc.Radio.AirTime = Duration(5 * time.Millisecond)
	}
	if sc.Traffic.MsgPerNodePerMin <= 0 {
		sc.Traffic.MsgPerNodePerMin = 6
	}
	if sc.Traffic.Payload == "" {
		sc.Traffic.Payload = "hello"
	}
	if sc.Logging.MetricsFile == "" {
		sc.Logging.MetricsFile = "metrics.json"
	}
}
