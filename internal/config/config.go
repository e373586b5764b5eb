package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

const (
	ProtocolRTUOverTCP = "rtuovertcp"
	ProtocolRTUOverUDP = "rtuoverudp"
)

type Config struct {
	LogLevel zapcore.Level
	Devices  []DeviceConfig `mapstructure:"devices"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Tariff   TariffConfig   `mapstructure:"tariff"`

	StorageDir string `mapstructure:"storage_dir"`
	Port       uint   `mapstructure:"port"`
	HttpLog    bool   `mapstructure:"http_log"`
}

type DeviceConfig struct {
	Protocol           string `mapstructure:"protocol"`
	Host               string `mapstructure:"host"`
	Port               uint   `mapstructure:"port"`
	UnitId             uint   `mapstructure:"unit_id"`
	TimeoutMillis      uint32 `mapstructure:"timeout_millis"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	Currency          string `mapstructure:"currency"`
}

type TariffConfig struct {
	SummerMonths []int        `mapstructure:"summer_months"`
	Summer       SeasonConfig `mapstructure:"summer"`
	NonSummer    SeasonConfig `mapstructure:"non_summer"`
}

type SeasonConfig struct {
	Tier1Limit float64 `mapstructure:"tier1_limit"`
	Tier2Limit float64 `mapstructure:"tier2_limit"`
	Tier1Price float64 `mapstructure:"tier1_price"`
	Tier2Price float64 `mapstructure:"tier2_price"`
	Tier3Price float64 `mapstructure:"tier3_price"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// DeviceID derives the registry key for a configured device.
func (c DeviceConfig) DeviceID() domain.DeviceID {
	return domain.NewDeviceID(c.Host, c.Port, uint8(c.UnitId))
}

// Endpoint converts the device entry to a meter client endpoint.
func (c DeviceConfig) Endpoint() (pzem.Endpoint, error) {
	var transport pzem.Transport
	switch c.Protocol {
	case ProtocolRTUOverTCP:
		transport = pzem.TransportStream
	case ProtocolRTUOverUDP:
		transport = pzem.TransportDatagram
	default:
		return pzem.Endpoint{}, fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	return pzem.Endpoint{
		Transport:   transport,
		Host:        c.Host,
		Port:        c.Port,
		UnitAddress: uint8(c.UnitId),
		Timeout:     time.Duration(c.TimeoutMillis) * time.Millisecond,
	}, nil
}

func (c DeviceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c DeviceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// RateTable converts the tariff section to the billing table.
func (c TariffConfig) RateTable() domain.SeasonRateTable {
	summer := make(map[time.Month]bool, len(c.SummerMonths))
	for _, m := range c.SummerMonths {
		summer[time.Month(m)] = true
	}
	return domain.SeasonRateTable{
		SummerMonths: summer,
		Summer:       c.Summer.rates(),
		NonSummer:    c.NonSummer.rates(),
	}
}

func (c SeasonConfig) rates() domain.TierRates {
	return domain.TierRates{
		Tier1LimitKWh: c.Tier1Limit,
		Tier2LimitKWh: c.Tier2Limit,
		Tier1Price:    c.Tier1Price,
		Tier2Price:    c.Tier2Price,
		Tier3Price:    c.Tier3Price,
	}
}
