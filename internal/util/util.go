package util

import (
	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/config"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Devices: []config.DeviceConfig{
			{
				Protocol:           config.ProtocolRTUOverTCP,
				Host:               "-.-.-.-",
				Port:               9000,
				UnitId:             1,
				TimeoutMillis:      2000,
				PollIntervalMillis: 5000,
			},
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "peacefair",
			Currency:  "CNY",
		},
		Tariff: config.TariffConfig{
			SummerMonths: []int{6, 7, 8, 9},
			Summer: config.SeasonConfig{
				Tier1Limit: 260,
				Tier2Limit: 600,
				Tier1Price: 0.5,
				Tier2Price: 0.6,
				Tier3Price: 0.7,
			},
			NonSummer: config.SeasonConfig{
				Tier1Limit: 200,
				Tier2Limit: 400,
				Tier1Price: 0.45,
				Tier2Price: 0.55,
				Tier3Price: 0.65,
			},
		},
		StorageDir: "/tmp/peacefair-test",
		Port:       8080,
	}
}
