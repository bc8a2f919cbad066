package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	Casino   CasinoConfig    `mapstructure:"casino"`
	Crash    CrashConfig     `mapstructure:"crash"`
	Payment  PaymentConfig   `mapstructure:"payment"`
	Admin    AdminSeedConfig `mapstructure:"admin"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

// CasinoConfig holds money and game tuning. House edges are fractions
// (0.05 = 5%); each bet snapshots its edge as basis points at placement.
type CasinoConfig struct {
	HouseEdgeDice       float64 `mapstructure:"houseEdgeDice"`
	HouseEdgeFootball   float64 `mapstructure:"houseEdgeFootball"`
	HouseEdgeBasketball float64 `mapstructure:"houseEdgeBasketball"`
	HouseEdgeSlots      float64 `mapstructure:"houseEdgeSlots"`
	HouseEdgeMines      float64 `mapstructure:"houseEdgeMines"`
	HouseEdgeRoulette   float64 `mapstructure:"houseEdgeRoulette"`

	ReferralRate float64 `mapstructure:"referralRate"`

	// Amounts in minor currency units (cents).
	WelcomeBonus int64 `mapstructure:"welcomeBonus"`
	MinStake     int64 `mapstructure:"minStake"`
	MaxStake     int64 `mapstructure:"maxStake"`

	BetsPerMinute int `mapstructure:"betsPerMinute"`
}

type CrashConfig struct {
	HouseEdge       float64 `mapstructure:"houseEdge"`
	BettingWindowMS int     `mapstructure:"bettingWindowMs"`
	TickIntervalMS  int     `mapstructure:"tickIntervalMs"`
	CooldownMS      int     `mapstructure:"cooldownMs"`
	GrowthRate      float64 `mapstructure:"growthRate"`
	MaxMultiplier   int64   `mapstructure:"maxMultiplierX100"`
	HistorySize     int     `mapstructure:"historySize"`
}

type PaymentConfig struct {
	APIBase         string `mapstructure:"apiBase"`
	APIToken        string `mapstructure:"apiToken"`
	Asset           string `mapstructure:"asset"`
	PollIntervalSec int    `mapstructure:"pollIntervalSec"`
}

type AdminSeedConfig struct {
	DefaultUsername string `mapstructure:"defaultUsername"`
	DefaultPassword string `mapstructure:"defaultPassword"`
}

var GlobalConfig *Config

func LoadConfig(path string) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}

func setDefaults() {
	viper.SetDefault("casino.houseEdgeDice", 0.05)
	viper.SetDefault("casino.houseEdgeFootball", 0.05)
	viper.SetDefault("casino.houseEdgeBasketball", 0.05)
	viper.SetDefault("casino.houseEdgeSlots", 0.18)
	viper.SetDefault("casino.houseEdgeMines", 0.18)
	viper.SetDefault("casino.houseEdgeRoulette", 0.05)
	viper.SetDefault("casino.referralRate", 0.10)
	viper.SetDefault("casino.welcomeBonus", 10)
	viper.SetDefault("casino.minStake", 10)
	viper.SetDefault("casino.maxStake", 1000000)
	viper.SetDefault("casino.betsPerMinute", 30)

	viper.SetDefault("crash.houseEdge", 0.22)
	viper.SetDefault("crash.bettingWindowMs", 8000)
	viper.SetDefault("crash.tickIntervalMs", 150)
	viper.SetDefault("crash.cooldownMs", 4000)
	viper.SetDefault("crash.growthRate", 0.07)
	viper.SetDefault("crash.maxMultiplierX100", 100000)
	viper.SetDefault("crash.historySize", 30)

	viper.SetDefault("payment.pollIntervalSec", 12)
	viper.SetDefault("payment.asset", "USDT")
}
