// Package config loads the gateway's startup configuration: the two
// positional risk limits (buyLimit, sellLimit), plus host/port/log-level
// flags and optional .env overrides.
//
// The loading order follows params.LoadFromEnv in the hyperlicked example:
// an optional .env file is read first (if present), then flags are parsed
// and take precedence over whatever the .env file set.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Defaults: 100/100 when the positional limits are omitted,
// 127.0.0.1:4000 when host/port are not overridden.
const (
	DefaultBuyLimit  = 100
	DefaultSellLimit = 100
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 4000
	DefaultLogLevel  = "info"
)

// Config is the fully resolved set of startup parameters for cmd/gateway.
type Config struct {
	BuyLimit  uint64
	SellLimit uint64
	Host      string
	Port      uint16
	LogLevel  string
}

// Load parses args (typically os.Args[1:]) into a Config. It loads a
// ".env" file from the working directory first, if one exists, so
// RISKGW_HOST/RISKGW_PORT/RISKGW_LOG_LEVEL can supply defaults that flags
// still override. Positional arguments, if present, must be exactly two
// unsigned 64-bit integers: buyLimit and sellLimit; if omitted, a usage
// line is printed to stderr and the compiled-in defaults apply.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}

	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	host := fs.String("host", envOr("RISKGW_HOST", DefaultHost), "listen host")
	port := fs.Uint16("port", envOrUint16("RISKGW_PORT", DefaultPort), "listen port")
	logLevel := fs.String("log-level", envOr("RISKGW_LOG_LEVEL", DefaultLogLevel), "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	buyLimit, sellLimit := uint64(DefaultBuyLimit), uint64(DefaultSellLimit)
	positional := fs.Args()
	switch len(positional) {
	case 0:
		fmt.Fprintf(os.Stderr, "usage: gateway [buyLimit] [sellLimit] [--host=%s] [--port=%d] [--log-level=%s]\n", DefaultHost, DefaultPort, DefaultLogLevel)
		fmt.Fprintf(os.Stderr, "no limits given, defaulting to buyLimit=%d sellLimit=%d\n", DefaultBuyLimit, DefaultSellLimit)
	case 2:
		var err error
		buyLimit, err = strconv.ParseUint(positional[0], 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid buyLimit %q: %w", positional[0], err)
		}
		sellLimit, err = strconv.ParseUint(positional[1], 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid sellLimit %q: %w", positional[1], err)
		}
	default:
		return Config{}, fmt.Errorf("config: expected 0 or 2 positional arguments (buyLimit sellLimit), got %d", len(positional))
	}

	return Config{
		BuyLimit:  buyLimit,
		SellLimit: sellLimit,
		Host:      *host,
		Port:      *port,
		LogLevel:  *logLevel,
	}, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrUint16(key string, fallback uint16) uint16 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return fallback
	}
	return uint16(n)
}
