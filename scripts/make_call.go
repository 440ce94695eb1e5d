// Command make_call places a one-off outbound call using the twilio
// settings from a config file, without starting the whole engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/voxhop/ivrnav/pkg/configutil"
	"github.com/voxhop/ivrnav/pkg/session"
	twiliotransport "github.com/voxhop/ivrnav/pkg/transports/twilio"
)

type transportsSection struct {
	Transports struct {
		Provider string         `mapstructure:"provider"`
		Settings map[string]any `mapstructure:"settings"`
	} `mapstructure:"transports"`
}

func main() {
	configPath := flag.String("config", "examples/outreach/config.yaml", "")
	from := flag.String("from", "", "")
	to := flag.String("to", "", "")
	purpose := flag.String("purpose", "", "what the call should accomplish")
	instructions := flag.String("instructions", "", "extra guidance for the agent")
	transferTo := flag.String("transfer_to", "", "number to bridge once a human answers")
	flag.Parse()
	if *to == "" {
		fmt.Println("usage: make_call -to=+456 [-from=+123] [-purpose=...] [-config=...]")
		os.Exit(1)
	}

	cfg, err := loadTransportsSection(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	var settings twiliotransport.Config
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &settings); err != nil {
		fmt.Println("settings error:", err)
		os.Exit(1)
	}

	dialer := twiliotransport.NewDialer(settings)
	callSID, err := dialer.Dial(context.Background(), *to, *from, session.QueryConfig{
		Purpose:             *purpose,
		CustomInstructions:  *instructions,
		TransferDestination: *transferTo,
	})
	if err != nil {
		fmt.Println("call error:", err)
		os.Exit(1)
	}
	fmt.Println("call_sid:", callSID)
}

func loadTransportsSection(path string) (transportsSection, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return transportsSection{}, err
	}
	var cfg transportsSection
	if err := v.Unmarshal(&cfg); err != nil {
		return transportsSection{}, err
	}
	return cfg, nil
}
