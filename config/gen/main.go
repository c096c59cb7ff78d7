package main

import (
	"log/slog"
	"os"

	"github.com/brensch/attendance/config"
	"gopkg.in/yaml.v3"
)

func main() {
	slog.Info("generating example config")
	exampleConf := config.Default()
	exampleConf.Discord.BotToken = "<discord bot token>"
	exampleConf.Webhook.URL = "https://script.google.com/macros/s/<deployment>/exec"

	confYAML, err := yaml.Marshal(exampleConf)
	if err != nil {
		slog.Error("failed to marshal example yaml", "err", err)
		return
	}

	err = os.WriteFile("./config.example.yaml", confYAML, 0644)
	if err != nil {
		slog.Error("failed to write example conf to file", "err", err)
		return
	}
}
