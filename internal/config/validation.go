package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	mode := strings.ToLower(strings.TrimSpace(c.Algorithm.Mode))
	switch mode {
	case "http":
		if strings.TrimSpace(c.Algorithm.APIURL) == "" {
			return fmt.Errorf("algorithm.api_url is required when algorithm.mode=http")
		}
	case "local":
	default:
		return fmt.Errorf("algorithm.mode must be \"http\" or \"local\", got %q", c.Algorithm.Mode)
	}
	c.Algorithm.Mode = mode

	if c.Execution.MinConfidence > 100 {
		return fmt.Errorf("execution.min_confidence must be within 0-100")
	}
	if c.Execution.MinPositionSize > c.Execution.MaxPositionSize {
		return fmt.Errorf("execution.min_position_size exceeds execution.max_position_size")
	}
	if c.Venue.APIURL != "" && !strings.HasPrefix(c.Venue.APIURL, "http") {
		return fmt.Errorf("venue.api_url must be an http(s) URL")
	}
	if c.Manager.AutoExecute && strings.TrimSpace(c.Manager.PolicyPath) == "" {
		return fmt.Errorf("manager.policy_path is required when auto_execute is enabled")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id")
		}
	}
	return nil
}
