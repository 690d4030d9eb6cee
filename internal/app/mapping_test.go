package app

import (
	"testing"

	"schedbot/internal/config"
)

func TestMapLoggingConfigDefaultsChatToFirstAdmin(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		enabled bool
		chatID  int64
		admins  []int64
		want    int64
	}{
		{name: "first admin", enabled: true, admins: []int64{7, 9}, want: 7},
		{name: "explicit chat wins", enabled: true, chatID: -100, admins: []int64{7}, want: -100},
		{name: "sink disabled", enabled: false, admins: []int64{7}, want: 0},
		{name: "no admins", enabled: true, want: 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.Telegram.AdminIDs = tc.admins
			cfg.Logging.Telegram.Enabled = tc.enabled
			cfg.Logging.Telegram.ChatID = tc.chatID
			got := mapLoggingConfig(cfg).Telegram.ChatID
			if got != tc.want {
				t.Fatalf("chat id = %d, want %d", got, tc.want)
			}
			if cfg.Logging.Telegram.ChatID != tc.chatID {
				t.Fatalf("config mutated: %d", cfg.Logging.Telegram.ChatID)
			}
		})
	}
}
