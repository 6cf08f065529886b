package config

import "testing"

func TestValidate_RejectsEmptyListenAddr(t *testing.T) {
	c := &Config{ListenAddr: "", MaxQueueBytesPerClient: 1, ListenBacklog: 1, AcceptIPBurst: 1, AcceptGlobalBurst: 1, LogLevel: "info", LogFormat: "json"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty listen addr")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	c := &Config{ListenAddr: ":8080", MaxQueueBytesPerClient: 1, ListenBacklog: 1, AcceptIPBurst: 1, AcceptGlobalBurst: 1, LogLevel: "verbose", LogFormat: "json"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_RejectsBadLogFormat(t *testing.T) {
	c := &Config{ListenAddr: ":8080", MaxQueueBytesPerClient: 1, ListenBacklog: 1, AcceptIPBurst: 1, AcceptGlobalBurst: 1, LogLevel: "info", LogFormat: "xml"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	c := &Config{
		ListenAddr:             ":8080",
		MaxQueueBytesPerClient: 1048576,
		ListenBacklog:          16,
		AcceptIPBurst:          10,
		AcceptGlobalBurst:      100,
		LogLevel:               "info",
		LogFormat:              "json",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
