package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestYAMLAndEnvPrecedence(t *testing.T) {
	g := NewWithT(t)
	p := writeConfig(t, ""+
		"http:\n  bind: 127.0.0.1\n  port: 9999\n"+
		"watch:\n  interval: 2s\n"+
		"logging:\n  level: debug\n  format: json\n"+
		"metrics:\n  enabled: false\n")

	cfg, err := Load(p)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Addr()).To(Equal("127.0.0.1:9999"))
	g.Expect(cfg.PollInterval).To(Equal(2 * time.Second))
	g.Expect(cfg.LogLevel).To(Equal(zerolog.DebugLevel))
	g.Expect(cfg.LogFormat).To(Equal(FormatJSON))
	g.Expect(cfg.Metrics).To(BeFalse())
	g.Expect(cfg.Source).To(Equal(p))

	t.Setenv("PICODISKS_BIND", "0.0.0.0")
	t.Setenv("PICODISKS_PORT", "8181")
	t.Setenv("PICODISKS_POLL_INTERVAL", "500ms")
	t.Setenv("PICODISKS_LOG_LEVEL", "warn")
	t.Setenv("PICODISKS_LOG_FORMAT", "console")
	t.Setenv("PICODISKS_METRICS", "true")

	cfg, err = Load(p)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Addr()).To(Equal("0.0.0.0:8181"))
	g.Expect(cfg.PollInterval).To(Equal(500 * time.Millisecond))
	g.Expect(cfg.LogLevel).To(Equal(zerolog.WarnLevel))
	g.Expect(cfg.LogFormat).To(Equal(FormatConsole))
	g.Expect(cfg.Metrics).To(BeTrue())
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	g := NewWithT(t)
	p := writeConfig(t, "http:\n  port: 9000\n")

	cfg, err := Load(p)
	g.Expect(err).NotTo(HaveOccurred())
	want := Defaults()
	want.Port = 9000
	want.Source = p
	g.Expect(cfg).To(Equal(want))
}

func TestExplicitPathMustExist(t *testing.T) {
	g := NewWithT(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	g.Expect(err).To(HaveOccurred())
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "http: [\n"},
		{name: "bad interval", yaml: "watch:\n  interval: soon\n"},
		{name: "bad level", yaml: "logging:\n  level: loud\n"},
		{name: "bad format", yaml: "logging:\n  format: xml\n"},
		{name: "zero interval", yaml: "watch:\n  interval: 0s\n"},
		{name: "port range", yaml: "http:\n  port: 70000\n"},
		{name: "env port", yaml: "{}\n", env: map[string]string{"PICODISKS_PORT": "eighty"}},
		{name: "env metrics", yaml: "{}\n", env: map[string]string{"PICODISKS_METRICS": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			g.Expect(err).To(HaveOccurred())
		})
	}
}
