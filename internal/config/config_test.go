package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	g := gomega.NewWithT(t)
	path := writeConfig(t, `
[network]
bind_address = "127.0.0.1:9000"
worker_pool_size = 4
keepalive_interval = "2s"

[simulation]
target_time_per_step = "25ms"
time_scaling = 0
addressing = "id"
fanout = "shared"

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(cfg.Network.BindAddress).To(gomega.Equal("127.0.0.1:9000"))
	g.Expect(cfg.Network.WorkerPoolSize).To(gomega.Equal(4))
	g.Expect(cfg.Network.KeepaliveInterval).To(gomega.Equal(2 * time.Second))
	g.Expect(cfg.Simulation.TargetTimePerStep).To(gomega.Equal(25 * time.Millisecond))
	g.Expect(cfg.Simulation.TimeScaling).To(gomega.BeZero())
	g.Expect(cfg.Simulation.Addressing).To(gomega.Equal("id"))
	g.Expect(cfg.Simulation.Fanout).To(gomega.Equal("shared"))
	g.Expect(cfg.Logging.Level).To(gomega.Equal("debug"))

	// Untouched keys keep their defaults.
	g.Expect(cfg.Network.SubscriberQueueSize).To(gomega.Equal(64))
	g.Expect(cfg.Simulation.InteractionConstant).To(gomega.Equal(6.67430e-11))
	g.Expect(cfg.Server.StartTime).NotTo(gomega.BeZero())
}

func TestLoad_Defaults(t *testing.T) {
	g := gomega.NewWithT(t)
	g.Expect(Default().Validate()).To(gomega.Succeed())
	g.Expect(Default().Network.WorkerPoolSize).To(gomega.Equal(24))
	g.Expect(Default().Simulation.TimeScaling).To(gomega.Equal(300000.0))
	g.Expect(Default().Simulation.TargetTimePerStep).To(gomega.Equal(10 * time.Millisecond))
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("missing explicit file accepted")
	}
}

func TestLoad_ParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "[network\nworker_pool_size = 1"))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	g := gomega.NewWithT(t)
	path := writeConfig(t, `
[network]
worker_pool_size = 0

[simulation]
addressing = "handle"
fanout = "multicast"
`)
	_, err := Load(path)
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(multierr.Errors(unwrapConfig(err))).To(gomega.HaveLen(3))
	g.Expect(err.Error()).To(gomega.ContainSubstring("worker_pool_size"))
	g.Expect(err.Error()).To(gomega.ContainSubstring(`"handle"`))
	g.Expect(err.Error()).To(gomega.ContainSubstring(`"multicast"`))
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvPath, "")
	if got := Resolve(""); got != DefaultPath {
		t.Errorf("Resolve() = %q, want %q", got, DefaultPath)
	}
	t.Setenv(EnvPath, "/etc/interstellare.toml")
	if got := Resolve(""); got != "/etc/interstellare.toml" {
		t.Errorf("Resolve() with env = %q", got)
	}
	if got := Resolve("flag.toml"); got != "flag.toml" {
		t.Errorf("Resolve(flag) = %q", got)
	}
}

// unwrapConfig strips the "config <path>:" wrapper added by Load.
func unwrapConfig(err error) error {
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return u.Unwrap()
	}
	return err
}
