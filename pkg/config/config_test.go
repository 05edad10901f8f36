package config_test

import (
	"flag"
	"testing"
	"time"

	"github.com/netpix/netpix/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFlagsParsesRepeatableSources(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := config.RegisterFlags(fs)

	err := fs.Parse([]string{"-f", "a.pcap", "-f", "b.pcap", "-i", "eth0", "-P"})
	require.NoError(t, err)
	cfg.Finalize()

	assert.Equal(t, []string{"a.pcap", "b.pcap"}, cfg.Files)
	assert.Equal(t, []string{"eth0"}, cfg.Interfaces)
	assert.True(t, cfg.Promisc)
}

func TestRegisterFlagsAppliesDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := config.RegisterFlags(fs)

	require.NoError(t, fs.Parse(nil))
	cfg.Finalize()

	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 3550, cfg.Port)
	assert.Equal(t, 32768, cfg.BufferSize)
	assert.Equal(t, 5*time.Millisecond, cfg.MessageInterval)
	assert.Equal(t, 300*time.Second, cfg.MaxPacketAge)
}

func TestValidateRequiresAtLeastOneSource(t *testing.T) {
	cfg := &config.Config{}
	assert.Error(t, cfg.Validate())

	cfg.Files = []string{"a.pcap"}
	assert.NoError(t, cfg.Validate())
}
