package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoSources(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse(nil))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 1, s.NumCPUs)
	require.Equal(t, uint64(1<<26), s.MemoryBytes)
	require.False(t, s.VAWidth48)
	require.Equal(t, 8, s.AlignmentBytes)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("AXPCORE_NUM_CPUS", "4")

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse(nil))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 4, s.NumCPUs)
}

func TestLoadHonorsFlagOverride(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--num-cpus=8", "--va-width-48"}))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 8, s.NumCPUs)
	require.True(t, s.VAWidth48)
}

func TestLoadRejectsZeroCPUs(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--num-cpus=0"}))

	_, err := Load(v)
	require.Error(t, err)
}

func TestVACtlSelectsWidth(t *testing.T) {
	s48 := Settings{VAWidth48: true}
	require.True(t, s48.VACtl().VA48())

	s43 := Settings{VAWidth48: false}
	require.False(t, s43.VACtl().VA48())
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/axpcore.toml"
	content := "num_cpus = 2\nmemory_bytes = 1048576\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse(nil))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 2, s.NumCPUs)
	require.Equal(t, uint64(1048576), s.MemoryBytes)
}
