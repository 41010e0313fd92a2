package hyper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_EncodesReferenceString(t *testing.T) {
	c := Default()

	assert.Equal(t,
		"depth=1,num_blocks=24,kl_min=0.1,learning_rate=0.002,batch_size=32,enable_iaf=False,dataset=cifar10",
		c.String())
}

func TestString_YieldsExactKeySet(t *testing.T) {
	s := Default().String()

	got := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		require.True(t, ok, "pair %q must contain =", pair)
		got[key] = value
	}

	assert.Equal(t, map[string]string{
		"depth":         "1",
		"num_blocks":    "24",
		"kl_min":        "0.1",
		"learning_rate": "0.002",
		"batch_size":    "32",
		"enable_iaf":    "False",
		"dataset":       "cifar10",
	}, got)
}

func TestString_RendersEnabledIAF(t *testing.T) {
	c := Default()
	c.EnableIAF = true

	assert.Contains(t, c.String(), "enable_iaf=True")
}

func TestParse_InvertsString(t *testing.T) {
	want := Config{
		Depth:        2,
		NumBlocks:    8,
		KLMin:        0.25,
		LearningRate: 0.001,
		BatchSize:    64,
		EnableIAF:    true,
		Dataset:      "imagenet32",
	}

	got, err := Parse(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParse_IsOrderIndependent(t *testing.T) {
	got, err := Parse("dataset=cifar10,depth=1,enable_iaf=False,num_blocks=24,batch_size=32,kl_min=0.1,learning_rate=0.002")
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestParse_RejectsUnknownKey(t *testing.T) {
	_, err := Parse("depth=1,momentum=0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "momentum")
}

func TestParse_RejectsMalformedPair(t *testing.T) {
	_, err := Parse("depth=1,num_blocks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestParse_RejectsBadValue(t *testing.T) {
	_, err := Parse("depth=deep")
	assert.Error(t, err)

	_, err = Parse("enable_iaf=maybe")
	assert.Error(t, err)
}

func TestParse_RejectsEmptyString(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestValidate_AcceptsDefault(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero depth", func(c *Config) { c.Depth = 0 }},
		{"zero blocks", func(c *Config) { c.NumBlocks = 0 }},
		{"negative kl_min", func(c *Config) { c.KLMin = -0.1 }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"empty dataset", func(c *Config) { c.Dataset = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
