package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeRate(t *testing.T) {
	assert.Equal(t, "0.05", Config{PlatformFeeRate: "0.05"}.FeeRate().String())
	assert.Equal(t, "0.1", Config{PlatformFeeRate: "0.10"}.FeeRate().String())
	assert.Equal(t, "0.05", Config{PlatformFeeRate: "abc"}.FeeRate().String())
	assert.Equal(t, "0.05", Config{PlatformFeeRate: "-1"}.FeeRate().String())
}

func TestBrokers(t *testing.T) {
	assert.Nil(t, Config{}.Brokers())
	assert.Equal(t, []string{"a:9092", "b:9092"}, Config{KafkaBrokers: " a:9092, ,b:9092"}.Brokers())
}
