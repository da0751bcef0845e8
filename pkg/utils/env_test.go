package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvDuration(t *testing.T) {
	t.Setenv("LX_TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, EnvDuration("LX_TEST_DURATION", time.Second))

	t.Setenv("LX_TEST_DURATION", "garbage")
	assert.Equal(t, time.Second, EnvDuration("LX_TEST_DURATION", time.Second))

	t.Setenv("LX_TEST_DURATION", "-5s")
	assert.Equal(t, time.Second, EnvDuration("LX_TEST_DURATION", time.Second))
}

func TestEnvList(t *testing.T) {
	t.Setenv("LX_TEST_LIST", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, EnvList("LX_TEST_LIST", nil))

	t.Setenv("LX_TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, EnvList("LX_TEST_LIST", []string{"x"}))
}

func TestEnvInt64AndBool(t *testing.T) {
	t.Setenv("LX_TEST_INT64", "0")
	assert.Equal(t, int64(0), EnvInt64("LX_TEST_INT64", 10))

	t.Setenv("LX_TEST_INT64", "-1")
	assert.Equal(t, int64(10), EnvInt64("LX_TEST_INT64", 10))

	t.Setenv("LX_TEST_BOOL", "true")
	assert.True(t, EnvBool("LX_TEST_BOOL", false))
}

func TestDedupAndHasDuplicates(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, Dedup([]string{"http://a/", "http://a", "http://b"}))
	assert.True(t, HasDuplicates([]string{"1", "2", "1"}))
	assert.False(t, HasDuplicates([]string{"1", "2"}))
}
