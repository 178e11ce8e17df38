package fs

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Check it satisfies the interfaces
var (
	_ fmt.Stringer = LogValueItem{}
	_ fmt.Stringer = LogLevel(0)
)

type withString struct{}

func (withString) String() string {
	return "hello"
}

func TestLogValue(t *testing.T) {
	x := LogValue("x", 1)
	assert.Equal(t, "1", x.String())
	x = LogValue("x", withString{})
	assert.Equal(t, "hello", x.String())
}

func TestLogLevelString(t *testing.T) {
	for _, test := range []struct {
		in   LogLevel
		want string
	}{
		{LogLevelEmergency, "EMERGENCY"},
		{LogLevelDebug, "DEBUG"},
		{99, "LogLevel(99)"},
	} {
		logLevel := test.in
		got := logLevel.String()
		assert.Equal(t, test.want, got, test.in)
	}
}

func TestLogLevelSet(t *testing.T) {
	for _, test := range []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"EMERGENCY", LogLevelEmergency, false},
		{"DEBUG", LogLevelDebug, false},
		{"Potato", 100, true},
	} {
		logLevel := LogLevel(100)
		err := logLevel.Set(test.in)
		if test.err {
			require.Error(t, err, test.in)
		} else {
			require.NoError(t, err, test.in)
		}
		assert.Equal(t, test.want, logLevel, test.in)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	oldOutput := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldOutput)
		log.SetFlags(oldFlags)
	}()

	ci := GetConfig(context.Background())
	oldLevel := ci.LogLevel
	defer func() { ci.LogLevel = oldLevel }()

	ci.LogLevel = LogLevelNotice
	Debugf(nil, "hidden %d", 1)
	Infof(nil, "hidden %d", 2)
	Logf("obj", "shown %d", 3)
	Errorf(nil, "shown %d", 4)
	assert.Equal(t, "NOTICE: obj: shown 3\nERROR : shown 4\n", buf.String())

	buf.Reset()
	ci.LogLevel = LogLevelDebug
	Debugf(nil, "now shown")
	assert.Equal(t, "DEBUG : now shown\n", buf.String())
}
