package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformMatches(t *testing.T) {
	env := Environment{OS: "linux", Arch: "arm64", Debugger: "lldb"}

	assert.True(t, (&Platform{}).matches(env))
	assert.True(t, (&Platform{OS: []string{"darwin", "linux"}}).matches(env))
	assert.False(t, (&Platform{OS: []string{"darwin"}}).matches(env))
	assert.False(t, (&Platform{OS: []string{"linux"}, Debugger: []string{"gdb"}}).matches(env))
}

func TestPlatformString(t *testing.T) {
	assert.Equal(t, "any", (&Platform{}).String())
	assert.Equal(t, "os=darwin arch=arm64,amd64", (&Platform{OS: []string{"darwin"}, Arch: []string{"arm64", "amd64"}}).String())
}

func TestConditionsEvaluate(t *testing.T) {
	missing := errors.New("not found")
	env := Environment{
		OS:       "linux",
		Arch:     "amd64",
		Debugger: "gdb",
		LookPath: func(name string) (string, error) {
			if name == "swiftc" {
				return "", missing
			}
			return "/usr/bin/" + name, nil
		},
	}

	tests := []struct {
		name string
		c    Conditions
		want verdict
	}{
		{"no conditions", Conditions{}, verdict{}},
		{"skip unless darwin", Conditions{SkipUnless: &Platform{OS: []string{"darwin"}}}, verdict{skip: "requires os=darwin"}},
		{"skip unless linux", Conditions{SkipUnless: &Platform{OS: []string{"linux"}}}, verdict{}},
		{"skip if gdb", Conditions{SkipIf: &Platform{Debugger: []string{"gdb"}}}, verdict{skip: "skipped on debugger=gdb"}},
		{"requires present tool", Conditions{Requires: []string{"cc"}}, verdict{}},
		{"requires missing tool", Conditions{Requires: []string{"cc", "swiftc"}}, verdict{skip: `required tool "swiftc" not found`}},
		{"expected failure here", Conditions{ExpectedFailure: &ExpectedFailure{Platform: Platform{OS: []string{"linux"}}, Bug: "rdar://1"}},
			verdict{expectedFailure: true, bug: "rdar://1"}},
		{"expected failure elsewhere", Conditions{ExpectedFailure: &ExpectedFailure{Platform: Platform{OS: []string{"darwin"}}}}, verdict{}},
		{"skip wins over expected failure", Conditions{
			SkipIf:          &Platform{},
			ExpectedFailure: &ExpectedFailure{},
		}, verdict{skip: "skipped on any"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.evaluate(env))
		})
	}
}

func TestDetectEnvironment(t *testing.T) {
	env := DetectEnvironment()
	assert.NotEmpty(t, env.OS)
	assert.NotEmpty(t, env.Arch)
	assert.NotNil(t, env.LookPath)
}
