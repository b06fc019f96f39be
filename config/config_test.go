package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
rules:
  - /etc/evedetect/rules
  - local.rules
strict: true
workers: 4
rule-order: [pass, drop, alert]
rule-states:
  - {gid: 1, sid: 1000001, state: disabled}
  - {sid: 1000002, state: drop}
  - {gid: 1, sid: 1000001, state: enabled}
outputs:
  - {name: alerts, type: memory}
  - {name: everything, type: memory}
rule-lists:
  default:
    alert: [alerts, everything]
  log:
    log: [everything]
geoip:
  enabled: true
  database: /usr/share/GeoIP/GeoLite2-City.mmdb
http:
  enabled: true
  request-logging: true
`

func writeConfig(t *testing.T, text string) (string, func()) {
	dir, err := ioutil.TempDir("", "evedetect")
	require.Nil(t, err)
	filename := filepath.Join(dir, "evedetect.yaml")
	require.Nil(t, ioutil.WriteFile(filename, []byte(text), 0644))
	return filename, func() { os.RemoveAll(dir) }
}

func TestLoadConfig(t *testing.T) {
	filename, cleanup := writeConfig(t, testConfig)
	defer cleanup()

	config, err := LoadConfig(filename)
	require.Nil(t, err)

	assert.Equal(t, []string{"/etc/evedetect/rules", "local.rules"}, config.Rules)
	assert.True(t, config.Strict)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, 3, len(config.RuleStates))
	assert.Equal(t, uint32(0), config.RuleStates[1].Gid)
	assert.Equal(t, 2, len(config.Outputs))
	assert.Equal(t, []string{"everything"}, config.RuleLists["log"].Log)
	assert.True(t, config.Geoip.Enabled)
	assert.True(t, config.Http.RequestLogging)
	assert.Equal(t, DefaultHttpAddress, config.Http.Address)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("/nonexistent/evedetect.yaml")
	assert.NotNil(t, err)

	filename, cleanup := writeConfig(t, "rules: [unterminated")
	defer cleanup()
	_, err = LoadConfig(filename)
	assert.NotNil(t, err)
}

func TestDefault(t *testing.T) {
	config := Default()
	require.Equal(t, 1, len(config.Outputs))
	assert.Equal(t, "eve", config.Outputs[0].Type)
	assert.Equal(t, []string{"eve"}, config.RuleLists[DefaultRuleList].Alert)
}

func TestDecode(t *testing.T) {
	config, err := Decode(map[string]interface{}{
		"rules":      "a.rules,b.rules",
		"workers":    "8",
		"strict":     "true",
		"rule-order": []interface{}{"drop", "alert"},
		"rule-states": []interface{}{
			map[interface{}]interface{}{"gid": 1, "sid": "5", "state": "disabled"},
		},
		"outputs": []interface{}{
			map[string]interface{}{"name": "db", "type": "sqlite", "filename": "events.sqlite"},
		},
	})
	require.Nil(t, err)
	assert.Equal(t, []string{"a.rules", "b.rules"}, config.Rules)
	assert.Equal(t, 8, config.Workers)
	assert.True(t, config.Strict)
	assert.Equal(t, []string{"drop", "alert"}, config.RuleOrder)
	assert.Equal(t, RuleStateConfig{Gid: 1, Sid: 5, State: "disabled"}, config.RuleStates[0])
	assert.Equal(t, output.Config{Name: "db", Type: "sqlite", Filename: "events.sqlite"},
		config.Outputs[0])

	// Outputs were configured, so no default rule list is added.
	assert.Equal(t, 0, len(config.RuleLists))

	_, err = Decode(map[string]interface{}{"workers": "many"})
	assert.NotNil(t, err)
}

var ruleStateSpecTests = []struct {
	spec     string
	expected RuleStateConfig
	valid    bool
}{
	{"1:1000001:disabled", RuleStateConfig{1, 1000001, "disabled"}, true},
	{"3:42:drop", RuleStateConfig{3, 42, "drop"}, true},
	{"1000001:enabled", RuleStateConfig{1, 1000001, "enabled"}, true},
	{" 135:1:alert ", RuleStateConfig{135, 1, "alert"}, true},
	{"1000001", RuleStateConfig{}, false},
	{"x:1:enabled", RuleStateConfig{}, false},
	{"1:0:enabled", RuleStateConfig{}, false},
	{"1:-5:enabled", RuleStateConfig{}, false},
	{"1:2:3:4", RuleStateConfig{}, false},
}

func TestParseRuleStateSpec(t *testing.T) {
	for _, test := range ruleStateSpecTests {
		state, err := ParseRuleStateSpec(test.spec)
		if test.valid {
			assert.Nil(t, err, test.spec)
			assert.Equal(t, test.expected, state, test.spec)
		} else {
			assert.NotNil(t, err, test.spec)
		}
	}
}

func TestCompilerOptions(t *testing.T) {
	filename, cleanup := writeConfig(t, testConfig)
	defer cleanup()
	config, err := LoadConfig(filename)
	require.Nil(t, err)

	sinks, err := config.OpenOutputs()
	require.Nil(t, err)
	defer CloseOutputs(sinks)
	require.Equal(t, 2, len(sinks))

	options, warnings, err := config.CompilerOptions(sinks)
	require.Nil(t, err)
	require.Equal(t, 1, len(warnings))
	_, ok := warnings[0].(*rules.DuplicateStateError)
	assert.True(t, ok)

	assert.True(t, options.Strict)
	assert.Equal(t, []rules.Action{rules.ActionPass, rules.ActionDrop, rules.ActionAlert},
		options.RuleOrder)

	// The last entry for 1:1000001 wins.
	state, ok := options.States.Lookup(1, 1000001)
	require.True(t, ok)
	assert.True(t, state.Enabled)
	state, ok = options.States.Lookup(1, 1000002)
	require.True(t, ok)
	assert.Equal(t, rules.ActionDrop, state.Action)

	assert.Equal(t, output.OutputSet{sinks["alerts"], sinks["everything"]},
		options.DefaultRoute.Alert)
	assert.Equal(t, output.OutputSet{sinks["everything"]}, options.Routes[rules.ActionLog].Log)
	assert.Equal(t, 0, len(options.Routes[rules.ActionLog].Alert))
}

func TestCompilerOptionsErrors(t *testing.T) {
	sinks := map[string]output.Sink{"a": output.NewMemorySink()}

	config := &Config{RuleLists: map[string]RuleListConfig{"alert": {Alert: []string{"b"}}}}
	_, _, err := config.CompilerOptions(sinks)
	assert.NotNil(t, err)

	config = &Config{RuleLists: map[string]RuleListConfig{"bogus": {Alert: []string{"a"}}}}
	_, _, err = config.CompilerOptions(sinks)
	assert.NotNil(t, err)

	config = &Config{RuleOrder: []string{"none"}}
	_, _, err = config.CompilerOptions(sinks)
	assert.NotNil(t, err)

	config = &Config{RuleStates: []RuleStateConfig{{Sid: 1, State: "maybe"}}}
	_, _, err = config.CompilerOptions(sinks)
	assert.NotNil(t, err)
}

func TestOpenOutputsDuplicate(t *testing.T) {
	config := &Config{Outputs: []output.Config{
		{Name: "a", Type: "memory"},
		{Name: "a", Type: "memory"},
	}}
	_, err := config.OpenOutputs()
	assert.NotNil(t, err)

	config = &Config{Outputs: []output.Config{{Type: "carrier-pigeon"}}}
	_, err = config.OpenOutputs()
	assert.NotNil(t, err)
}
