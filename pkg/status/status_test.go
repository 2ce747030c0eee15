package status

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- MQTT fakes ---

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	sync.Mutex
	messages []published
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.Lock()
	defer p.Unlock()
	p.messages = append(p.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newFakeToken(nil)
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.Lock()
	defer p.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// recordingReporter captures every call, for Multi.
type recordingReporter struct {
	codes []Code
	fatal []bool
	diags []Diagnostics
}

func (r *recordingReporter) Report(code Code, fatal bool) {
	r.codes = append(r.codes, code)
	r.fatal = append(r.fatal, fatal)
}
func (r *recordingReporter) Diagnostics(d Diagnostics) { r.diags = append(r.diags, d) }

// --- Tests ---

func TestCode_String(t *testing.T) {
	assert.Equal(t, "buffer_full", BufferFull.String())
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "unknown", Code(99).String())
}

func TestLogReporter_FatalRestartsAfterDelay(t *testing.T) {
	var restarted []Code
	r := NewLogReporter(LogReporterConfig{RestartDelay: 3 * time.Second}, func(c Code) {
		restarted = append(restarted, c)
	}, zerolog.Nop())
	var slept time.Duration
	r.sleep = func(d time.Duration) { slept += d }

	r.Report(NoDatabaseConnection, false)
	assert.Empty(t, restarted, "non-fatal codes never restart")

	r.Report(BufferFull, true)
	assert.Equal(t, []Code{BufferFull}, restarted)
	assert.Equal(t, 3*time.Second, slept)
}

func TestLogReporter_DedupesRepeatedCodes(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(LogReporterConfig{}, func(Code) {}, zerolog.New(&buf))

	r.Report(NoInternet, false)
	r.Report(NoInternet, false)
	r.Report(None, false)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "no_internet")
	assert.Contains(t, string(lines[1]), "back to normal")
}

func TestMQTTReporter_PublishesStatusOnChange(t *testing.T) {
	pub := &fakePublisher{}
	r := newMQTTReporter(MQTTReporterConfig{Topic: "rig-1"}, pub, zerolog.Nop())

	r.Report(NoDatabaseConnection, false)
	r.Report(NoDatabaseConnection, false)
	r.Report(None, false)
	r.Report(BufferFull, true)

	msgs := pub.onTopic("rig-1/status")
	require.Len(t, msgs, 3)

	var last statusMessage
	require.NoError(t, json.Unmarshal(msgs[2].payload, &last))
	assert.Equal(t, int(BufferFull), last.Code)
	assert.Equal(t, "buffer_full", last.Name)
	assert.True(t, last.Fatal)
	assert.True(t, msgs[2].retained)
}

func TestMQTTReporter_RateLimitsDiagnostics(t *testing.T) {
	pub := &fakePublisher{}
	r := newMQTTReporter(MQTTReporterConfig{Topic: "rig-1", DiagnosticsInterval: time.Second}, pub, zerolog.Nop())
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Diagnostics(Diagnostics{BufferSize: 1})
	now = now.Add(500 * time.Millisecond)
	r.Diagnostics(Diagnostics{BufferSize: 2})
	now = now.Add(600 * time.Millisecond)
	r.Diagnostics(Diagnostics{BufferSize: 3, BufferCapacity: 1024, Pending: 7})

	msgs := pub.onTopic("rig-1/diagnostics")
	require.Len(t, msgs, 2)
	var d Diagnostics
	require.NoError(t, json.Unmarshal(msgs[1].payload, &d))
	assert.Equal(t, Diagnostics{BufferSize: 3, BufferCapacity: 1024, Pending: 7}, d)
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	m := Multi{a, b}

	m.Report(NoInternet, false)
	m.Diagnostics(Diagnostics{Pending: 4})

	for _, r := range []*recordingReporter{a, b} {
		assert.Equal(t, []Code{NoInternet}, r.codes)
		assert.Equal(t, []bool{false}, r.fatal)
		assert.Equal(t, []Diagnostics{{Pending: 4}}, r.diags)
	}
}

func TestNewMQTTReporter_RequiresBroker(t *testing.T) {
	_, _, err := NewMQTTReporter(MQTTReporterConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
