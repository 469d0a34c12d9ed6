package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/koala/pkg/bridge/bridgetest"
)

func newTestRegistry(t *testing.T) (*Registry, *bridgetest.Fake) {
	t.Helper()
	fake := bridgetest.New()
	return NewRegistry(fake), fake
}

func collect(ch *Channel) *[]any {
	var got []any
	ch.On(EventMessage, func(args ...any) {
		got = append(got, args[0])
	})
	return &got
}

func TestOpenIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a := reg.Open("x")
	b := reg.Open("x")
	assert.Same(t, a, b)

	assert.Same(t, reg.Open(42), reg.Open("42"))
	assert.Equal(t, []string{"42", "x"}, reg.Names())
}

func TestMessagesReachListenersOnEitherReference(t *testing.T) {
	reg, fake := newTestRegistry(t)

	got := collect(reg.Open("x"))
	fake.Receive([]byte(`{"channel":"x","value":"hi"}`))

	assert.Equal(t, []any{"hi"}, *got)
}

func TestSendRoundTrip(t *testing.T) {
	values := []any{
		nil,
		float64(0),
		"",
		map[string]any{},
		[]any{float64(1), float64(2), float64(3)},
		map[string]any{"a": map[string]any{"b": []any{true, nil, "c"}}},
	}

	for _, v := range values {
		reg, fake := newTestRegistry(t)
		ch := reg.Open("rt")
		got := collect(ch)

		require.NoError(t, ch.Send(v))
		sent := fake.Sent()
		require.Len(t, sent, 1)

		fake.Receive(sent[0])
		require.Len(t, *got, 1)
		assert.Equal(t, v, (*got)[0])
	}
}

func TestSendEncodesEnvelope(t *testing.T) {
	reg, fake := newTestRegistry(t)

	require.NoError(t, reg.Open("status").Send(nil))
	require.NoError(t, reg.Open("status").Send(map[string]any{"ok": true}))

	sent := fake.Sent()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"channel":"status","value":null}`, string(sent[0]))
	assert.JSONEq(t, `{"channel":"status","value":{"ok":true}}`, string(sent[1]))
}

func TestSendReportsTransportFailure(t *testing.T) {
	reg, fake := newTestRegistry(t)
	fake.FailSends = true

	err := reg.Open("x").Send(1)
	assert.ErrorIs(t, err, bridgetest.ErrSendFailed)
}

func TestSendRejectsUnencodableValue(t *testing.T) {
	reg, fake := newTestRegistry(t)

	err := reg.Open("x").Send(make(chan int))
	assert.Error(t, err)
	assert.Empty(t, fake.Sent())
}

func TestMalformedInputIsDropped(t *testing.T) {
	reg, fake := newTestRegistry(t)
	got := collect(reg.Open("x"))

	inputs := []string{
		``,
		`not json`,
		`{"channel":`,
		`{"value":1}`,
		`{"channel":true,"value":1}`,
		`{"channel":["x"],"value":1}`,
		`["x", 1]`,
		`null`,
		`{"x": 1}`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { fake.Receive([]byte(in)) }, in)
	}

	assert.Empty(t, *got)
}

func TestNumericChannelNameIsRouted(t *testing.T) {
	reg, fake := newTestRegistry(t)
	got := collect(reg.Open(5))

	fake.Receive([]byte(`{"channel":5,"value":1}`))
	fake.Receive([]byte(`{"channel":5.0,"value":2}`))
	fake.Receive([]byte(`{"channel":"5","value":3}`))

	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, *got)
}

func TestCanonicalNumbers(t *testing.T) {
	tests := []struct {
		name any
		want string
	}{
		{5, "5"},
		{float64(5), "5"},
		{1.5, "1.5"},
		{-0.0, "0"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{"07", "07"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonical(tt.name), "%v", tt.name)
	}
}

func TestMissingValueDecodesAsNil(t *testing.T) {
	reg, fake := newTestRegistry(t)
	got := collect(reg.Open("x"))

	fake.Receive([]byte(`{"channel":"x"}`))

	require.Len(t, *got, 1)
	assert.Nil(t, (*got)[0])
}

func TestUnknownChannelIsNotQueued(t *testing.T) {
	reg, fake := newTestRegistry(t)

	fake.Receive([]byte(`{"channel":"late","value":1}`))

	got := collect(reg.Open("late"))
	assert.Empty(t, *got)

	fake.Receive([]byte(`{"channel":"late","value":2}`))
	assert.Equal(t, []any{float64(2)}, *got)
}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"channel":"a","value":[1]}`))
	require.NoError(t, err)
	assert.Equal(t, "a", env.Channel)
	assert.Equal(t, []any{float64(1)}, env.Value)

	env, err = Decode([]byte(`{"channel":12,"value":null}`))
	require.NoError(t, err)
	assert.Equal(t, "12", env.Channel)

	_, err = Decode([]byte(`{"channel":null}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
