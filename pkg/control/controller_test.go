package control

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/koala/pkg/bridge/bridgetest"
	"github.com/entrhq/koala/pkg/cookies"
	"github.com/entrhq/koala/pkg/koala"
	"github.com/entrhq/koala/pkg/scheduler"
)

type envelope struct {
	Channel string          `json:"channel"`
	Value   json.RawMessage `json:"value"`
}

type fixture struct {
	fake *bridgetest.Fake
	loop *scheduler.Loop
	ctl  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := bridgetest.New()
	loop := scheduler.New()
	s := koala.New(fake, loop)
	return &fixture{fake: fake, loop: loop, ctl: New(s)}
}

func (fx *fixture) request(t *testing.T, cmd string) {
	t.Helper()
	fx.fake.Receive([]byte(`{"channel":"control","value":` + cmd + `}`))
	fx.loop.Drain()
}

// messages returns the values sent on channel name, decoded into T.
func messages[T any](t *testing.T, fake *bridgetest.Fake, name string) []T {
	t.Helper()
	var out []T
	for _, raw := range fake.Sent() {
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Channel != name {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(env.Value, &v))
		out = append(out, v)
	}
	return out
}

func (fx *fixture) topWindow(t *testing.T) *bridgetest.Window {
	t.Helper()
	frames := fx.fake.Root.Frames()
	require.NotEmpty(t, frames)
	w, ok := frames[len(frames)-1].(*bridgetest.Window)
	require.True(t, ok)
	return w
}

func TestOpenRepliesWithTokenAndNavigates(t *testing.T) {
	fx := newFixture(t)

	fx.request(t, `{"op":"open","url":"https://example.com/","width":300,"height":200}`)

	replies := messages[Reply](t, fx.fake, ChannelControl)
	require.Len(t, replies, 1)
	assert.Equal(t, ReplyOpened, replies[0].Op)
	assert.Equal(t, fx.fake.Created()[0], replies[0].ID)

	top := fx.topWindow(t)
	assert.Equal(t, []string{"https://example.com/"}, top.Element.Sources())
	w, h := top.Element.Size()
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	assert.NotNil(t, fx.ctl.Frame(replies[0].ID))
}

func TestGoAndResizeTrackedFrame(t *testing.T) {
	fx := newFixture(t)
	id, err := fx.ctl.Open("https://a/", 0, 0)
	require.NoError(t, err)
	fx.loop.Drain()

	fx.request(t, `{"op":"go","id":"`+id+`","url":"https://b/"}`)
	fx.request(t, `{"op":"resize","id":"`+id+`","width":10,"height":20}`)

	top := fx.topWindow(t)
	assert.Equal(t, []string{"https://a/", "https://b/"}, top.Element.Sources())
	w, h := top.Element.Size()
	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}

func TestFrameEventsAreRelayed(t *testing.T) {
	fx := newFixture(t)
	id, err := fx.ctl.Open("https://a/", 0, 0)
	require.NoError(t, err)
	fx.loop.Drain()

	top := fx.topWindow(t)
	top.Handle.LoadStarted()

	child := bridgetest.NewWindow("inner", "https://inner/")
	top.Append(child)
	fx.fake.Spawn(child, top)
	child.Handle.LoadFinished()
	child.Handle.Destroy()

	events := messages[FrameEvent](t, fx.fake, ChannelFrames)
	require.Len(t, events, 4)

	assert.Equal(t, FrameEvent{ID: id, Event: "loading", URL: "about:blank"}, events[0])

	assert.Equal(t, id, events[1].ID)
	assert.Equal(t, "child", events[1].Event)
	childID := events[1].Child
	require.NotEmpty(t, childID)

	assert.Equal(t, FrameEvent{ID: childID, Parent: id, Event: "loaded", URL: "https://inner/"}, events[2])
	assert.Equal(t, childID, events[3].ID)
	assert.Equal(t, "destroyed", events[3].Event)

	assert.Nil(t, fx.ctl.Frame(childID))
	assert.Equal(t, 1, fx.ctl.Tracked())
}

func TestCookiesRequests(t *testing.T) {
	fx := newFixture(t)

	fx.request(t, `{"op":"cookies","cookies":[{"name":"sid","value":"1","domain":"example.com","path":"/"}]}`)
	require.Len(t, fx.fake.Jar(), 1)
	assert.Equal(t, "sid", fx.fake.Jar()[0].Name)

	fx.fake.ChangeCookies([]cookies.Cookie{{Name: "a", Value: "1", Domain: "x", Path: "/"}})
	fx.loop.Drain()

	fx.request(t, `{"op":"cookies"}`)

	updates := messages[[]cookies.Cookie](t, fx.fake, ChannelCookies)
	require.Len(t, updates, 3)
	for i, name := range []string{"sid", "a", "a"} {
		require.Len(t, updates[i], 1)
		assert.Equal(t, name, updates[i][0].Name)
	}
}

func TestExitRequest(t *testing.T) {
	fx := newFixture(t)

	fx.request(t, `{"op":"exit","code":3}`)
	fx.request(t, `{"op":"exit"}`)

	assert.Equal(t, []int{3, 0}, fx.fake.Exits())
}

func TestInvalidRequestsReplyWithError(t *testing.T) {
	fx := newFixture(t)

	fx.request(t, `{"op":"go","id":"nope","url":"https://x/"}`)
	fx.request(t, `{"op":"fly"}`)
	fx.request(t, `"open"`)
	fx.request(t, `{"url":"https://x/"}`)

	replies := messages[Reply](t, fx.fake, ChannelControl)
	require.Len(t, replies, 4)
	for _, r := range replies {
		assert.Equal(t, ReplyError, r.Op)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, OpGo, replies[0].Request)
	assert.Equal(t, "fly", replies[1].Request)
	assert.Empty(t, replies[2].Request)
}
